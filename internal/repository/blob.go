package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shortclick/shortclick/internal/kvstore"
	"github.com/shortclick/shortclick/internal/lock"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/telemetry"
)

// BlobRepository keeps the whole collection as one encoded value under a
// single backend key. Every read-modify-write runs under the locker.
type BlobRepository struct {
	backend   kvstore.Backend
	locker    lock.Locker
	key       string
	logger    *slog.Logger
	telemetry telemetry.Sink
	metrics   metrics.Recorder
}

// Option configures a BlobRepository.
type Option func(*BlobRepository)

// WithKey overrides the backend key (default kvstore.DefaultURLsKey).
func WithKey(key string) Option {
	return func(r *BlobRepository) {
		if key != "" {
			r.key = key
		}
	}
}

// WithTelemetry reports store problems to sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(r *BlobRepository) {
		if sink != nil {
			r.telemetry = sink
		}
	}
}

// WithMetrics records store counters.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(r *BlobRepository) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

// NewBlobRepository creates a store over backend. A nil locker means an
// in-process lock.
func NewBlobRepository(backend kvstore.Backend, locker lock.Locker, logger *slog.Logger, opts ...Option) *BlobRepository {
	if locker == nil {
		locker = lock.NewLocal()
	}
	r := &BlobRepository{
		backend:   backend,
		locker:    locker,
		key:       kvstore.DefaultURLsKey,
		logger:    logger.With("component", "repository"),
		telemetry: telemetry.NewNoop(),
		metrics:   metrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Store = (*BlobRepository)(nil)

// LoadAll returns every stored record. A missing key is an empty collection.
// A value that cannot be decoded yields an empty collection together with a
// wrapped ErrCorruptStore so callers can keep serving.
func (r *BlobRepository) LoadAll(ctx context.Context) ([]*model.URLRecord, error) {
	raw, ok, err := r.backend.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read url collection: %w", err)
	}
	if !ok {
		return []*model.URLRecord{}, nil
	}

	records, err := model.DecodeRecords(raw)
	if err != nil {
		r.logger.Error("failed to decode url collection", "key", r.key, "error", err)
		r.telemetry.Log(ctx, telemetry.LevelError, telemetry.PackageRepository, "failed to decode url collection: "+err.Error())
		r.metrics.IncStoreCorrupt()
		return []*model.URLRecord{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return records, nil
}

// SaveAll overwrites the stored collection.
func (r *BlobRepository) SaveAll(ctx context.Context, records []*model.URLRecord) error {
	encoded, err := model.EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("failed to encode url collection: %w", err)
	}
	if err := r.backend.Set(ctx, r.key, encoded); err != nil {
		r.telemetry.Log(ctx, telemetry.LevelError, telemetry.PackageRepository, "failed to write url collection: "+err.Error())
		return fmt.Errorf("failed to write url collection: %w", err)
	}
	return nil
}

// Upsert replaces any record with the same ID and appends the new one.
func (r *BlobRepository) Upsert(ctx context.Context, record *model.URLRecord) error {
	return r.mutate(ctx, func(records []*model.URLRecord) ([]*model.URLRecord, bool) {
		kept := records[:0]
		for _, existing := range records {
			if existing.ID != record.ID {
				kept = append(kept, existing)
			}
		}
		return append(kept, record.Clone()), true
	})
}

// Insert appends record unless a stored record already uses its code in any
// casing, in which case ErrDuplicateCode is returned and nothing is written.
func (r *BlobRepository) Insert(ctx context.Context, record *model.URLRecord) error {
	conflict := false
	err := r.mutate(ctx, func(records []*model.URLRecord) ([]*model.URLRecord, bool) {
		for _, existing := range records {
			if existing.MatchesCode(record.ShortCode) {
				conflict = true
				return records, false
			}
		}
		return append(records, record.Clone()), true
	})
	if err != nil {
		return err
	}
	if conflict {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, record.ShortCode)
	}
	return nil
}

// FindByShortCode returns the record matching code, ignoring case.
func (r *BlobRepository) FindByShortCode(ctx context.Context, code string) (*model.URLRecord, error) {
	records, err := r.LoadAll(ctx)
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return nil, err
	}
	for _, record := range records {
		if record.MatchesCode(code) {
			return record, nil
		}
	}
	return nil, ErrNotFound
}

// AllShortCodes returns the lower-cased set of every stored code, expired
// records included.
func (r *BlobRepository) AllShortCodes(ctx context.Context) (map[string]struct{}, error) {
	records, err := r.LoadAll(ctx)
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return nil, err
	}
	codes := make(map[string]struct{}, len(records))
	for _, record := range records {
		codes[strings.ToLower(record.ShortCode)] = struct{}{}
	}
	return codes, nil
}

// AppendClick adds click to the record for code. An unknown code is logged
// and ignored.
func (r *BlobRepository) AppendClick(ctx context.Context, code string, click model.ClickRecord) error {
	return r.mutate(ctx, func(records []*model.URLRecord) ([]*model.URLRecord, bool) {
		for _, record := range records {
			if record.MatchesCode(code) {
				record.AddClick(click)
				return records, true
			}
		}
		r.logger.Warn("click for unknown short code dropped", "short_code", code)
		return records, false
	})
}

// SweepExpired drops every record whose expiry is not after now and returns
// the survivors. Nothing is written when no record was dropped.
func (r *BlobRepository) SweepExpired(ctx context.Context, now time.Time) ([]*model.URLRecord, error) {
	var kept []*model.URLRecord
	err := r.mutate(ctx, func(records []*model.URLRecord) ([]*model.URLRecord, bool) {
		kept = make([]*model.URLRecord, 0, len(records))
		for _, record := range records {
			if record.ExpiresAt.After(now) {
				kept = append(kept, record)
			}
		}
		removed := len(records) - len(kept)
		if removed == 0 {
			return records, false
		}
		r.logger.Info("expired urls swept", "removed", removed, "kept", len(kept))
		r.metrics.AddSweepRemoved(removed)
		return kept, true
	})
	if err != nil {
		return nil, err
	}
	return kept, nil
}

// Stats aggregates the collection. Active and expired are computed against now.
func (r *BlobRepository) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	records, err := r.LoadAll(ctx)
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return model.Stats{}, err
	}

	stats := model.Stats{TotalURLs: len(records)}
	for _, record := range records {
		if record.ExpiredAt(now) {
			stats.ExpiredURLs++
		} else {
			stats.ActiveURLs++
		}
		stats.TotalClicks += record.ClickCount
	}
	return stats, nil
}

// Ping checks backend connectivity.
func (r *BlobRepository) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// mutate runs fn over the loaded collection under the lock and saves the
// result when fn reports a change. A corrupt collection is treated as empty
// so writes can recover the store.
func (r *BlobRepository) mutate(ctx context.Context, fn func([]*model.URLRecord) ([]*model.URLRecord, bool)) error {
	release, err := r.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock url collection: %w", err)
	}
	defer release()

	records, err := r.LoadAll(ctx)
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return err
	}

	updated, changed := fn(records)
	if !changed {
		return nil
	}
	return r.SaveAll(ctx, updated)
}
