package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/repository"
	"github.com/shortclick/shortclick/internal/shortcode"
	"github.com/shortclick/shortclick/internal/telemetry"
	"github.com/shortclick/shortclick/internal/validation"
)

// maxInsertAttempts bounds redraws when a generated code is stored by another
// writer between the snapshot and the insert.
const maxInsertAttempts = 3

// CodeGenerator produces a short code absent from existing.
type CodeGenerator interface {
	Generate(existing map[string]struct{}) (string, error)
}

// ShorteningConfig holds the tunables of ShorteningService.
type ShorteningConfig struct {
	BaseURL                string
	DefaultValidityMinutes int
	MaxBatchSize           int
}

// ShorteningService validates and stores batches of creation requests.
type ShorteningService struct {
	store     repository.Store
	generator CodeGenerator
	clock     model.Clock
	cfg       ShorteningConfig
	logger    *slog.Logger
	telemetry telemetry.Sink
	metrics   metrics.Recorder

	// mu keeps two batches from passing validation for the same code.
	mu sync.Mutex
}

// NewShorteningService creates a new ShorteningService.
func NewShorteningService(
	store repository.Store,
	generator CodeGenerator,
	clock model.Clock,
	cfg ShorteningConfig,
	logger *slog.Logger,
	sink telemetry.Sink,
	recorder metrics.Recorder,
) *ShorteningService {
	if generator == nil {
		generator = shortcode.NewGenerator()
	}
	if clock == nil {
		clock = model.SystemClock{}
	}
	if cfg.DefaultValidityMinutes <= 0 {
		cfg.DefaultValidityMinutes = DefaultValidityMinutes
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if sink == nil {
		sink = telemetry.NewNoop()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ShorteningService{
		store:     store,
		generator: generator,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With("component", "service.shortening"),
		telemetry: sink,
		metrics:   recorder,
	}
}

// MaxBatchSize returns the configured batch limit.
func (s *ShorteningService) MaxBatchSize() int {
	return s.cfg.MaxBatchSize
}

// CreateBatch processes requests in order and returns one outcome per
// request. Rejected items do not stop the batch. The returned error is only
// set when the batch as a whole could not be processed.
func (s *ShorteningService) CreateBatch(ctx context.Context, reqs []model.CreationRequest) ([]model.Outcome, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(reqs) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(reqs), s.cfg.MaxBatchSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	taken, err := s.store.AllShortCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing short codes: %w", err)
	}
	for _, code := range validation.ReservedCodes() {
		taken[code] = struct{}{}
	}

	outcomes := make([]model.Outcome, len(reqs))
	for i, req := range reqs {
		outcomes[i] = s.createOne(ctx, i, req, taken)
		if outcomes[i].Accepted {
			s.metrics.IncURLCreated()
		} else {
			s.metrics.IncURLRejected()
		}
	}
	return outcomes, nil
}

func (s *ShorteningService) createOne(ctx context.Context, index int, req model.CreationRequest, taken map[string]struct{}) model.Outcome {
	req.OriginalURL = strings.TrimSpace(req.OriginalURL)
	req.CustomShortCode = strings.TrimSpace(req.CustomShortCode)

	outcome := model.Outcome{Index: index}

	res := validation.ValidateRequest(req, taken)
	if !res.Valid() {
		outcome.Errors = res.Err()
		s.logger.Debug("creation request rejected", "index", index, "errors", res.Messages())
		return outcome
	}

	validity, err := validation.ParseValidityMinutes(req.ValidityMinutesRaw, s.cfg.DefaultValidityMinutes)
	if err != nil {
		outcome.Errors = []error{err}
		return outcome
	}

	custom := req.CustomShortCode != ""
	var record *model.URLRecord
	for attempt := 1; ; attempt++ {
		code := req.CustomShortCode
		if !custom {
			code, err = s.generator.Generate(taken)
			if err != nil {
				s.logger.Error("failed to generate short code", "index", index, "error", err)
				s.telemetry.Log(ctx, telemetry.LevelError, telemetry.PackageService, "short code generation failed")
				outcome.Errors = []error{err}
				return outcome
			}
		}

		record = model.NewURLRecord(req.OriginalURL, code, s.cfg.BaseURL, validity, s.clock.Now())
		err = s.store.Insert(ctx, record)
		if err == nil {
			break
		}

		if errors.Is(err, repository.ErrDuplicateCode) {
			// Another writer stored the code after the snapshot was taken.
			taken[strings.ToLower(code)] = struct{}{}
			s.logger.Warn("short code taken concurrently", "short_code", code, "attempt", attempt)
			if custom || attempt >= maxInsertAttempts {
				outcome.Errors = []error{validation.DuplicateShortCode()}
				return outcome
			}
			continue
		}

		s.logger.Error("failed to persist url record", "short_code", code, "error", err)
		s.telemetry.Log(ctx, telemetry.LevelError, telemetry.PackageService, "failed to save url "+code)
		outcome.Errors = []error{fmt.Errorf("%w: %v", ErrPersistence, err)}
		return outcome
	}
	code := record.ShortCode

	taken[strings.ToLower(code)] = struct{}{}

	s.logger.Info("url shortened", "short_code", code, "validity_minutes", validity)
	s.telemetry.Log(ctx, telemetry.LevelInfo, telemetry.PackageService, "URL shortened: "+code)

	outcome.Accepted = true
	outcome.Record = record
	return outcome
}

// List returns every stored record.
func (s *ShorteningService) List(ctx context.Context) ([]*model.URLRecord, error) {
	records, err := s.store.LoadAll(ctx)
	if err != nil && !errors.Is(err, repository.ErrCorruptStore) {
		return nil, err
	}
	return records, nil
}

// Get returns the record for code.
func (s *ShorteningService) Get(ctx context.Context, code string) (*model.URLRecord, error) {
	return s.store.FindByShortCode(ctx, code)
}

// Stats aggregates the stored collection at the current time.
func (s *ShorteningService) Stats(ctx context.Context) (model.Stats, error) {
	return s.store.Stats(ctx, s.clock.Now())
}

// Now exposes the service clock so presenters compute status consistently.
func (s *ShorteningService) Now() time.Time {
	return s.clock.Now()
}
