package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortclick/shortclick/internal/kvstore"
	"github.com/shortclick/shortclick/internal/lock"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/telemetry"
	"github.com/shortclick/shortclick/internal/testutil"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// countingBackend counts writes on top of an in-memory backend.
type countingBackend struct {
	*kvstore.Memory
	sets atomic.Int64
}

func (c *countingBackend) Set(ctx context.Context, key, value string) error {
	c.sets.Add(1)
	return c.Memory.Set(ctx, key, value)
}

type failingBackend struct {
	*kvstore.Memory
}

func (failingBackend) Set(ctx context.Context, key, value string) error {
	return errors.New("disk full")
}

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (c *captureSink) Log(ctx context.Context, level telemetry.Level, pkg telemetry.Package, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, string(level)+"/"+string(pkg))
}

func TestBlobRepository_EmptyStore(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(kvstore.NewMemory(), nil, testutil.Logger())

	records, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	codes, err := repo.AllShortCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	_, err = repo.FindByShortCode(ctx, "abcd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlobRepository_UpsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(kvstore.NewMemory(), nil, testutil.Logger())

	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "AbCd12", 30, baseTime)))
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "zzzz", 30, baseTime)))

	found, err := repo.FindByShortCode(ctx, "abcd12")
	require.NoError(t, err)
	assert.Equal(t, "AbCd12", found.ShortCode, "casing is preserved for display")

	codes, err := repo.AllShortCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"abcd12": {}, "zzzz": {}}, codes)

	replacement := testutil.NewTestRecord(t, "zzzz", 60, baseTime)
	replacement.OriginalURL = "https://example.org/other"
	require.NoError(t, repo.Upsert(ctx, replacement))

	records, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://example.org/other", records[1].OriginalURL)
}

func TestBlobRepository_InsertRejectsStoredCodeAnyCase(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	first := NewBlobRepository(backend, nil, testutil.Logger())
	second := NewBlobRepository(backend, nil, testutil.Logger())

	require.NoError(t, first.Insert(ctx, testutil.NewTestRecord(t, "promo", 30, baseTime)))

	clash := model.NewURLRecord("https://other.example.com", "PROMO", testutil.TestBaseURL, 30, baseTime)
	err := second.Insert(ctx, clash)
	require.ErrorIs(t, err, ErrDuplicateCode)

	records, err := first.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://example.com/promo", records[0].OriginalURL)

	require.NoError(t, second.Insert(ctx, testutil.NewTestRecord(t, "other1", 30, baseTime)))
	records, err = first.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBlobRepository_ConcurrentInsertsOfOneCode(t *testing.T) {
	ctx := context.Background()
	_, client := testutil.NewMiniredis(t)
	backend := kvstore.NewRedis(client, "")

	const n = 8
	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine is its own replica sharing only Redis.
			repo := NewBlobRepository(backend, lock.NewRedis(client, "shortclick:lock", time.Second), testutil.Logger())
			if err := repo.Insert(ctx, testutil.NewTestRecord(t, "shared", 30, baseTime)); err == nil {
				accepted.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrDuplicateCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())
}

func TestBlobRepository_AppendClickKeepsCountInSync(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(kvstore.NewMemory(), nil, testutil.Logger())
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "abcd", 30, baseTime)))

	var ids []string
	for i := 0; i < 3; i++ {
		click := testutil.NewTestClick(t, baseTime.Add(time.Duration(i)*time.Minute))
		ids = append(ids, click.ID)
		require.NoError(t, repo.AppendClick(ctx, "ABCD", click))
	}

	found, err := repo.FindByShortCode(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, 3, found.ClickCount)
	require.Len(t, found.Clicks, 3)
	assert.Equal(t, ids[0], found.Clicks[0].ID)
	assert.Equal(t, ids[2], found.Clicks[2].ID)
}

func TestBlobRepository_AppendClickUnknownCodeIsNoop(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Memory: kvstore.NewMemory()}
	repo := NewBlobRepository(backend, nil, testutil.Logger())
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "abcd", 30, baseTime)))
	writes := backend.sets.Load()

	err := repo.AppendClick(ctx, "missing", model.ClickRecord{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, writes, backend.sets.Load(), "no write for an unknown code")
}

func TestBlobRepository_CorruptStore(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	require.NoError(t, backend.Set(ctx, kvstore.DefaultURLsKey, "{not json"))

	sink := &captureSink{}
	recorder := metrics.NewInMemory()
	repo := NewBlobRepository(backend, nil, testutil.Logger(), WithTelemetry(sink), WithMetrics(recorder))

	records, err := repo.LoadAll(ctx)
	assert.ErrorIs(t, err, ErrCorruptStore)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, []string{"error/repository"}, sink.events)
	assert.Equal(t, uint64(1), recorder.Snapshot().StoreCorrupt)

	_, err = repo.FindByShortCode(ctx, "abcd")
	assert.ErrorIs(t, err, ErrNotFound)

	// A write replaces the corrupt value with a valid collection.
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "abcd", 30, baseTime)))
	records, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBlobRepository_SweepExpired(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Memory: kvstore.NewMemory()}
	recorder := metrics.NewInMemory()
	repo := NewBlobRepository(backend, nil, testutil.Logger(), WithMetrics(recorder))

	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "short", 1, baseTime)))
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "long1", 60, baseTime)))

	now := baseTime.Add(2 * time.Minute)
	kept, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "long1", kept[0].ShortCode)
	assert.Equal(t, uint64(1), recorder.Snapshot().SweepRemoved)

	writes := backend.sets.Load()
	again, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Equal(t, writes, backend.sets.Load(), "second sweep must not write")
}

func TestBlobRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(kvstore.NewMemory(), nil, testutil.Logger())

	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "short", 1, baseTime)))
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "long1", 60, baseTime)))
	require.NoError(t, repo.AppendClick(ctx, "long1", model.ClickRecord{ID: "c1", Timestamp: baseTime}))

	stats, err := repo.Stats(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalURLs: 2, ActiveURLs: 2, ExpiredURLs: 0, TotalClicks: 1}, stats)

	stats, err = repo.Stats(ctx, baseTime.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalURLs: 2, ActiveURLs: 1, ExpiredURLs: 1, TotalClicks: 1}, stats)
}

func TestBlobRepository_WriteFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(failingBackend{Memory: kvstore.NewMemory()}, nil, testutil.Logger())

	err := repo.Upsert(ctx, testutil.NewTestRecord(t, "abcd", 30, baseTime))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestBlobRepository_ConcurrentClicksAreNotLost(t *testing.T) {
	ctx := context.Background()
	repo := NewBlobRepository(kvstore.NewMemory(), lock.NewLocal(), testutil.Logger())
	code := testutil.UniqueShortCode("conc")
	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, code, 30, baseTime)))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendClick(ctx, code, testutil.NewTestClick(t, baseTime)))
		}()
	}
	wg.Wait()

	found, err := repo.FindByShortCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, n, found.ClickCount)
}

func TestBlobRepository_RedisBackendWithRedisLock(t *testing.T) {
	ctx := context.Background()
	mr, client := testutil.NewMiniredis(t)

	backend := kvstore.NewRedis(client, "")
	locker := lock.NewRedis(client, "shortclick:lock", time.Second)
	repo := NewBlobRepository(backend, locker, testutil.Logger(), WithKey("custom_urls"))

	require.NoError(t, repo.Upsert(ctx, testutil.NewTestRecord(t, "abcd", 30, baseTime)))
	assert.True(t, mr.Exists("custom_urls"))
	assert.NoError(t, repo.Ping(ctx))

	found, err := repo.FindByShortCode(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/abcd", found.OriginalURL)
}
