// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shortclick/shortclick/internal/model"
)

// TestBaseURL is the base URL records are minted under in tests.
const TestBaseURL = "http://localhost:8080"

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewMiniredis starts an in-process Redis and returns a client for it.
// Both are closed when the test ends.
func NewMiniredis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestRecord creates a record pointing at https://example.com/<code>.
func NewTestRecord(t testing.TB, code string, validityMinutes int, createdAt time.Time) *model.URLRecord {
	t.Helper()
	return model.NewURLRecord("https://example.com/"+code, code, TestBaseURL, validityMinutes, createdAt)
}

// NewTestClick creates a direct click at the given time.
func NewTestClick(t testing.TB, at time.Time) model.ClickRecord {
	t.Helper()
	return model.ClickRecord{
		ID:        UniqueID("click"),
		Timestamp: at,
		Source:    model.SourceDirect,
		UserAgent: "testutil",
		IPAddress: "192.0.2.1",
		Country:   model.UnknownLocation,
		City:      model.UnknownLocation,
	}
}

var seq atomic.Uint64

// UniqueShortCode returns an alphanumeric code, unique within the process,
// no longer than 10 characters.
func UniqueShortCode(prefix string) string {
	code := prefix + strconv.FormatUint(seq.Add(1), 36)
	if len(code) > 10 {
		code = code[len(code)-10:]
	}
	return code
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}
