package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCodec_RoundTripMillisecondPrecision(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, 3, 1, 8, 30, 15, 123_000_000, time.UTC)
	rec := NewURLRecord("https://example.com/path", "Zx9Qa1", "http://localhost:8080", 45, createdAt)
	rec.AddClick(ClickRecord{
		ID:        "01HV000000000000000000000",
		Timestamp: createdAt.Add(5*time.Minute + 456*time.Millisecond),
		Source:    "news.ycombinator.com",
		UserAgent: "Mozilla/5.0",
		IPAddress: "203.0.113.7",
		Country:   "Japan",
		City:      "Tokyo",
		Referrer:  "https://news.ycombinator.com/item?id=1",
	})

	data, err := EncodeRecords([]*URLRecord{rec})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(data, `"version":1`) {
		t.Errorf("encoded data should carry the schema version: %s", data)
	}
	if !strings.Contains(data, `"2026-03-01T08:30:15.123Z"`) {
		t.Errorf("createdAt should be ISO-8601 with milliseconds: %s", data)
	}

	decoded, err := DecodeRecords(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded %d records, want 1", len(decoded))
	}

	got := decoded[0]
	if got.ShortCode != rec.ShortCode || got.OriginalURL != rec.OriginalURL || got.ValidityMinutes != rec.ValidityMinutes {
		t.Errorf("scalar fields differ: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Errorf("timestamps differ: %v/%v vs %v/%v", got.CreatedAt, got.ExpiresAt, rec.CreatedAt, rec.ExpiresAt)
	}
	if got.ClickCount != 1 || !got.Clicks[0].Timestamp.Equal(rec.Clicks[0].Timestamp) {
		t.Errorf("click differs: %+v", got.Clicks)
	}
	gotClick, wantClick := got.Clicks[0], rec.Clicks[0]
	gotClick.Timestamp, wantClick.Timestamp = time.Time{}, time.Time{}
	if gotClick != wantClick {
		t.Errorf("click = %+v, want %+v", gotClick, wantClick)
	}
}

func TestCodec_DecodeEmpty(t *testing.T) {
	t.Parallel()

	records, err := DecodeRecords("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestCodec_DecodeLegacyArray(t *testing.T) {
	t.Parallel()

	legacy := `[{"id":"abcd","originalUrl":"https://example.com","shortCode":"abcd","shortUrl":"http://localhost:3000/abcd",
		"validityMinutes":30,"createdAt":"2025-08-01T10:00:00.000Z","expiresAt":"2025-08-01T10:30:00.000Z",
		"isExpired":false,"clickCount":7,"clicks":[{"id":"c1","timestamp":"2025-08-01T10:05:00.000Z","source":"Direct","userAgent":"ua","ipAddress":""}]}]`

	records, err := DecodeRecords(legacy)
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	// Stored clickCount is a cache and is recomputed from the clicks.
	if records[0].ClickCount != 1 {
		t.Errorf("ClickCount = %d, want 1", records[0].ClickCount)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"future version", `{"version":99,"records":[]}`, ErrUnsupportedSchema},
		{"bad timestamp", `{"version":1,"records":[{"shortCode":"abcd","createdAt":"yesterday","expiresAt":"2025-08-01T10:30:00.000Z"}]}`, ErrMalformedRecord},
		{"missing code", `{"version":1,"records":[{"createdAt":"2025-08-01T10:00:00.000Z","expiresAt":"2025-08-01T10:30:00.000Z"}]}`, ErrMalformedRecord},
		{"not json", `{{{`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeRecords(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
