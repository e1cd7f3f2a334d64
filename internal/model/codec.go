package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the current version tag of the persisted collection.
const SchemaVersion = 1

// TimestampLayout is ISO-8601 with millisecond precision, always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Codec errors.
var (
	ErrUnsupportedSchema = errors.New("unsupported schema version")
	ErrMalformedRecord   = errors.New("malformed record")
)

// storedCollection is the persisted envelope.
type storedCollection struct {
	Version int            `json:"version"`
	Records []storedRecord `json:"records"`
}

type storedRecord struct {
	ID              string        `json:"id"`
	OriginalURL     string        `json:"originalUrl"`
	ShortCode       string        `json:"shortCode"`
	ShortURL        string        `json:"shortUrl"`
	ValidityMinutes int           `json:"validityMinutes"`
	CreatedAt       string        `json:"createdAt"`
	ExpiresAt       string        `json:"expiresAt"`
	IsExpired       bool          `json:"isExpired"`
	ClickCount      int           `json:"clickCount"`
	Clicks          []storedClick `json:"clicks"`
}

type storedClick struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// FormatTimestamp encodes t for storage.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp decodes a stored timestamp. RFC 3339 with any fractional
// precision is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// EncodeRecords serializes the full collection under the current schema version.
func EncodeRecords(records []*URLRecord) (string, error) {
	out := storedCollection{
		Version: SchemaVersion,
		Records: make([]storedRecord, 0, len(records)),
	}

	for _, r := range records {
		sr := storedRecord{
			ID:              r.ID,
			OriginalURL:     r.OriginalURL,
			ShortCode:       r.ShortCode,
			ShortURL:        r.ShortURL,
			ValidityMinutes: r.ValidityMinutes,
			CreatedAt:       FormatTimestamp(r.CreatedAt),
			ExpiresAt:       FormatTimestamp(r.ExpiresAt),
			IsExpired:       r.IsExpired,
			ClickCount:      len(r.Clicks),
			Clicks:          make([]storedClick, 0, len(r.Clicks)),
		}
		for _, c := range r.Clicks {
			sr.Clicks = append(sr.Clicks, storedClick{
				ID:        c.ID,
				Timestamp: FormatTimestamp(c.Timestamp),
				Source:    c.Source,
				UserAgent: c.UserAgent,
				IPAddress: c.IPAddress,
				Country:   c.Country,
				City:      c.City,
				Referrer:  c.Referrer,
			})
		}
		out.Records = append(out.Records, sr)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	return string(data), nil
}

// DecodeRecords parses a persisted collection. A bare JSON array is the
// unversioned legacy layout and is read as version 0.
func DecodeRecords(data string) ([]*URLRecord, error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 {
		return []*URLRecord{}, nil
	}

	var stored storedCollection
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &stored.Records); err != nil {
			return nil, fmt.Errorf("unmarshal legacy records: %w", err)
		}
	} else {
		if err := json.Unmarshal(trimmed, &stored); err != nil {
			return nil, fmt.Errorf("unmarshal records: %w", err)
		}
		if stored.Version != SchemaVersion {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, stored.Version)
		}
	}

	records := make([]*URLRecord, 0, len(stored.Records))
	for i, sr := range stored.Records {
		r, err := sr.toRecord()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (sr storedRecord) toRecord() (*URLRecord, error) {
	if sr.ShortCode == "" {
		return nil, fmt.Errorf("%w: missing shortCode", ErrMalformedRecord)
	}

	createdAt, err := ParseTimestamp(sr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: createdAt: %v", ErrMalformedRecord, err)
	}
	expiresAt, err := ParseTimestamp(sr.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: expiresAt: %v", ErrMalformedRecord, err)
	}

	r := &URLRecord{
		ID:              sr.ID,
		OriginalURL:     sr.OriginalURL,
		ShortCode:       sr.ShortCode,
		ShortURL:        sr.ShortURL,
		ValidityMinutes: sr.ValidityMinutes,
		CreatedAt:       createdAt,
		ExpiresAt:       expiresAt,
		IsExpired:       sr.IsExpired,
		Clicks:          make([]ClickRecord, 0, len(sr.Clicks)),
	}
	if r.ID == "" {
		r.ID = r.ShortCode
	}

	for j, sc := range sr.Clicks {
		ts, err := ParseTimestamp(sc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: click %d timestamp: %v", ErrMalformedRecord, j, err)
		}
		r.Clicks = append(r.Clicks, ClickRecord{
			ID:        sc.ID,
			Timestamp: ts,
			Source:    sc.Source,
			UserAgent: sc.UserAgent,
			IPAddress: sc.IPAddress,
			Country:   sc.Country,
			City:      sc.City,
			Referrer:  sc.Referrer,
		})
	}
	// The stored count is a cache; the slice is authoritative.
	r.ClickCount = len(r.Clicks)

	return r, nil
}
