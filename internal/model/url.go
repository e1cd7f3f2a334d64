// Package model defines domain entities for the application.
package model

import (
	"strings"
	"time"
)

// URLStatus represents the computed status of a shortened URL.
type URLStatus string

const (
	URLStatusActive  URLStatus = "active"
	URLStatusExpired URLStatus = "expired"
)

// URLRecord represents a shortened URL and the clicks recorded against it.
// ID and ShortCode always hold the same value.
type URLRecord struct {
	ID              string        `json:"id"`
	OriginalURL     string        `json:"originalUrl"`
	ShortCode       string        `json:"shortCode"`
	ShortURL        string        `json:"shortUrl"`
	ValidityMinutes int           `json:"validityMinutes"`
	CreatedAt       time.Time     `json:"createdAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	IsExpired       bool          `json:"isExpired"` // advisory only, see ExpiredAt
	ClickCount      int           `json:"clickCount"`
	Clicks          []ClickRecord `json:"clicks"`
}

// NewURLRecord builds a fresh record with no clicks.
func NewURLRecord(originalURL, shortCode, baseURL string, validityMinutes int, createdAt time.Time) *URLRecord {
	return &URLRecord{
		ID:              shortCode,
		OriginalURL:     originalURL,
		ShortCode:       shortCode,
		ShortURL:        ShortURL(baseURL, shortCode),
		ValidityMinutes: validityMinutes,
		CreatedAt:       createdAt,
		ExpiresAt:       ExpiryFor(createdAt, validityMinutes),
		ClickCount:      0,
		Clicks:          []ClickRecord{},
	}
}

// ShortURL derives the display URL for a short code.
func ShortURL(baseURL, shortCode string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + shortCode
}

// ExpiryFor returns createdAt plus the validity window.
func ExpiryFor(createdAt time.Time, validityMinutes int) time.Time {
	return createdAt.Add(time.Duration(validityMinutes) * time.Minute)
}

// ExpiredAt reports whether the record is past its expiry at now.
// This is the authoritative check; the stored IsExpired flag is never trusted.
func (u *URLRecord) ExpiredAt(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// StatusAt computes the status of the record at now.
func (u *URLRecord) StatusAt(now time.Time) URLStatus {
	if u.ExpiredAt(now) {
		return URLStatusExpired
	}
	return URLStatusActive
}

// MatchesCode reports whether code refers to this record, ignoring case.
func (u *URLRecord) MatchesCode(code string) bool {
	return strings.EqualFold(u.ShortCode, code)
}

// AddClick appends a click and keeps ClickCount in sync.
func (u *URLRecord) AddClick(click ClickRecord) {
	u.Clicks = append(u.Clicks, click)
	u.ClickCount = len(u.Clicks)
}

// Clone returns a deep copy of the record.
func (u *URLRecord) Clone() *URLRecord {
	c := *u
	c.Clicks = make([]ClickRecord, len(u.Clicks))
	copy(c.Clicks, u.Clicks)
	return &c
}

// Stats is the aggregate view over the stored collection.
type Stats struct {
	TotalURLs   int `json:"total_urls"`
	ActiveURLs  int `json:"active_urls"`
	ExpiredURLs int `json:"expired_urls"`
	TotalClicks int `json:"total_clicks"`
}

// CreationRequest is a single item of a shortening batch.
// Empty CustomShortCode and ValidityMinutesRaw defer to generation and the default.
type CreationRequest struct {
	OriginalURL        string
	CustomShortCode    string
	ValidityMinutesRaw string
}

// Outcome is the result for one CreationRequest, in request order.
type Outcome struct {
	Index    int
	Accepted bool
	Record   *URLRecord
	Errors   []error
}

// RedirectStatus is the terminal state of a resolution attempt.
type RedirectStatus string

const (
	RedirectNotFound    RedirectStatus = "not_found"
	RedirectExpired     RedirectStatus = "expired"
	RedirectRedirecting RedirectStatus = "redirecting"
)

// RedirectOutcome is returned by the resolver.
type RedirectOutcome struct {
	Status RedirectStatus
	Target string
	Record *URLRecord
}
