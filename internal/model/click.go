package model

import "time"

// Click source labels used when the referrer gives no hostname.
const (
	SourceDirect  = "Direct"
	SourceUnknown = "Unknown"
)

// UnknownLocation is the placeholder for missing geolocation fields.
const UnknownLocation = "Unknown"

// ClickRecord represents a single redirect through a short code.
type ClickRecord struct {
	ID        string    `json:"id"` // ULID (time-sortable)
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

// Visit carries the request metadata the redirect surface knows about a click.
type Visit struct {
	Referrer  string
	UserAgent string
	IPAddress string
}

// GeoLocation is a best-effort location for a visitor.
type GeoLocation struct {
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// UnknownGeoLocation is returned when a lookup fails.
func UnknownGeoLocation() GeoLocation {
	return GeoLocation{Country: UnknownLocation, City: UnknownLocation}
}
