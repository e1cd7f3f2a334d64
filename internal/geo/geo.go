// Package geo resolves coarse visitor location from an external HTTP service.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/shortclick/shortclick/internal/httpclient"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
)

// DefaultEndpoint is the geolocation service queried when none is configured.
const DefaultEndpoint = "https://ipapi.co/json/"

// ipPlaceholder in an endpoint is replaced with the visitor IP when it is public.
const ipPlaceholder = "{ip}"

// maxResponseBytes caps how much of the response body is read.
const maxResponseBytes = 64 << 10

// Locator resolves a location for an IP. It never fails; unknown fields
// are reported as model.UnknownLocation.
type Locator interface {
	Lookup(ctx context.Context, ip string) model.GeoLocation
}

// apiResponse is the subset of the service payload we map.
type apiResponse struct {
	CountryName string   `json:"country_name"`
	City        string   `json:"city"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Error       bool     `json:"error"`
}

// HTTPLocator queries a JSON geolocation endpoint.
type HTTPLocator struct {
	client   *http.Client
	endpoint string
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewHTTPLocator creates a Locator for endpoint.
func NewHTTPLocator(client *http.Client, endpoint string, logger *slog.Logger, recorder metrics.Recorder) *HTTPLocator {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &HTTPLocator{
		client:   client,
		endpoint: endpoint,
		logger:   logger.With("component", "geo"),
		metrics:  recorder,
	}
}

// Lookup returns the best-effort location for ip.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) model.GeoLocation {
	loc, err := l.fetch(ctx, ip)
	if err != nil {
		l.logger.Warn("geolocation lookup failed", "error", err)
		l.metrics.IncGeoLookup("failed")
		return model.UnknownGeoLocation()
	}
	l.metrics.IncGeoLookup("success")
	return loc
}

func (l *HTTPLocator) fetch(ctx context.Context, ip string) (model.GeoLocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.urlFor(ip), nil)
	if err != nil {
		return model.GeoLocation{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpclient.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return model.GeoLocation{}, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.GeoLocation{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return model.GeoLocation{}, fmt.Errorf("decode: %w", err)
	}
	if body.Error {
		return model.GeoLocation{}, fmt.Errorf("service reported an error")
	}

	loc := model.GeoLocation{
		Country:   orUnknown(body.CountryName),
		City:      orUnknown(body.City),
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
	}
	return loc, nil
}

// urlFor substitutes the visitor IP into the endpoint. Private, loopback
// and unparsable addresses are dropped so the service falls back to the
// caller's own address.
func (l *HTTPLocator) urlFor(ip string) string {
	if !strings.Contains(l.endpoint, ipPlaceholder) {
		return l.endpoint
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return strings.Replace(l.endpoint, ipPlaceholder+"/", "", 1)
	}
	return strings.Replace(l.endpoint, ipPlaceholder, parsed.String(), 1)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.UnknownLocation
	}
	return s
}

// Static returns a fixed location. Useful when geolocation is disabled.
type Static model.GeoLocation

// Lookup returns the fixed location.
func (s Static) Lookup(ctx context.Context, ip string) model.GeoLocation {
	return model.GeoLocation(s)
}
