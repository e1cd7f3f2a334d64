package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shortclick/shortclick/internal/geo"
	"github.com/shortclick/shortclick/internal/metrics"
	"github.com/shortclick/shortclick/internal/model"
	"github.com/shortclick/shortclick/internal/repository"
	"github.com/shortclick/shortclick/internal/telemetry"
)

// DefaultGeoTimeout bounds the geolocation call made for each redirect.
const DefaultGeoTimeout = 2 * time.Second

// Resolver turns a short code into a redirect target and records the click.
type Resolver struct {
	store      repository.Store
	locator    geo.Locator
	clock      model.Clock
	geoTimeout time.Duration
	logger     *slog.Logger
	telemetry  telemetry.Sink
	metrics    metrics.Recorder
}

// NewResolver creates a new Resolver. A nil locator reports every visitor
// as unknown.
func NewResolver(
	store repository.Store,
	locator geo.Locator,
	clock model.Clock,
	geoTimeout time.Duration,
	logger *slog.Logger,
	sink telemetry.Sink,
	recorder metrics.Recorder,
) *Resolver {
	if locator == nil {
		locator = geo.Static(model.UnknownGeoLocation())
	}
	if clock == nil {
		clock = model.SystemClock{}
	}
	if geoTimeout <= 0 {
		geoTimeout = DefaultGeoTimeout
	}
	if sink == nil {
		sink = telemetry.NewNoop()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		store:      store,
		locator:    locator,
		clock:      clock,
		geoTimeout: geoTimeout,
		logger:     logger.With("component", "service.resolver"),
		telemetry:  sink,
		metrics:    recorder,
	}
}

// Resolve looks up code. Unknown and expired codes are reported through the
// outcome status, not the error; expired links record no click. The error is
// set only when the store could not be read.
func (r *Resolver) Resolve(ctx context.Context, code string, visit model.Visit) (model.RedirectOutcome, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveRedirectDuration(time.Since(start))
	}()

	record, err := r.store.FindByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.metrics.IncRedirect(string(model.RedirectNotFound))
			r.telemetry.Log(ctx, telemetry.LevelWarn, telemetry.PackageService, "No URL found for shortcode: "+code)
			return model.RedirectOutcome{Status: model.RedirectNotFound}, nil
		}
		r.metrics.IncRedirect("error")
		return model.RedirectOutcome{}, fmt.Errorf("failed to look up short code: %w", err)
	}

	now := r.clock.Now()
	if record.ExpiredAt(now) {
		r.metrics.IncRedirect(string(model.RedirectExpired))
		r.telemetry.Log(ctx, telemetry.LevelInfo, telemetry.PackageService, "Shortcode "+code+" is expired")
		return model.RedirectOutcome{Status: model.RedirectExpired, Record: record}, nil
	}

	click := r.buildClick(ctx, now, visit)
	if err := r.store.AppendClick(ctx, record.ShortCode, click); err != nil {
		// The visitor still gets redirected; only the click is lost.
		r.logger.Error("failed to record click", "short_code", record.ShortCode, "error", err)
		r.telemetry.Log(ctx, telemetry.LevelError, telemetry.PackageService, "failed to record click for "+record.ShortCode)
	} else {
		record.AddClick(click)
		r.metrics.IncClickRecorded()
	}

	r.metrics.IncRedirect(string(model.RedirectRedirecting))
	r.telemetry.Log(ctx, telemetry.LevelInfo, telemetry.PackageService, "Redirecting to: "+record.OriginalURL)

	return model.RedirectOutcome{
		Status: model.RedirectRedirecting,
		Target: record.OriginalURL,
		Record: record,
	}, nil
}

func (r *Resolver) buildClick(ctx context.Context, now time.Time, visit model.Visit) model.ClickRecord {
	geoCtx, cancel := context.WithTimeout(ctx, r.geoTimeout)
	defer cancel()
	loc := r.locator.Lookup(geoCtx, visit.IPAddress)

	return model.ClickRecord{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Timestamp: now,
		Source:    ClickSource(visit.Referrer),
		UserAgent: visit.UserAgent,
		IPAddress: visit.IPAddress,
		Country:   loc.Country,
		City:      loc.City,
		Referrer:  visit.Referrer,
	}
}

// ClickSource derives the click source label from a referrer URL: the
// hostname, "Direct" when empty, "Unknown" when it cannot be parsed.
func ClickSource(referrer string) string {
	if referrer == "" {
		return model.SourceDirect
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return model.SourceUnknown
	}
	return u.Hostname()
}

// TimeRemaining formats the time left until expiresAt, e.g. "2d 3h 4m",
// "3h 4m", "4m" or "Expired".
func TimeRemaining(expiresAt, now time.Time) string {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return "Expired"
	}

	minutes := int(diff / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
