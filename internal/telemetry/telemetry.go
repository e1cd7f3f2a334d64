// Package telemetry forwards application log events to optional sinks.
// Telemetry is best-effort: no sink ever returns an error to its caller.
package telemetry

import (
	"context"
	"log/slog"
)

// Level is the severity of a telemetry event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Package names the component that emitted an event.
type Package string

const (
	PackageHandler    Package = "handler"
	PackageService    Package = "service"
	PackageRepository Package = "repository"
	PackageConfig     Package = "config"
	PackageMiddleware Package = "middleware"
	PackageUtils      Package = "utils"
)

// Sink receives telemetry events.
type Sink interface {
	Log(ctx context.Context, level Level, pkg Package, message string)
}

// Noop discards every event.
type Noop struct{}

// NewNoop returns a Sink that discards all events.
func NewNoop() Sink {
	return Noop{}
}

// Log is a no-op.
func (Noop) Log(ctx context.Context, level Level, pkg Package, message string) {}

// Slog mirrors events into a structured logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog creates a Sink writing to logger.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger.With("component", "telemetry")}
}

// Log writes the event at the matching slog level.
func (s *Slog) Log(ctx context.Context, level Level, pkg Package, message string) {
	s.logger.Log(ctx, slogLevel(level), message, "package", string(pkg))
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Multi fans events out to several sinks.
type Multi []Sink

// Log forwards the event to every sink.
func (m Multi) Log(ctx context.Context, level Level, pkg Package, message string) {
	for _, s := range m {
		s.Log(ctx, level, pkg, message)
	}
}
