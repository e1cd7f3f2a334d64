// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Shortening metrics
	IncURLCreated()
	IncURLRejected()

	// Redirect metrics
	IncRedirect(status string) // status: "redirecting", "not_found", "expired"
	ObserveRedirectDuration(duration time.Duration)
	IncClickRecorded()

	// Store maintenance
	AddSweepRemoved(n int)
	IncStoreCorrupt()

	// Collaborators
	IncGeoLookup(status string)      // status: "success" or "failed"
	IncTelemetryEvent(status string) // status: "sent" or "dropped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
