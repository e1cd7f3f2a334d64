package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncURLCreated is a no-op.
func (n *NoopRecorder) IncURLCreated() {}

// IncURLRejected is a no-op.
func (n *NoopRecorder) IncURLRejected() {}

// IncRedirect is a no-op.
func (n *NoopRecorder) IncRedirect(status string) {}

// ObserveRedirectDuration is a no-op.
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration) {}

// IncClickRecorded is a no-op.
func (n *NoopRecorder) IncClickRecorded() {}

// AddSweepRemoved is a no-op.
func (n *NoopRecorder) AddSweepRemoved(count int) {}

// IncStoreCorrupt is a no-op.
func (n *NoopRecorder) IncStoreCorrupt() {}

// IncGeoLookup is a no-op.
func (n *NoopRecorder) IncGeoLookup(status string) {}

// IncTelemetryEvent is a no-op.
func (n *NoopRecorder) IncTelemetryEvent(status string) {}
