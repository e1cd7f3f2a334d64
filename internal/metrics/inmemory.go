package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	URLsCreated             uint64
	URLsRejected            uint64
	Redirects               map[string]uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	ClicksRecorded          uint64
	SweepRemoved            uint64
	StoreCorrupt            uint64
	GeoLookups              map[string]uint64
	TelemetryEvents         map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	urlsCreated             uint64
	urlsRejected            uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	clicksRecorded          uint64
	sweepRemoved            uint64
	storeCorrupt            uint64

	mu         sync.Mutex
	redirects  map[string]uint64
	geoLookups map[string]uint64
	telemetry  map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redirects:  make(map[string]uint64),
		geoLookups: make(map[string]uint64),
		telemetry:  make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		URLsCreated:             atomic.LoadUint64(&m.urlsCreated),
		URLsRejected:            atomic.LoadUint64(&m.urlsRejected),
		Redirects:               copyCounts(m.redirects),
		RedirectDurationCount:   atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs: atomic.LoadInt64(&m.redirectDurationTotalNs),
		ClicksRecorded:          atomic.LoadUint64(&m.clicksRecorded),
		SweepRemoved:            atomic.LoadUint64(&m.sweepRemoved),
		StoreCorrupt:            atomic.LoadUint64(&m.storeCorrupt),
		GeoLookups:              copyCounts(m.geoLookups),
		TelemetryEvents:         copyCounts(m.telemetry),
	}
}

// IncURLCreated increments the created counter.
func (m *InMemoryRecorder) IncURLCreated() {
	atomic.AddUint64(&m.urlsCreated, 1)
}

// IncURLRejected increments the rejected counter.
func (m *InMemoryRecorder) IncURLRejected() {
	atomic.AddUint64(&m.urlsRejected, 1)
}

// IncRedirect counts a resolution by terminal status.
func (m *InMemoryRecorder) IncRedirect(status string) {
	m.inc(m.redirects, status)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

// IncClickRecorded increments the click counter.
func (m *InMemoryRecorder) IncClickRecorded() {
	atomic.AddUint64(&m.clicksRecorded, 1)
}

// AddSweepRemoved adds the number of records removed by a sweep.
func (m *InMemoryRecorder) AddSweepRemoved(n int) {
	if n > 0 {
		atomic.AddUint64(&m.sweepRemoved, uint64(n))
	}
}

// IncStoreCorrupt counts failed collection decodes.
func (m *InMemoryRecorder) IncStoreCorrupt() {
	atomic.AddUint64(&m.storeCorrupt, 1)
}

// IncGeoLookup counts geolocation lookups by status.
func (m *InMemoryRecorder) IncGeoLookup(status string) {
	m.inc(m.geoLookups, status)
}

// IncTelemetryEvent counts remote telemetry events by status.
func (m *InMemoryRecorder) IncTelemetryEvent(status string) {
	m.inc(m.telemetry, status)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
