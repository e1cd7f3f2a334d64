package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/shortclick/shortclick/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "shortclick_urls_created_total %d\n", snap.URLsCreated)
	writeMetric(w, "shortclick_urls_rejected_total %d\n", snap.URLsRejected)
	writeLabeled(w, "shortclick_redirects_total", snap.Redirects)
	writeMetric(w, "shortclick_redirect_duration_seconds_count %d\n", snap.RedirectDurationCount)
	writeMetric(w, "shortclick_redirect_duration_seconds_sum %.6f\n", float64(snap.RedirectDurationTotalNs)/1e9)
	writeMetric(w, "shortclick_clicks_recorded_total %d\n", snap.ClicksRecorded)
	writeMetric(w, "shortclick_sweep_removed_total %d\n", snap.SweepRemoved)
	writeMetric(w, "shortclick_store_corrupt_total %d\n", snap.StoreCorrupt)
	writeLabeled(w, "shortclick_geo_lookups_total", snap.GeoLookups)
	writeLabeled(w, "shortclick_telemetry_events_total", snap.TelemetryEvents)
}

// writeLabeled writes one line per status label in stable order.
func writeLabeled(w http.ResponseWriter, name string, counts map[string]uint64) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		writeMetric(w, "%s{status=%q} %d\n", name, label, counts[label])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
