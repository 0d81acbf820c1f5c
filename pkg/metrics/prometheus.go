package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Metrics tracks carve run execution statistics.
type Metrics struct {
	BlocksRead       int64
	BytesScanned     int64
	RawMatches       int64
	CandidatesFormed int64
	ValidFull        int64
	ValidPartial     int64
	Invalid          int64
	BufferOverflows  int64
	DispatchRetries  int64
}

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	metrics *Metrics
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(m *Metrics) *PrometheusExporter {
	return &PrometheusExporter{
		metrics: m,
	}
}

// Export returns metrics in Prometheus text format.
func (e *PrometheusExporter) Export() string {
	var b strings.Builder

	blocksRead := atomic.LoadInt64(&e.metrics.BlocksRead)
	bytesScanned := atomic.LoadInt64(&e.metrics.BytesScanned)
	rawMatches := atomic.LoadInt64(&e.metrics.RawMatches)
	candidatesFormed := atomic.LoadInt64(&e.metrics.CandidatesFormed)
	validFull := atomic.LoadInt64(&e.metrics.ValidFull)
	validPartial := atomic.LoadInt64(&e.metrics.ValidPartial)
	invalid := atomic.LoadInt64(&e.metrics.Invalid)
	overflows := atomic.LoadInt64(&e.metrics.BufferOverflows)
	retries := atomic.LoadInt64(&e.metrics.DispatchRetries)

	fmt.Fprintf(&b, "searchlight_blocks_read_total %d\n", blocksRead)
	fmt.Fprintf(&b, "searchlight_bytes_scanned_total %d\n", bytesScanned)
	fmt.Fprintf(&b, "searchlight_raw_matches_total %d\n", rawMatches)
	fmt.Fprintf(&b, "searchlight_candidates_formed_total %d\n", candidatesFormed)

	fmt.Fprintf(&b, "searchlight_validations_total{verdict=\"valid-full\"} %d\n", validFull)
	fmt.Fprintf(&b, "searchlight_validations_total{verdict=\"valid-partial\"} %d\n", validPartial)
	fmt.Fprintf(&b, "searchlight_validations_total{verdict=\"invalid\"} %d\n", invalid)

	fmt.Fprintf(&b, "searchlight_match_buffer_overflows_total %d\n", overflows)
	fmt.Fprintf(&b, "searchlight_dispatch_retries_total %d\n", retries)

	var hitRate float64
	validated := validFull + validPartial + invalid
	if validated > 0 {
		hitRate = float64(validFull+validPartial) / float64(validated)
	}
	fmt.Fprintf(&b, "searchlight_candidate_hit_rate %s\n", formatFloat(hitRate))

	return b.String()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, e.Export())
	})
}

// formatFloat formats a float64 for Prometheus (removes trailing zeros).
func formatFloat(f float64) string {
	if f == 0.0 {
		return "0"
	}
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
