package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusExporter_Export(t *testing.T) {
	m := &Metrics{
		BlocksRead:       100,
		BytesScanned:     1 << 20,
		RawMatches:       42,
		CandidatesFormed: 12,
		ValidFull:        8,
		ValidPartial:     2,
		Invalid:          2,
		BufferOverflows:  1,
		DispatchRetries:  3,
	}

	exporter := NewPrometheusExporter(m)
	output := exporter.Export()

	expectedLines := []string{
		"searchlight_blocks_read_total 100",
		"searchlight_bytes_scanned_total 1048576",
		"searchlight_raw_matches_total 42",
		"searchlight_candidates_formed_total 12",
		`searchlight_validations_total{verdict="valid-full"} 8`,
		`searchlight_validations_total{verdict="valid-partial"} 2`,
		`searchlight_validations_total{verdict="invalid"} 2`,
		"searchlight_match_buffer_overflows_total 1",
		"searchlight_dispatch_retries_total 3",
		"searchlight_candidate_hit_rate 0.83",
	}

	for _, expected := range expectedLines {
		if !strings.Contains(output, expected) {
			t.Errorf("Export() missing expected line: %s\nGot:\n%s", expected, output)
		}
	}
}

func TestPrometheusExporter_Handler(t *testing.T) {
	m := &Metrics{
		CandidatesFormed: 10,
		ValidFull:        7,
		Invalid:          3,
	}

	exporter := NewPrometheusExporter(m)

	handler := exporter.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Handler() status = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	expectedContentType := "text/plain; version=0.0.4; charset=utf-8"
	if contentType != expectedContentType {
		t.Errorf("Handler() Content-Type = %s, want %s", contentType, expectedContentType)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `searchlight_validations_total{verdict="valid-full"} 7`) {
		t.Errorf("Handler() body missing expected metric:\nGot:\n%s", body)
	}
	if !strings.Contains(body, "searchlight_candidate_hit_rate") {
		t.Errorf("Handler() body missing candidate hit rate metric:\nGot:\n%s", body)
	}
}

func TestPrometheusExporter_CandidateHitRate(t *testing.T) {
	tests := []struct {
		name         string
		validFull    int64
		validPartial int64
		invalid      int64
		wantRate     string
	}{
		{
			name:      "mostly valid",
			validFull: 85,
			invalid:   15,
			wantRate:  "0.85",
		},
		{
			name:     "nothing validated yet",
			wantRate: "0",
		},
		{
			name:         "all valid, split full/partial",
			validFull:    40,
			validPartial: 10,
			wantRate:     "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Metrics{
				ValidFull:    tt.validFull,
				ValidPartial: tt.validPartial,
				Invalid:      tt.invalid,
			}

			exporter := NewPrometheusExporter(m)
			output := exporter.Export()

			expectedLine := "searchlight_candidate_hit_rate " + tt.wantRate
			if !strings.Contains(output, expectedLine) {
				t.Errorf("Export() candidate hit rate: want %q in output:\n%s", expectedLine, output)
			}
		})
	}
}
