package scanner

import (
	"time"

	"github.com/Will-Banksy/searchlight/pkg/metrics"
)

// Options configures the Validator Framework's worker pool.
type Options struct {
	// Concurrency is the maximum number of candidates validated in parallel.
	Concurrency int

	// Timeout is the overall timeout for all candidate validations.
	Timeout time.Duration

	// CandidateTimeout is the maximum time allowed for a single candidate's
	// validation. Validators block on nothing but held buffers, so this
	// mainly guards against a pathological fragment-reader stall rather
	// than genuine validator CPU work.
	CandidateTimeout time.Duration

	// RetryCount is the number of times to retry a candidate whose
	// validation returned an error (as opposed to an invalid verdict,
	// which is never retried — an invalid verdict never fails the run).
	RetryCount int

	// RetryBackoff is the delay between retry attempts.
	RetryBackoff time.Duration

	// Metrics is the optional metrics tracker for run statistics. If nil,
	// metrics tracking is disabled.
	Metrics *metrics.Metrics
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:      10,
		Timeout:          30 * time.Minute,
		CandidateTimeout: 1 * time.Minute,
		RetryCount:       0,
		RetryBackoff:     1 * time.Second,
	}
}
