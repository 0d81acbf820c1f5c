// Package scanner implements the Validator Framework's concurrency model:
// a worker pool with one goroutine per CarveCandidate, bounded by
// Options.Concurrency, using golang.org/x/sync/errgroup with SetLimit and
// retried per pkg/retry. Results are reassembled into ascending
// stream-offset order before being handed to the writer collaborator,
// even though validations may complete out of order.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Will-Banksy/searchlight/pkg/metrics"
	"github.com/Will-Banksy/searchlight/pkg/retry"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// ValidateFunc validates a single CarveCandidate. internal/carver supplies
// this closure (wrapping internal/validator's registry lookup) so this
// package stays independent of the Validator Framework's registry wiring.
type ValidateFunc func(ctx context.Context, cand types.CarveCandidate) (types.Validation, error)

// Scanner runs candidate validations concurrently with configurable limits.
type Scanner struct {
	opts             Options
	progressCallback func(completed, total int)
	metrics          *metrics.Metrics
}

// Results contains the aggregated results from all candidate validations.
type Results struct {
	// Validations holds every candidate's verdict, sorted by ascending
	// stream offset.
	Validations []types.Validation

	// Total is the total number of candidates submitted.
	Total int

	ValidFull    int
	ValidPartial int
	Invalid      int

	// Errors contains validation-call errors (not invalid verdicts, which
	// are not errors).
	Errors []error

	// Error is the overall error if the run itself was aborted (context
	// cancellation/deadline).
	Error error
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	m := opts.Metrics
	if m == nil {
		m = &metrics.Metrics{}
	}
	return &Scanner{opts: opts, metrics: m}
}

// SetProgressCallback sets a callback invoked after each candidate completes.
func (s *Scanner) SetProgressCallback(callback func(completed, total int)) {
	s.progressCallback = callback
}

// Run validates every candidate concurrently and returns aggregated results.
func (s *Scanner) Run(ctx context.Context, candidates []types.CarveCandidate, validate ValidateFunc) Results {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	results := Results{
		Validations: make([]types.Validation, 0, len(candidates)),
		Total:       len(candidates),
		Errors:      make([]error, 0),
	}
	if len(candidates) == 0 {
		return results
	}

	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, cand := range candidates {
		cand := cand

		g.Go(func() error {
			candCtx := gctx
			if s.opts.CandidateTimeout > 0 {
				var cancel context.CancelFunc
				candCtx, cancel = context.WithTimeout(gctx, s.opts.CandidateTimeout)
				defer cancel()
			}

			var v types.Validation
			var err error

			if s.opts.RetryCount > 0 {
				cfg := retry.Config{
					MaxAttempts:  s.opts.RetryCount + 1,
					InitialDelay: s.opts.RetryBackoff,
					MaxDelay:     s.opts.RetryBackoff * 10,
					Multiplier:   1.0,
					Jitter:       0.1,
				}
				err = retry.Do(candCtx, cfg, func() error {
					var verr error
					v, verr = validate(candCtx, cand)
					return verr
				})
			} else {
				v, err = validate(candCtx, cand)
			}

			if candCtx.Err() != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				completed++
				results.Errors = append(results.Errors, fmt.Errorf("candidate %s@%d timeout: %w", cand.FileType, firstOffset(cand), candCtx.Err()))
				if s.progressCallback != nil {
					s.progressCallback(completed, results.Total)
				}
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			completed++

			if err != nil {
				results.Errors = append(results.Errors, fmt.Errorf("candidate %s@%d validation: %w", cand.FileType, firstOffset(cand), err))
			} else {
				results.Validations = append(results.Validations, v)
				switch v.Verdict {
				case types.VerdictValidFull:
					results.ValidFull++
					atomic.AddInt64(&s.metrics.ValidFull, 1)
				case types.VerdictValidPartial:
					results.ValidPartial++
					atomic.AddInt64(&s.metrics.ValidPartial, 1)
				default:
					results.Invalid++
					atomic.AddInt64(&s.metrics.Invalid, 1)
				}
			}

			if s.progressCallback != nil {
				s.progressCallback(completed, results.Total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		results.Error = err
	}

	sort.Slice(results.Validations, func(i, j int) bool {
		return firstOffset(results.Validations[i].Candidate) < firstOffset(results.Validations[j].Candidate)
	})

	return results
}

func firstOffset(cand types.CarveCandidate) int64 {
	if len(cand.Fragments) == 0 {
		return 0
	}
	start, _ := cand.Span()
	return start
}
