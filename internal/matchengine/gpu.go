package matchengine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Will-Banksy/searchlight/internal/patterntable"
	"github.com/Will-Banksy/searchlight/pkg/retry"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// ComputeDispatcher is the host-side binding to a real PFAC compute
// backend: one worker per input byte position. This package does not
// implement an actual GPU kernel — no compute-API dependency exists to
// ground one on — it defines the contract an external binding must
// satisfy: dispatch a block against a compiled table into a
// fixed-capacity output buffer and report whether the buffer
// overflowed, mirroring the "first machine word is a
// match counter; fixed-width records follow" protocol at the Go API
// boundary rather than as a literal memory layout.
type ComputeDispatcher interface {
	// Dispatch scans data against table and returns every match found
	// whose terminal was reached within capacity output slots, plus
	// whether the counter exceeded capacity (some matches were dropped).
	// Offsets in returned matches are relative to data[0].
	Dispatch(ctx context.Context, table *patterntable.StateTable, data []byte, capacity int) (matches []types.RawMatch, overflowed bool, err error)
	// Available reports whether a compute device is present and usable.
	// Consulted once, at startup.
	Available(ctx context.Context) bool
}

// GPUEngine adapts a ComputeDispatcher to the types.MatchEngine interface,
// handling the host-side responsibilities: detecting overflow and
// re-dispatching a smaller slice, and retrying transient dispatch
// failures before giving up.
type GPUEngine struct {
	dispatcher ComputeDispatcher
	table      *patterntable.StateTable
	capacity   int
	retryCfg   retry.Config

	// overflows and retries count the host halving the dispatch slice and
	// retrying; both are exposed via Counters so internal/carver can attribute
	// them without this package importing pkg/metrics directly.
	overflows int64
	retries   int64
}

// Counters returns the running totals of buffer overflows and dispatch
// retries observed so far, for the caller to fold into pkg/metrics.
func (e *GPUEngine) Counters() (overflows, retries int64) {
	return atomic.LoadInt64(&e.overflows), atomic.LoadInt64(&e.retries)
}

// NewGPUEngine probes dispatcher for availability and returns
// ErrComputeUnavailable (wrapped) if no device is present, so the caller
// can fall back to CPUEngine once, at startup. capacity is the
// dispatcher's fixed output-buffer size in match records.
func NewGPUEngine(ctx context.Context, dispatcher ComputeDispatcher, table *patterntable.StateTable, capacity int) (*GPUEngine, error) {
	if !dispatcher.Available(ctx) {
		return nil, fmt.Errorf("%w: no PFAC compute device", ErrComputeUnavailable)
	}
	return &GPUEngine{
		dispatcher: dispatcher,
		table:      table,
		capacity:   capacity,
		retryCfg:   retry.DefaultConfig(),
	}, nil
}

// Backend returns "gpu".
func (e *GPUEngine) Backend() string { return "gpu" }

// ScanBlock dispatches block.Data and, on overflow, halves the slice and
// re-dispatches each half. Transient dispatch errors (everything but
// overflow) are retried with backoff via pkg/retry before being treated
// as fatal — a dispatch error only aborts the run once retries are
// exhausted.
func (e *GPUEngine) ScanBlock(ctx context.Context, block types.Block) ([]types.RawMatch, error) {
	matches, err := e.scanRange(ctx, block.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("pfac dispatch: %w", err)
	}
	for i := range matches {
		matches[i].StartOffset += block.Offset
		matches[i].EndOffset += block.Offset
	}
	return matches, nil
}

func (e *GPUEngine) scanRange(ctx context.Context, data []byte, base int64) ([]types.RawMatch, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var matches []types.RawMatch
	var overflowed bool
	var call int

	err := retry.Do(ctx, e.retryCfg, func() error {
		if call > 0 {
			atomic.AddInt64(&e.retries, 1)
		}
		call++
		matches = nil
		var derr error
		matches, overflowed, derr = e.dispatcher.Dispatch(ctx, e.table, data, e.capacity)
		return derr
	})
	if err != nil {
		return nil, err
	}

	for i := range matches {
		matches[i].StartOffset += base
		matches[i].EndOffset += base
	}

	if !overflowed {
		return matches, nil
	}

	atomic.AddInt64(&e.overflows, 1)

	mid := len(data) / 2
	// Overlap the split by MaxPatternLen-1 so a match straddling the
	// split point is still found by one of the two halves, the same
	// overlap rule the Streaming Reader applies across block boundaries:
	// the left half runs MaxPatternLen-1 bytes past mid, the right half
	// starts at mid.
	overlap := e.table.MaxPatternLen - 1
	leftEnd := mid + overlap
	rightStart := mid

	if len(data) <= e.table.MaxPatternLen || leftEnd >= len(data) {
		// Cannot split further without breaking a possible match; report
		// what the last dispatch returned even though it's truncated.
		return matches, nil
	}

	left, err := e.scanRange(ctx, data[:leftEnd], base)
	if err != nil {
		return nil, err
	}
	right, err := e.scanRange(ctx, data[rightStart:], base+int64(rightStart))
	if err != nil {
		return nil, err
	}

	return Dedupe(append(left, right...)), nil
}

// Dedupe removes duplicate matches sharing a (start_offset, pattern_id)
// key. Both the GPU engine's overflow-split halves and the carver's
// cross-block match stream (internal/carver.scanStream) share this one
// definition of "duplicate".
func Dedupe(matches []types.RawMatch) []types.RawMatch {
	type key struct {
		start int64
		id    uint64
	}
	seen := make(map[key]bool, len(matches))
	out := matches[:0]
	for _, m := range matches {
		k := key{m.StartOffset, m.PatternID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}

var _ types.MatchEngine = (*GPUEngine)(nil)
