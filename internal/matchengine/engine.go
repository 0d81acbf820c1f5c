// Package matchengine implements the two backends that walk a compiled
// internal/patterntable.StateTable and emit RawMatch sequences: a
// sequential CPU Aho-Corasick walk and a GPU PFAC dispatcher contract.
// Both follow a "build the table once, scan many blocks, report matches"
// shape, keyed by a pattern-id -> types.FileTypeSpec map.
package matchengine

import (
	"errors"

	"github.com/Will-Banksy/searchlight/internal/patterntable"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// ErrComputeUnavailable is returned by a GPU-backed engine when no compute
// device can be acquired at startup: CPU fallback is engaged at startup
// if no compute device is available, never mid-run.
var ErrComputeUnavailable = errors.New("compute backend unavailable")

// scanFrom walks the table starting fresh at state 0 from haystack[start],
// bounded by maxLen bytes, and returns a match if a terminal is reached
// before a fail transition or the bound is exhausted. This single helper
// implements the per-start-position walk both backends perform — the CPU
// backend calls it in a sequential loop over every start position, and the
// GPU dispatcher contract documents it as the per-worker algorithm a real
// compute backend must replicate.
//
// At each step the concrete-byte column is consulted first and the
// wildcard column only as a fallback when the concrete cell is the fail
// sentinel.
func scanFrom(st *patterntable.StateTable, haystack []byte, start int, maxLen int) (types.RawMatch, bool) {
	state := patterntable.FailState
	end := start + maxLen
	if end > len(haystack) {
		end = len(haystack)
	}

	for i := start; i < end; i++ {
		b := haystack[i]
		col := int(b)
		cell := st.Table[state][col]
		if cell == patterntable.FailState {
			col = patterntable.WildcardColumn
			cell = st.Table[state][col]
		}

		if cell == patterntable.Terminal {
			return types.RawMatch{
				PatternID:   st.TerminalPattern[state][col],
				StartOffset: int64(start),
				EndOffset:   int64(i + 1),
			}, true
		}

		if cell == patterntable.FailState {
			return types.RawMatch{}, false
		}

		state = int(cell)
	}

	return types.RawMatch{}, false
}
