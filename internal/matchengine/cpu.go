package matchengine

import (
	"context"

	"github.com/Will-Banksy/searchlight/internal/patterntable"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// CPUEngine is the classical Aho-Corasick fallback backend (this:
// "for portability and as fallback"). It is always available and produces
// the same RawMatch sequence as the GPU backend for the same input: it
// performs the identical per-position table walk the GPU backend dispatches
// to many workers, just sequentially on one goroutine.
type CPUEngine struct {
	table *patterntable.StateTable
}

// NewCPUEngine wraps a compiled StateTable for sequential scanning.
func NewCPUEngine(table *patterntable.StateTable) *CPUEngine {
	return &CPUEngine{table: table}
}

// Backend returns "cpu".
func (e *CPUEngine) Backend() string { return "cpu" }

// ScanBlock walks every start position in block.Data and reports the
// matches found, translated into absolute stream offsets via block.Offset.
func (e *CPUEngine) ScanBlock(ctx context.Context, block types.Block) ([]types.RawMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matches []types.RawMatch
	maxLen := e.table.MaxPatternLen
	if maxLen == 0 {
		return nil, nil
	}

	for i := range block.Data {
		m, ok := scanFrom(e.table, block.Data, i, maxLen)
		if !ok {
			continue
		}
		m.StartOffset += block.Offset
		m.EndOffset += block.Offset
		matches = append(matches, m)
	}

	return matches, nil
}

var _ types.MatchEngine = (*CPUEngine)(nil)
