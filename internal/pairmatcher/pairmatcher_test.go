package pairmatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

func mkSpec(id string, header, footer types.Pattern, hasFooter, requires bool, maxSize int64) types.FileTypeSpec {
	return types.FileTypeSpec{
		ID:             id,
		Header:         header,
		Footer:         footer,
		HasFooter:      hasFooter,
		RequiresFooter: requires,
		MaxSize:        maxSize,
	}
}

func TestMatchRequiresFooterDiscardsWithoutOne(t *testing.T) {
	header := types.NewLiteralPattern([]byte("HDR"))
	footer := types.NewLiteralPattern([]byte("FTR"))
	spec := mkSpec("zip", header, footer, true, true, 1000)

	matches := []types.RawMatch{
		{PatternID: header.ID, StartOffset: 10, EndOffset: 13},
	}

	cands := Match(matches, []types.FileTypeSpec{spec})
	require.Empty(t, cands, "header with no footer and RequiresFooter=true must be discarded")
}

func TestMatchNearestFooterWins(t *testing.T) {
	header := types.NewLiteralPattern([]byte("HDR"))
	footer := types.NewLiteralPattern([]byte("FTR"))
	spec := mkSpec("png", header, footer, true, true, 1000)

	matches := []types.RawMatch{
		{PatternID: header.ID, StartOffset: 10, EndOffset: 13},
		{PatternID: footer.ID, StartOffset: 50, EndOffset: 53},
		{PatternID: footer.ID, StartOffset: 20, EndOffset: 23}, // nearest
		{PatternID: footer.ID, StartOffset: 30, EndOffset: 33},
	}

	cands := Match(matches, []types.FileTypeSpec{spec})
	require.Len(t, cands, 1)
	start, end := cands[0].Span()
	require.Equal(t, int64(10), start)
	require.Equal(t, int64(23), end, "expected the nearest footer at offset 20 (end 23), not 30 or 50")
}

func TestMatchOptionalFooterFallsBackToMaxSize(t *testing.T) {
	header := types.NewLiteralPattern([]byte("HDR"))
	footer := types.NewLiteralPattern([]byte("FTR"))
	spec := mkSpec("jpeg", header, footer, true, false, 100)

	matches := []types.RawMatch{
		{PatternID: header.ID, StartOffset: 10, EndOffset: 13},
	}

	cands := Match(matches, []types.FileTypeSpec{spec})
	require.Len(t, cands, 1)
	_, end := cands[0].Span()
	require.Equal(t, int64(110), end)
}

func TestMatchHeaderOnlyTypeUsesMaxSize(t *testing.T) {
	header := types.NewLiteralPattern([]byte("HDR"))
	spec := mkSpec("raw", header, types.Pattern{}, false, false, 500)

	matches := []types.RawMatch{
		{PatternID: header.ID, StartOffset: 0, EndOffset: 3},
	}

	cands := Match(matches, []types.FileTypeSpec{spec})
	require.Len(t, cands, 1)
	_, end := cands[0].Span()
	require.Equal(t, int64(500), end)
}

// TestMatchOverlappingHeadersEachProduceCandidate covers this:
// "Headers may overlap; each header produces its own candidate. Duplicate
// candidates are not suppressed."
func TestMatchOverlappingHeadersEachProduceCandidate(t *testing.T) {
	header := types.NewLiteralPattern([]byte("HDR"))
	footer := types.NewLiteralPattern([]byte("FTR"))
	spec := mkSpec("png", header, footer, true, true, 1000)

	matches := []types.RawMatch{
		{PatternID: header.ID, StartOffset: 10, EndOffset: 13},
		{PatternID: header.ID, StartOffset: 11, EndOffset: 14},
		{PatternID: footer.ID, StartOffset: 50, EndOffset: 53},
	}

	cands := Match(matches, []types.FileTypeSpec{spec})
	require.Len(t, cands, 2)
}
