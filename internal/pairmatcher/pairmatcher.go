// Package pairmatcher implements the Pair Matcher: it turns a
// stream of RawMatches plus the registered FileTypeSpecs into
// CarveCandidates by pairing each header hit with the nearest in-range
// footer hit (or a computed maximum-length boundary, for footer-less or
// footer-optional types).
package pairmatcher

import (
	"sort"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

// Match pairs every header hit in matches against the nearest qualifying
// footer hit per its FileTypeSpec. Headers may overlap; every header
// produces its own candidate, and duplicate candidates are not
// suppressed here — the validator decides.
func Match(matches []types.RawMatch, specs []types.FileTypeSpec) []types.CarveCandidate {
	headerPatternID := make(map[uint64]types.FileTypeSpec, len(specs))
	footerPatternID := make(map[uint64]types.FileTypeSpec, len(specs))
	for _, s := range specs {
		headerPatternID[s.Header.ID] = s
		if s.HasFooter {
			footerPatternID[s.Footer.ID] = s
		}
	}

	// Bucket header/footer hits per file type, each sorted by offset so
	// the nearest-footer-wins search can binary search/scan forward.
	headersByType := make(map[string][]types.RawMatch)
	footersByType := make(map[string][]types.RawMatch)

	for _, m := range matches {
		if s, ok := headerPatternID[m.PatternID]; ok {
			headersByType[s.ID] = append(headersByType[s.ID], m)
		}
		if s, ok := footerPatternID[m.PatternID]; ok {
			footersByType[s.ID] = append(footersByType[s.ID], m)
		}
	}
	for id := range footersByType {
		sortByStart(footersByType[id])
	}

	var out []types.CarveCandidate
	for _, s := range specs {
		for _, h := range headersByType[s.ID] {
			cand, ok := pairOne(s, h, footersByType[s.ID])
			if ok {
				out = append(out, cand)
			}
		}
	}
	return out
}

func sortByStart(matches []types.RawMatch) {
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartOffset < matches[j].StartOffset })
}

// pairOne applies the three-way footer rule for a single header hit:
// required footer, optional footer, or no footer at all.
func pairOne(s types.FileTypeSpec, h types.RawMatch, footers []types.RawMatch) (types.CarveCandidate, bool) {
	maxEnd := h.StartOffset + s.MaxSize
	if s.MaxSize <= 0 {
		maxEnd = h.StartOffset // no computed fallback boundary is possible; see below
	}

	footer, found := nearestFooter(footers, h.StartOffset, h.StartOffset+s.MaxSize)

	switch {
	case s.HasFooter && s.RequiresFooter:
		if !found {
			return types.CarveCandidate{}, false
		}
		return buildCandidate(s, h, footer, true), true

	case s.HasFooter && !s.RequiresFooter:
		if found {
			return buildCandidate(s, h, footer, true), true
		}
		return buildCandidateToOffset(s, h, maxEnd), s.MaxSize > 0

	default: // no footer at all
		return buildCandidateToOffset(s, h, maxEnd), s.MaxSize > 0
	}
}

// nearestFooter returns the smallest footer offset strictly greater than
// headerStart and at most maxEnd.
func nearestFooter(footers []types.RawMatch, headerStart, maxEnd int64) (types.RawMatch, bool) {
	i := sort.Search(len(footers), func(i int) bool { return footers[i].StartOffset > headerStart })
	if i >= len(footers) {
		return types.RawMatch{}, false
	}
	if footers[i].StartOffset > maxEnd {
		return types.RawMatch{}, false
	}
	return footers[i], true
}

func buildCandidate(s types.FileTypeSpec, h, f types.RawMatch, hasFooter bool) types.CarveCandidate {
	return types.CarveCandidate{
		FileType:    s.ID,
		Fragments:   []types.Fragment{{StartOffset: h.StartOffset, EndOffset: f.EndOffset}},
		HeaderMatch: h,
		FooterMatch: f,
		HasFooter:   hasFooter,
	}
}

func buildCandidateToOffset(s types.FileTypeSpec, h types.RawMatch, end int64) types.CarveCandidate {
	return types.CarveCandidate{
		FileType:    s.ID,
		Fragments:   []types.Fragment{{StartOffset: h.StartOffset, EndOffset: end}},
		HeaderMatch: h,
		HasFooter:   false,
	}
}
