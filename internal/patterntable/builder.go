// Package patterntable compiles a set of wildcard-capable byte patterns
// into the failureless transition table the Match Engine walks.
//
// Unlike a classical Aho-Corasick automaton, which adds failure links so
// a mismatch can resume at the longest matching suffix, this table is
// explicitly failureless: a mismatch restarts at state 0, matching the
// PFAC worker model of one independent worker per byte position with no
// shared automaton state between workers. It is a plain trie with a
// dedicated wildcard column, built up front and consulted read-only
// thereafter.
package patterntable

import (
	"fmt"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

// WildcardColumn is the extra column (beyond the 256 concrete byte values)
// a pattern's wildcard position transitions through.
const WildcardColumn = 256

// numColumns is 256 concrete byte values plus the wildcard column.
const numColumns = 257

// FailState is the table's "no transition" sentinel. It doubles as the start state: state 0 is both the
// automaton's initial state and the trie root, matching this ("State 0
// is the initial state").
const FailState = 0

// Terminal is the sentinel written into a table cell to mean "pattern
// matched" rather than "transition to this state index".
const Terminal uint32 = 0xFFFFFFFF

// StateTable is the compiled, read-only automaton. Table is
// addressed Table[state][column], where column is a byte value in [0,255]
// or WildcardColumn. The Match Engine (internal/matchengine) is the only
// other package that reads it.
type StateTable struct {
	// Table holds NumStates rows of numColumns entries each.
	Table [][numColumns]uint32
	// TerminalPattern holds, at exactly the cells where Table is Terminal,
	// the pattern ID that terminates there. It is zero everywhere else.
	TerminalPattern [][numColumns]uint64
	// PatternLen maps a pattern ID to its element count. The Match Engine
	// does not read it; it takes a match's end offset from the position
	// where its walk reached the terminal cell.
	PatternLen map[uint64]int
	// MaxPatternLen is the longest registered pattern, bounding how many
	// bytes a single match-engine walk ever needs to consume (it reads
	// bytes [i, i+max_pat_len)).
	MaxPatternLen int
	NumStates     int
}

// Build compiles patterns into a StateTable. It returns a ConfigError
// (wrapped) if two distinct patterns share a 64-bit fingerprint: every
// fingerprint is computed up front and a collision refused at
// table-compile time, rather than letting it corrupt a match later.
func Build(patterns []types.Pattern) (*StateTable, error) {
	if err := checkFingerprintCollisions(patterns); err != nil {
		return nil, err
	}

	st := &StateTable{
		Table:           [][numColumns]uint32{{}},
		TerminalPattern: [][numColumns]uint64{{}},
		PatternLen:      make(map[uint64]int, len(patterns)),
		NumStates:       1,
	}

	for _, p := range patterns {
		st.insert(p)
		if p.Len() > st.MaxPatternLen {
			st.MaxPatternLen = p.Len()
		}
	}

	return st, nil
}

// insert walks the trie from the root, allocating new states as needed,
// and marks the cell reached by the pattern's final element as terminal.
//
// If a shorter, previously inserted pattern is a strict prefix of p, its
// terminal marker already occupies the cell p needs to continue through;
// insert stops there and p becomes unreachable beyond that point. This is
// not a bug: a PFAC/CPU-AC worker abandons its walk at the first terminal
// it reaches, so a shorter pattern sharing a longer one's prefix always
// wins, deterministically, regardless of insertion order.
func (st *StateTable) insert(p types.Pattern) {
	state := FailState
	for i, elem := range p.Elems {
		col := column(elem)
		last := i == len(p.Elems)-1

		cell := st.Table[state][col]
		if cell == Terminal {
			// A shorter pattern already claimed this path; p is shadowed
			// from here on (see doc comment above).
			return
		}

		if last {
			st.Table[state][col] = Terminal
			st.TerminalPattern[state][col] = p.ID
			st.PatternLen[p.ID] = p.Len()
			return
		}

		if cell == FailState {
			next := st.newState()
			st.Table[state][col] = uint32(next)
			state = next
			continue
		}

		state = int(cell)
	}
}

// newState appends a fresh, all-fail row and returns its index.
func (st *StateTable) newState() int {
	st.Table = append(st.Table, [numColumns]uint32{})
	st.TerminalPattern = append(st.TerminalPattern, [numColumns]uint64{})
	st.NumStates++
	return st.NumStates - 1
}

func column(e types.PatternElem) int {
	if e.IsWildcard() {
		return WildcardColumn
	}
	return int(e.Byte())
}

func checkFingerprintCollisions(patterns []types.Pattern) error {
	seen := make(map[uint64]types.Pattern, len(patterns))
	for _, p := range patterns {
		if prior, ok := seen[p.ID]; ok && !elemsEqual(prior.Elems, p.Elems) {
			return fmt.Errorf("%w: patterns %s and %s share fingerprint %x", ErrFingerprintCollision, prior, p, p.ID)
		}
		seen[p.ID] = p
	}
	return nil
}

func elemsEqual(a, b []types.PatternElem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
