package carver

import (
	"context"
	"fmt"
	"os"

	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// fileSource is the types.CandidateSource implementation backing validators
// during a carve run: it reads a CarveCandidate's fragments straight off the
// source file via ReadAt, the same random-access primitive the streaming
// reader's strategies already use.
type fileSource struct {
	f    *os.File
	size int64
	cand types.CarveCandidate
}

func newFileSource(f *os.File, size int64, cand types.CarveCandidate) *fileSource {
	return &fileSource{f: f, size: size, cand: cand}
}

// ReadFragment returns fragment i's bytes (this: validators read
// "already positioned by fragment").
func (s *fileSource) ReadFragment(ctx context.Context, i int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.cand.Fragments) {
		return nil, fmt.Errorf("carver: fragment index %d out of range (have %d)", i, len(s.cand.Fragments))
	}
	frag := s.cand.Fragments[i]
	return s.ReadAt(ctx, frag.StartOffset, frag.Len())
}

// FragmentCount reports how many fragments this candidate carries.
func (s *fileSource) FragmentCount() int {
	return len(s.cand.Fragments)
}

// ReadAt reads up to length bytes at an absolute stream offset, clamped to
// the file's extent, for bi-fragment reconstruction probes beyond the
// candidate's own declared fragments.
func (s *fileSource) ReadAt(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || offset > s.size {
		return nil, errs.IOErrorf("carver: read offset %d out of range (size %d)", offset, s.size)
	}
	if offset+length > s.size {
		length = s.size - offset
	}
	if length <= 0 {
		return nil, nil
	}

	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, errs.NewIOError(fmt.Errorf("carver: read at %d: %w", offset, err))
	}
	return buf[:n], nil
}

var _ types.CandidateSource = (*fileSource)(nil)
