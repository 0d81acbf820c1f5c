package generic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

type memSource struct {
	stream []byte
}

func (s *memSource) FragmentCount() int { return 1 }

func (s *memSource) ReadFragment(ctx context.Context, i int) ([]byte, error) {
	return s.stream, nil
}

func (s *memSource) ReadAt(ctx context.Context, offset, length int64) ([]byte, error) {
	if offset < 0 || offset > int64(len(s.stream)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(s.stream)) {
		end = int64(len(s.stream))
	}
	return s.stream[offset:end], nil
}

func TestValidateAcceptsMatchingSniff(t *testing.T) {
	data := []byte("%PDF-1.4\n%moredata")
	src := &memSource{stream: data}
	cand := types.CarveCandidate{FileType: "pdf", Fragments: []types.Fragment{{StartOffset: 0, EndOffset: int64(len(data))}}}

	v := New()
	result, err := v.Validate(context.Background(), cand, src)
	require.NoError(t, err)
	require.Equal(t, types.VerdictValidFull, result.Verdict)
}

func TestValidateRejectsMismatchedExtension(t *testing.T) {
	data := []byte("%PDF-1.4\n%moredata")
	src := &memSource{stream: data}
	cand := types.CarveCandidate{FileType: "gif", Fragments: []types.Fragment{{StartOffset: 0, EndOffset: int64(len(data))}}}

	v := New()
	result, err := v.Validate(context.Background(), cand, src)
	require.NoError(t, err)
	require.Equal(t, types.VerdictInvalid, result.Verdict)
}
