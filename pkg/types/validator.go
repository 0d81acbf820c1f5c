package types

import "context"

// Validator is the interface every format-aware validator satisfies: a
// small capability interface implementations register against, looked up
// by name through a registry.Registry[Validator] keyed on
// FileTypeSpec.ValidatorName.
type Validator interface {
	// Validate inspects a candidate's bytes (supplied via Source, already
	// positioned by fragment) and returns a Validation verdict. Reader
	// implementations are responsible for presenting fragment boundaries;
	// the validator itself never reads past what Source yields.
	Validate(ctx context.Context, cand CarveCandidate, src CandidateSource) (Validation, error)
	// Name returns the registry key this validator is registered under.
	Name() string
}

// CandidateSource lets a Validator read the raw bytes of a CarveCandidate's
// fragments without knowing whether they came from a buffered file, an mmap
// region, or an async-prefetch queue. This is the validator-side half of
// the BlockReader abstraction.
type CandidateSource interface {
	// ReadFragment returns the bytes of fragment index i (0-based, in
	// CarveCandidate.Fragments order).
	ReadFragment(ctx context.Context, i int) ([]byte, error)
	// FragmentCount returns the number of fragments available.
	FragmentCount() int
	// ReadAt returns up to length bytes starting at an absolute stream
	// offset, outside the candidate's declared fragments. PNG/JPEG
	// bi-fragment reconstruction needs this to probe
	// subsequent clusters for a plausible continuation; it is a short
	// read, not an invitation to scan the whole stream.
	ReadAt(ctx context.Context, offset, length int64) ([]byte, error)
}

// MatchEngine is the interface both the CPU-AC and GPU-PFAC backends
// satisfy. ScanBlock returns every RawMatch found in block, given the
// pattern table built by internal/patterntable.
type MatchEngine interface {
	ScanBlock(ctx context.Context, block Block) ([]RawMatch, error)
	// Backend names which implementation produced the matches, for metrics
	// and the GPU-implicit fallback policy.
	Backend() string
}

// BlockReader is the interface all four io_strategy implementations
// satisfy. Next returns io.EOF (wrapped) once the stream is exhausted.
type BlockReader interface {
	Next(ctx context.Context) (Block, error)
	Close() error
}

// Writer is the external collaborator that stitches a Validation's
// fragments into an output file.
type Writer interface {
	WriteCandidate(ctx context.Context, v Validation, src CandidateSource) (path string, err error)
}
