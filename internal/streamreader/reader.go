// Package streamreader implements the Streaming Reader: a
// finite lazy sequence of Blocks pulled from a source file, carrying
// absolute offsets and overlapping adjacent blocks by max_pat_len-1 bytes
// so a pattern straddling a block boundary is never missed.
//
// Four io_strategy implementations share one BlockReader interface
// (types.BlockReader): buffered, mmap-backed, direct, and an async-queue
// prefetcher. Strategy is a tuning knob — all four are required to
// deliver bit-identical block content for the same input; see
// reader_test.go.
package streamreader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Will-Banksy/searchlight/pkg/types"
)

// ErrBlockSizeTooSmall is a ConfigError-classified error: block size must
// be at least 2*max_pat_len for the overlap logic to be well-defined.
var ErrBlockSizeTooSmall = errors.New("block size must be at least 2*max_pattern_len")

// Options configures a reader regardless of which IOStrategy backs it.
type Options struct {
	BlockSize     int
	MaxPatternLen int
	Strategy      types.IOStrategy
}

// overlap is how many trailing bytes of the previous block are re-read at
// the start of the next one.
func (o Options) overlap() int {
	if o.MaxPatternLen <= 1 {
		return 0
	}
	return o.MaxPatternLen - 1
}

func (o Options) validate() error {
	if o.BlockSize < 2*o.MaxPatternLen {
		return fmt.Errorf("%w: block_size=%d max_pat_len=%d", ErrBlockSizeTooSmall, o.BlockSize, o.MaxPatternLen)
	}
	return nil
}

// Open opens path and returns a BlockReader using the strategy named in
// opts.Strategy. Open always runs opts.validate() and refuses to construct
// a reader below the 2*max_pat_len block-size floor, since nothing
// downstream can use a reader built on an ill-defined overlap; no option
// skips this check.
func Open(path string, opts Options) (types.BlockReader, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("streamreader: open %s: %w", path, err)
	}

	switch opts.Strategy {
	case types.IOStrategyBuffered, "":
		return newBufferedReader(f, opts)
	case types.IOStrategyMmap:
		return newMmapReader(f, opts)
	case types.IOStrategyDirect:
		return newDirectReader(f, opts)
	case types.IOStrategyAsyncQueue:
		return newAsyncQueueReader(f, opts)
	default:
		f.Close()
		return nil, fmt.Errorf("streamreader: unknown io_strategy %q", opts.Strategy)
	}
}

// readBlockAt is the shared "read one block at an absolute file offset,
// including the leading overlap" primitive every strategy's Next ends up
// calling; it's factored out so the four implementations differ only in
// how they fetch bytes (io.ReaderAt, a goroutine-fed pipeline, ...) and not
// in offset/overlap bookkeeping.
func readBlockAt(r io.ReaderAt, size int64, cursor int64, ov int, blockSize int) (types.Block, error) {
	start := cursor - int64(ov)
	if start < 0 {
		start = 0
	}

	want := int64(blockSize) + int64(ov)
	if start+want > size {
		want = size - start
	}
	if want <= 0 {
		return types.Block{}, io.EOF
	}

	buf := make([]byte, want)
	n, err := r.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return types.Block{}, fmt.Errorf("streamreader: read at %d: %w", start, err)
	}

	final := start+int64(n) >= size
	return types.Block{
		Offset: start,
		Data:   buf[:n],
		Final:  final,
	}, nil
}

// advance computes the next cursor position (the next block's "new" data
// start, i.e. excluding the overlap that will be re-read) given the
// current block just emitted.
func advance(b types.Block, ov int) int64 {
	return b.Offset + int64(len(b.Data))
}
