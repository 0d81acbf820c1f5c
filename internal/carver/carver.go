// Package carver is the top-level orchestrator wiring the Streaming Reader,
// Match Engine, Pair Matcher, and Validator Framework into one pipelined,
// cancellable run: a reader stage and a match stage connected by
// a bounded channel for backpressure, a pair-matching step once the stream
// is exhausted, the Validator Framework's worker pool (pkg/scanner) over
// the resulting candidates, and a writer stage for every non-invalid
// verdict. One context.Context is threaded through every stage and checked
// at each boundary as the single cancellation token for the whole run.
package carver

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Will-Banksy/searchlight/internal/matchengine"
	"github.com/Will-Banksy/searchlight/internal/pairmatcher"
	"github.com/Will-Banksy/searchlight/internal/patterntable"
	"github.com/Will-Banksy/searchlight/internal/streamreader"
	"github.com/Will-Banksy/searchlight/internal/validator"
	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/metrics"
	"github.com/Will-Banksy/searchlight/pkg/scanner"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// blockQueueDepth bounds the reader-to-matcher channel, giving the reader
// stage backpressure against a slower match stage.
const blockQueueDepth = 4

// Options configures one carve run, carrying the abstract config keys
// plus the pieces internal/carver needs to wire them together.
type Options struct {
	BlockSize             int64
	ClusterSize           int64
	IOStrategy            types.IOStrategy
	UseGPU                bool
	// GPUImplicit marks whether UseGPU reflects an explicit caller request
	// or a resolved default. If implicit, a missing dispatcher or an
	// unavailable device makes selectEngine fall back to the CPU backend,
	// once, before scanning starts; if explicit, either aborts the run with
	// a ComputeError. A dispatch error during the scan is not retried on
	// the CPU backend in either case.
	GPUImplicit           bool
	Dispatcher            matchengine.ComputeDispatcher
	MaxMatchesPerDispatch int

	Specs      []types.FileTypeSpec
	Extensions map[string]string

	OutputDir      string
	ScannerOptions scanner.Options

	Metrics *metrics.Metrics
}

// Summary reports what one Run produced.
type Summary struct {
	BlocksRead       int64
	BytesScanned     int64
	RawMatches       int64
	CandidatesFormed int64
	Results          scanner.Results
	WrittenFiles     []string
}

// Run carves path according to opts: it streams the file through the match
// engine, pairs header/footer hits into candidates, validates them
// concurrently, and writes every valid-full/valid-partial candidate to
// opts.OutputDir.
func Run(ctx context.Context, path string, opts Options) (Summary, error) {
	m := opts.Metrics
	if m == nil {
		m = &metrics.Metrics{}
	}
	opts.ScannerOptions.Metrics = m

	table, err := buildTable(opts.Specs)
	if err != nil {
		return Summary{}, err
	}

	if opts.BlockSize < 2*int64(table.MaxPatternLen) {
		return Summary{}, errs.ConfigErrorf("block_size %d must be at least 2*max_pattern_len (%d)", opts.BlockSize, table.MaxPatternLen)
	}

	engine, err := selectEngine(ctx, table, opts)
	if err != nil {
		return Summary{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Summary{}, errs.NewIOError(fmt.Errorf("carver: open %s: %w", path, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Summary{}, errs.NewIOError(fmt.Errorf("carver: stat %s: %w", path, err))
	}
	size := info.Size()

	reader, err := streamreader.Open(path, streamreader.Options{
		BlockSize:     int(opts.BlockSize),
		MaxPatternLen: table.MaxPatternLen,
		Strategy:      opts.IOStrategy,
	})
	if err != nil {
		return Summary{}, errs.NewConfigError(err)
	}
	defer reader.Close()

	matches, blocksRead, bytesScanned, err := scanStream(ctx, reader, engine, m)
	if err != nil {
		return Summary{}, err
	}

	if gpu, ok := engine.(*matchengine.GPUEngine); ok {
		overflows, retries := gpu.Counters()
		atomic.AddInt64(&m.BufferOverflows, overflows)
		atomic.AddInt64(&m.DispatchRetries, retries)
	}

	candidates := pairmatcher.Match(matches, opts.Specs)
	atomic.AddInt64(&m.CandidatesFormed, int64(len(candidates)))

	specByID := make(map[string]types.FileTypeSpec, len(opts.Specs))
	for _, s := range opts.Specs {
		specByID[s.ID] = s
	}

	reg := validator.NewRegistry(opts.ClusterSize)

	writer, err := NewFileWriter(opts.OutputDir, f, opts.Extensions)
	if err != nil {
		return Summary{}, err
	}

	validate := func(ctx context.Context, cand types.CarveCandidate) (types.Validation, error) {
		spec, ok := specByID[cand.FileType]
		if !ok {
			return types.Validation{}, fmt.Errorf("carver: unknown file type %q", cand.FileType)
		}
		v, err := validator.Resolve(reg, spec)
		if err != nil {
			return types.Validation{}, err
		}
		src := newFileSource(f, size, cand)
		return v.Validate(ctx, cand, src)
	}

	sc := scanner.New(opts.ScannerOptions)
	results := sc.Run(ctx, candidates, validate)
	if results.Error != nil {
		return Summary{}, results.Error
	}

	var written []string
	for _, v := range results.Validations {
		if v.Verdict == types.VerdictInvalid {
			continue
		}
		src := newFileSource(f, size, v.Candidate)
		path, err := writer.WriteCandidate(ctx, v, src)
		if err != nil {
			return Summary{}, errs.NewIOError(err)
		}
		written = append(written, path)
	}

	return Summary{
		BlocksRead:       blocksRead,
		BytesScanned:     bytesScanned,
		RawMatches:       int64(len(matches)),
		CandidatesFormed: int64(len(candidates)),
		Results:          results,
		WrittenFiles:     written,
	}, nil
}

func buildTable(specs []types.FileTypeSpec) (*patterntable.StateTable, error) {
	var patterns []types.Pattern
	seen := make(map[uint64]bool)
	for _, s := range specs {
		if !seen[s.Header.ID] {
			patterns = append(patterns, s.Header)
			seen[s.Header.ID] = true
		}
		if s.HasFooter && !seen[s.Footer.ID] {
			patterns = append(patterns, s.Footer)
			seen[s.Footer.ID] = true
		}
	}
	table, err := patterntable.Build(patterns)
	if err != nil {
		return nil, errs.NewConfigError(err)
	}
	return table, nil
}

// selectEngine resolves the CPU or GPU backend: GPU is
// probed once at startup, never mid-run.
func selectEngine(ctx context.Context, table *patterntable.StateTable, opts Options) (types.MatchEngine, error) {
	if !opts.UseGPU {
		return matchengine.NewCPUEngine(table), nil
	}

	if opts.Dispatcher == nil {
		if opts.GPUImplicit {
			return matchengine.NewCPUEngine(table), nil
		}
		return nil, errs.ComputeErrorf("use_gpu requested but no compute dispatcher is configured")
	}

	capacity := opts.MaxMatchesPerDispatch
	if capacity <= 0 {
		capacity = 4096
	}

	gpu, err := matchengine.NewGPUEngine(ctx, opts.Dispatcher, table, capacity)
	if err != nil {
		if opts.GPUImplicit {
			return matchengine.NewCPUEngine(table), nil
		}
		return nil, errs.NewComputeError(err)
	}
	return gpu, nil
}

// scanStream drives the reader stage and the match stage concurrently,
// connected by a bounded channel, and returns every RawMatch found across
// the whole stream in block order.
func scanStream(ctx context.Context, reader types.BlockReader, engine types.MatchEngine, m *metrics.Metrics) ([]types.RawMatch, int64, int64, error) {
	blockCh := make(chan types.Block, blockQueueDepth)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(blockCh)
		for {
			block, err := reader.Next(gctx)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return errs.NewIOError(err)
			}
			select {
			case blockCh <- block:
			case <-gctx.Done():
				return gctx.Err()
			}
			if block.Final {
				return nil
			}
		}
	})

	var matches []types.RawMatch
	var blocksRead, bytesScanned int64

	g.Go(func() error {
		for block := range blockCh {
			found, err := engine.ScanBlock(gctx, block)
			if err != nil {
				return errs.NewComputeError(err)
			}
			matches = append(matches, found...)
			blocksRead++
			bytesScanned += int64(len(block.Data))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	// Adjacent blocks overlap by MaxPatternLen-1 bytes, so a
	// match wholly contained in that overlap is scanned once as the tail
	// of block N and again as the head of block N+1. Dedup by
	// (start_offset, pattern_id) restores invariant 2 before matches reach
	// the Pair Matcher.
	matches = matchengine.Dedupe(matches)

	atomic.AddInt64(&m.BlocksRead, blocksRead)
	atomic.AddInt64(&m.BytesScanned, bytesScanned)
	atomic.AddInt64(&m.RawMatches, int64(len(matches)))

	return matches, blocksRead, bytesScanned, nil
}
