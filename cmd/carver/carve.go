package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Will-Banksy/searchlight/internal/carver"
	"github.com/Will-Banksy/searchlight/pkg/cli"
	"github.com/Will-Banksy/searchlight/pkg/config"
	"github.com/Will-Banksy/searchlight/pkg/errs"
	"github.com/Will-Banksy/searchlight/pkg/filetypes"
	"github.com/Will-Banksy/searchlight/pkg/metrics"
	"github.com/Will-Banksy/searchlight/pkg/scanner"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// lastExitCode lets execute() signal a non-zero-but-not-an-error outcome
// (exit code 4, "partial success") back to main without hijacking kong's
// single error return value the way a fatal ConfigError/IOError/
// ComputeError does.
var lastExitCode int

// fileTypeWiresFromConfig loads wires from configFile if given, otherwise
// the built-in PNG/JPEG/ZIP definitions for a caller that supplies none
// of its own. Shared by `list` and `carve` so both see the same
// file-type universe.
func fileTypeWiresFromConfig(configFile string) ([]filetypes.Wire, error) {
	if configFile == "" {
		return filetypes.Default(), nil
	}
	cfg, err := config.LoadConfigKoanf(configFile)
	if err != nil {
		return nil, errs.NewConfigError(err)
	}
	if len(cfg.FileTypes) == 0 {
		return filetypes.Default(), nil
	}
	return cfg.FileTypes, nil
}

// execute runs one carve per the resolved Image path and CarveCmd flags,
// merging CLI overrides over a loaded (or default) config, layering
// config file settings under CLI flags.
func (c *CarveCmd) execute() error {
	cfg := &config.Config{Engine: config.DefaultEngineConfig()}
	if c.ConfigFile != "" {
		loaded, err := config.LoadConfigKoanf(c.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.Profile != "" {
		if err := cfg.ApplyProfile(c.Profile); err != nil {
			return errs.NewConfigError(err)
		}
	}

	wires := cfg.FileTypes
	if len(wires) == 0 {
		wires = filetypes.Default()
	}

	if c.Types != "" {
		names := make([]string, len(wires))
		byName := make(map[string]filetypes.Wire, len(wires))
		for i, w := range wires {
			names[i] = w.Name
			byName[w.Name] = w
		}
		matched, err := cli.ParseCommaSeparatedGlobs(c.Types, names)
		if err != nil {
			return errs.NewConfigError(fmt.Errorf("--types %q: %w", c.Types, err))
		}
		if len(matched) == 0 {
			return errs.ConfigErrorf("--types %q matched no registered file type", c.Types)
		}
		filtered := make([]filetypes.Wire, len(matched))
		for i, n := range matched {
			filtered[i] = byName[n]
		}
		wires = filtered
	}

	specs, err := filetypes.Compile(wires)
	if err != nil {
		return err
	}

	eng := cfg.Engine
	if c.BlockSize > 0 {
		eng.BlockSize = c.BlockSize
	}
	if c.ClusterSize > 0 {
		eng.ClusterSize = c.ClusterSize
	}
	if c.IOStrategy != "" {
		eng.IOStrategy = c.IOStrategy
	}
	if c.UseGPU {
		eng.UseGPU = true
	}
	if c.MaxMatchesPerDispatch > 0 {
		eng.MaxMatchesPerDispatch = c.MaxMatchesPerDispatch
	}

	scanOpts := scanner.DefaultOptions()
	if cfg.Run.Concurrency > 0 {
		scanOpts.Concurrency = cfg.Run.Concurrency
	}
	if c.Concurrency > 0 {
		scanOpts.Concurrency = c.Concurrency
	}
	if cfg.Run.RetryCount > 0 {
		scanOpts.RetryCount = cfg.Run.RetryCount
	}
	if c.RetryCount > 0 {
		scanOpts.RetryCount = c.RetryCount
	}
	if cfg.Run.CandidateTimeout != "" {
		if d, err := time.ParseDuration(cfg.Run.CandidateTimeout); err == nil {
			scanOpts.CandidateTimeout = d
		}
	}

	m := &metrics.Metrics{}

	opts := carver.Options{
		BlockSize:             eng.BlockSize,
		ClusterSize:           eng.ClusterSize,
		IOStrategy:            types.IOStrategy(eng.IOStrategy),
		UseGPU:                eng.UseGPU,
		GPUImplicit:           false, // every use_gpu here is an explicit request; see internal/carver.Options.GPUImplicit doc
		Dispatcher:            nil,
		MaxMatchesPerDispatch: eng.MaxMatchesPerDispatch,
		Specs:                 specs,
		Extensions:            buildExtensions(wires),
		OutputDir:             c.Output,
		ScannerOptions:        scanOpts,
		Metrics:               m,
	}

	if c.Timeout == 0 && cfg.Run.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Run.Timeout); err == nil {
			c.Timeout = d
		}
	}

	ctx, cancel := c.setupContext()
	defer cancel()

	slog.Debug("starting carve", "image", c.Image, "file_types", len(specs), "block_size", opts.BlockSize, "use_gpu", opts.UseGPU)

	summary, err := carver.Run(ctx, c.Image, opts)
	if err != nil {
		slog.Error("carve failed", "image", c.Image, "err", err)
		return err
	}

	slog.Info("carve complete", "image", c.Image,
		"candidates", summary.CandidatesFormed,
		"valid_full", summary.Results.ValidFull,
		"valid_partial", summary.Results.ValidPartial,
		"invalid", summary.Results.Invalid,
	)

	if c.Verbose {
		exporter := metrics.NewPrometheusExporter(m)
		fmt.Fprint(os.Stderr, exporter.Export())
	}

	if err := printSummary(c.Format, summary); err != nil {
		return errs.NewIOError(err)
	}

	if summary.Results.Invalid > 0 && summary.Results.ValidFull+summary.Results.ValidPartial > 0 {
		lastExitCode = 4
	} else {
		lastExitCode = 0
	}
	return nil
}

// setupContext creates the carve run's context: signal-cancellable always,
// timeout-bounded when c.Timeout is set.
func (c *CarveCmd) setupContext() (context.Context, context.CancelFunc) {
	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if c.Timeout == 0 {
		return baseCtx, stop
	}
	ctx, cancel := context.WithTimeout(baseCtx, c.Timeout)
	return ctx, func() {
		stop()
		cancel()
	}
}

// buildExtensions mirrors pkg/filetypes.Compile's ID assignment (bare name,
// or "name#i" for a wire with more than one header pattern) so the writer
// always resolves the exact extension the wire named rather than falling
// back to FileWriter's bare-ID guess.
func buildExtensions(wires []filetypes.Wire) map[string]string {
	exts := make(map[string]string, len(wires))
	for _, w := range wires {
		if len(w.HeaderPatterns) <= 1 {
			exts[w.Name] = w.Extension
			continue
		}
		for i := range w.HeaderPatterns {
			exts[fmt.Sprintf("%s#%d", w.Name, i)] = w.Extension
		}
	}
	return exts
}

// printSummary renders a carve summary in the requested format
// (`--format table|json|jsonl`).
func printSummary(format string, s carver.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaryView(s))
	case "jsonl":
		enc := json.NewEncoder(os.Stdout)
		for _, v := range s.Results.Validations {
			if err := enc.Encode(validationView(v)); err != nil {
				return err
			}
		}
		return nil
	default:
		fmt.Printf("blocks_read=%d bytes_scanned=%d raw_matches=%d candidates=%d\n",
			s.BlocksRead, s.BytesScanned, s.RawMatches, s.CandidatesFormed)
		fmt.Printf("valid_full=%d valid_partial=%d invalid=%d written=%d\n",
			s.Results.ValidFull, s.Results.ValidPartial, s.Results.Invalid, len(s.WrittenFiles))
		for _, path := range s.WrittenFiles {
			fmt.Printf("  %s\n", path)
		}
		return nil
	}
}

type summaryJSON struct {
	BlocksRead       int64    `json:"blocks_read"`
	BytesScanned     int64    `json:"bytes_scanned"`
	RawMatches       int64    `json:"raw_matches"`
	CandidatesFormed int64    `json:"candidates_formed"`
	ValidFull        int      `json:"valid_full"`
	ValidPartial     int      `json:"valid_partial"`
	Invalid          int      `json:"invalid"`
	WrittenFiles     []string `json:"written_files"`
}

func summaryView(s carver.Summary) summaryJSON {
	return summaryJSON{
		BlocksRead:       s.BlocksRead,
		BytesScanned:     s.BytesScanned,
		RawMatches:       s.RawMatches,
		CandidatesFormed: s.CandidatesFormed,
		ValidFull:        s.Results.ValidFull,
		ValidPartial:     s.Results.ValidPartial,
		Invalid:          s.Results.Invalid,
		WrittenFiles:     s.WrittenFiles,
	}
}

type validationJSON struct {
	FileType string `json:"file_type"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason,omitempty"`
}

func validationView(v types.Validation) validationJSON {
	start, end := v.Candidate.Span()
	return validationJSON{
		FileType: v.Candidate.FileType,
		Start:    start,
		End:      end,
		Verdict:  string(v.Verdict),
		Reason:   v.Reason,
	}
}
