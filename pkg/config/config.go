package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Will-Banksy/searchlight/pkg/filetypes"
	"github.com/Will-Banksy/searchlight/pkg/types"
)

// Config represents the complete searchlight carving configuration:
// abstract keys ingested from the caller, independent of file format.
type Config struct {
	Run       RunConfig          `yaml:"run" koanf:"run"`
	Engine    EngineConfig       `yaml:"engine" koanf:"engine"`
	FileTypes []filetypes.Wire   `yaml:"file_types,omitempty" koanf:"file_types"`
	Output    OutputConfig       `yaml:"output" koanf:"output"`
	Profiles  map[string]Profile `yaml:"profiles,omitempty" koanf:"profiles"`
}

// Profile represents a named configuration profile that can be layered over
// the base config (e.g. a "fast" profile dropping GPU use, a "thorough"
// profile widening cluster_size).
type Profile struct {
	Run       RunConfig        `yaml:"run,omitempty"`
	Engine    EngineConfig     `yaml:"engine,omitempty"`
	FileTypes []filetypes.Wire `yaml:"file_types,omitempty"`
	Output    OutputConfig     `yaml:"output,omitempty"`
}

// RunConfig contains run-level concurrency/timeout knobs for the Validator
// Framework's worker pool (pkg/scanner.Options).
type RunConfig struct {
	Concurrency      int    `yaml:"concurrency,omitempty" koanf:"concurrency" validate:"gte=0"`
	Timeout          string `yaml:"timeout,omitempty" koanf:"timeout"`
	CandidateTimeout string `yaml:"candidate_timeout,omitempty" koanf:"candidate_timeout"`
	RetryCount       int    `yaml:"retry_count,omitempty" koanf:"retry_count" validate:"gte=0"`
}

// EngineConfig carries the carving engine's directly-tunable knobs:
// block_size, cluster_size, io_strategy, use_gpu, max_matches_per_dispatch.
type EngineConfig struct {
	// BlockSize is the streaming reader's block size in bytes. Must satisfy
	// block_size >= 2 * max_pattern_len; checked at compile time
	// once file types are known, not by struct tag alone.
	BlockSize int64 `yaml:"block_size,omitempty" koanf:"block_size" validate:"gte=0"`
	// ClusterSize is the filesystem cluster size assumed by fragment
	// reconstruction; power of two recommended.
	ClusterSize int64 `yaml:"cluster_size,omitempty" koanf:"cluster_size" validate:"gte=0"`
	// IOStrategy selects the streamreader backend.
	IOStrategy string `yaml:"io_strategy,omitempty" koanf:"io_strategy" validate:"omitempty,oneof=buffered mmap direct async-queue"`
	// UseGPU selects the GPU-dispatch match engine over the CPU engine.
	UseGPU bool `yaml:"use_gpu,omitempty" koanf:"use_gpu"`
	// MaxMatchesPerDispatch bounds the GPU output buffer.
	MaxMatchesPerDispatch int `yaml:"max_matches_per_dispatch,omitempty" koanf:"max_matches_per_dispatch" validate:"gte=0"`
}

// OutputConfig contains the writer collaborator's output configuration.
type OutputConfig struct {
	Dir    string `yaml:"dir" koanf:"dir"`
	Format string `yaml:"format,omitempty" koanf:"format" validate:"omitempty,oneof=json jsonl table"`
}

// DefaultEngineConfig returns the engine's baseline defaults: 1 MiB blocks,
// 4096-byte clusters, buffered I/O, CPU backend.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BlockSize:             1 << 20,
		ClusterSize:           4096,
		IOStrategy:            string(types.IOStrategyBuffered),
		UseGPU:                false,
		MaxMatchesPerDispatch: 4096,
	}
}

// Validate validates the configuration and returns helpful error messages.
// It does not check BlockSize against any file type's max pattern length;
// that check happens once patterns are compiled, where both values are
// available (internal/carver wiring).
func (c *Config) Validate() error {
	if c.Run.Concurrency < 0 {
		return fmt.Errorf("run.concurrency must be non-negative, got: %d", c.Run.Concurrency)
	}
	if c.Run.RetryCount < 0 {
		return fmt.Errorf("run.retry_count must be non-negative, got: %d", c.Run.RetryCount)
	}
	if c.Run.Timeout != "" {
		if _, err := time.ParseDuration(c.Run.Timeout); err != nil {
			return fmt.Errorf("invalid run.timeout: %w", err)
		}
	}
	if c.Run.CandidateTimeout != "" {
		if _, err := time.ParseDuration(c.Run.CandidateTimeout); err != nil {
			return fmt.Errorf("invalid run.candidate_timeout: %w", err)
		}
	}

	if c.Engine.BlockSize < 0 {
		return fmt.Errorf("engine.block_size must be non-negative, got: %d", c.Engine.BlockSize)
	}
	if c.Engine.ClusterSize < 0 {
		return fmt.Errorf("engine.cluster_size must be non-negative, got: %d", c.Engine.ClusterSize)
	}
	switch c.Engine.IOStrategy {
	case "", "buffered", "mmap", "direct", "async-queue":
	default:
		return fmt.Errorf("invalid engine.io_strategy: %s (valid: buffered, mmap, direct, async-queue)", c.Engine.IOStrategy)
	}
	if c.Engine.MaxMatchesPerDispatch < 0 {
		return fmt.Errorf("engine.max_matches_per_dispatch must be non-negative, got: %d", c.Engine.MaxMatchesPerDispatch)
	}

	switch c.Output.Format {
	case "", "json", "jsonl", "table":
	default:
		return fmt.Errorf("invalid output format: %s (valid: json, jsonl, table)", c.Output.Format)
	}

	return nil
}

// Merge merges another config into this one, with the other config taking
// precedence (hierarchical base -> site -> run -> CLI layering).
func (c *Config) Merge(other *Config) {
	if other.Run.Concurrency != 0 {
		c.Run.Concurrency = other.Run.Concurrency
	}
	if other.Run.Timeout != "" {
		c.Run.Timeout = other.Run.Timeout
	}
	if other.Run.CandidateTimeout != "" {
		c.Run.CandidateTimeout = other.Run.CandidateTimeout
	}
	if other.Run.RetryCount != 0 {
		c.Run.RetryCount = other.Run.RetryCount
	}

	if other.Engine.BlockSize != 0 {
		c.Engine.BlockSize = other.Engine.BlockSize
	}
	if other.Engine.ClusterSize != 0 {
		c.Engine.ClusterSize = other.Engine.ClusterSize
	}
	if other.Engine.IOStrategy != "" {
		c.Engine.IOStrategy = other.Engine.IOStrategy
	}
	if other.Engine.UseGPU {
		c.Engine.UseGPU = other.Engine.UseGPU
	}
	if other.Engine.MaxMatchesPerDispatch != 0 {
		c.Engine.MaxMatchesPerDispatch = other.Engine.MaxMatchesPerDispatch
	}

	if len(other.FileTypes) > 0 {
		c.FileTypes = other.FileTypes
	}

	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}
}

// ApplyProfile applies a named profile to this config.
func (c *Config) ApplyProfile(profileName string) error {
	profile, exists := c.Profiles[profileName]
	if !exists {
		return fmt.Errorf("profile %q not found", profileName)
	}

	profileConfig := &Config{
		Run:       profile.Run,
		Engine:    profile.Engine,
		FileTypes: profile.FileTypes,
		Output:    profile.Output,
	}

	c.Merge(profileConfig)
	return nil
}

// interpolateEnvVars replaces ${VAR} with environment variable values.
func interpolateEnvVars(s string, getenv func(string) (string, bool)) (string, error) {
	result := s
	start := 0
	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		endIdx := strings.Index(result[idx:], "}")
		if endIdx == -1 {
			return "", fmt.Errorf("unclosed environment variable reference at position %d", idx)
		}
		endIdx += idx

		varName := result[idx+2 : endIdx]
		value, ok := getenv(varName)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", varName)
		}

		result = result[:idx] + value + result[endIdx+1:]
		start = idx + len(value)
	}
	return result, nil
}
