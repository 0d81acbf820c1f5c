package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Will-Banksy/searchlight/pkg/filetypes"
)

func TestBasicYAMLLoading(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  concurrency: 5
  timeout: 30m

engine:
  block_size: 2097152
  cluster_size: 4096
  io_strategy: mmap
  use_gpu: true
  max_matches_per_dispatch: 8192

output:
  format: json
  dir: ./carved
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5, cfg.Run.Concurrency)
	assert.Equal(t, "30m", cfg.Run.Timeout)
	assert.EqualValues(t, 2097152, cfg.Engine.BlockSize)
	assert.EqualValues(t, 4096, cfg.Engine.ClusterSize)
	assert.Equal(t, "mmap", cfg.Engine.IOStrategy)
	assert.True(t, cfg.Engine.UseGPU)
	assert.Equal(t, 8192, cfg.Engine.MaxMatchesPerDispatch)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "./carved", cfg.Output.Dir)
}

func TestHierarchicalMerge(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := filepath.Join(tmpDir, "base.yaml")
	baseYAML := `
run:
  concurrency: 4
  timeout: 20m

engine:
  block_size: 1048576
  io_strategy: buffered

output:
  format: json
  dir: ./out
`
	err := os.WriteFile(baseConfig, []byte(baseYAML), 0644)
	require.NoError(t, err)

	siteConfig := filepath.Join(tmpDir, "site.yaml")
	siteYAML := `
run:
  concurrency: 8
  # timeout inherited from base

engine:
  io_strategy: async-queue
  # block_size inherited from base

output:
  format: jsonl
  # dir inherited from base
`
	err = os.WriteFile(siteConfig, []byte(siteYAML), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(baseConfig, siteConfig)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8, cfg.Run.Concurrency)
	assert.Equal(t, "20m", cfg.Run.Timeout)
	assert.EqualValues(t, 1048576, cfg.Engine.BlockSize)
	assert.Equal(t, "async-queue", cfg.Engine.IOStrategy)
	assert.Equal(t, "jsonl", cfg.Output.Format)
	assert.Equal(t, "./out", cfg.Output.Dir)
}

func TestEnvironmentVariableInterpolation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	os.Setenv("SEARCHLIGHT_TEST_DIR", "/tmp/searchlight-output")
	defer os.Unsetenv("SEARCHLIGHT_TEST_DIR")

	yamlContent := `
output:
  dir: ${SEARCHLIGHT_TEST_DIR}
  format: json
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/searchlight-output", cfg.Output.Dir)
}

func TestMissingEnvironmentVariable(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	os.Unsetenv("SEARCHLIGHT_MISSING_VAR")

	yamlContent := `
output:
  dir: ${SEARCHLIGHT_MISSING_VAR}
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "SEARCHLIGHT_MISSING_VAR")
	assert.Contains(t, err.Error(), "not set")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			yaml: `
run:
  concurrency: 5
output:
  format: json
`,
			expectError: false,
		},
		{
			name: "invalid concurrency (negative)",
			yaml: `
run:
  concurrency: -1
`,
			expectError: true,
			errorMsg:    "concurrency must be non-negative",
		},
		{
			name: "invalid output format",
			yaml: `
output:
  format: invalid-format
`,
			expectError: true,
			errorMsg:    "invalid output format",
		},
		{
			name: "invalid io_strategy",
			yaml: `
engine:
  io_strategy: teleport
`,
			expectError: true,
			errorMsg:    "invalid engine.io_strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.yaml), 0644)
			require.NoError(t, err)

			cfg, err := LoadConfig(configPath)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func TestProfileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
profiles:
  thorough:
    run:
      concurrency: 2
      timeout: 60m
    engine:
      use_gpu: false
    output:
      format: json

  fast:
    run:
      concurrency: 32
      timeout: 5m
    output:
      format: jsonl

run:
  concurrency: 8
  timeout: 30m
output:
  format: json
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfigWithProfile(configPath, "thorough")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.Run.Concurrency)
	assert.Equal(t, "60m", cfg.Run.Timeout)

	cfg, err = LoadConfigWithProfile(configPath, "fast")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 32, cfg.Run.Concurrency)
	assert.Equal(t, "5m", cfg.Run.Timeout)
	assert.Equal(t, "jsonl", cfg.Output.Format)

	cfg, err = LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8, cfg.Run.Concurrency)
}

func TestInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
run:
  concurrency: 5
  invalid indentation
engine:
  block_size
`

	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "yaml")
}

func TestNonexistentFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestConcurrencyValidation(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid concurrency",
			yaml: `
run:
  concurrency: 10
`,
			expectError: false,
		},
		{
			name: "negative concurrency",
			yaml: `
run:
  concurrency: -5
`,
			expectError: true,
			errorMsg:    "concurrency must be non-negative",
		},
		{
			name: "zero concurrency (treated as not set)",
			yaml: `
run:
  concurrency: 0
`,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.yaml), 0644)
			require.NoError(t, err)

			cfg, err := LoadConfig(configPath)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func TestCandidateTimeoutValidation(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid candidate_timeout",
			yaml: `
run:
  candidate_timeout: 5m
`,
			expectError: false,
		},
		{
			name: "invalid candidate_timeout format",
			yaml: `
run:
  candidate_timeout: invalid-duration
`,
			expectError: true,
			errorMsg:    "invalid run.candidate_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.yaml), 0644)
			require.NoError(t, err)

			cfg, err := LoadConfig(configPath)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func TestMergeWithEngineFields(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := filepath.Join(tmpDir, "base.yaml")
	baseYAML := `
run:
  concurrency: 4
  timeout: 20m
  candidate_timeout: 1m

engine:
  block_size: 1048576
  cluster_size: 4096
`
	err := os.WriteFile(baseConfig, []byte(baseYAML), 0644)
	require.NoError(t, err)

	overrideConfig := filepath.Join(tmpDir, "override.yaml")
	overrideYAML := `
run:
  concurrency: 16
  # timeout and candidate_timeout inherited from base

engine:
  use_gpu: true
`
	err = os.WriteFile(overrideConfig, []byte(overrideYAML), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(baseConfig, overrideConfig)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 16, cfg.Run.Concurrency)
	assert.Equal(t, "20m", cfg.Run.Timeout)
	assert.Equal(t, "1m", cfg.Run.CandidateTimeout)
	assert.EqualValues(t, 1048576, cfg.Engine.BlockSize)
	assert.True(t, cfg.Engine.UseGPU)
}

func TestDefaultConcurrencyAndCandidateTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
run:
  timeout: 30m
  # concurrency and candidate_timeout not specified

output:
  format: json
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 0, cfg.Run.Concurrency)
	assert.Equal(t, "", cfg.Run.CandidateTimeout)
}

func TestFileTypesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
file_types:
  - name: bmp
    header_patterns:
      - "BM"
    max_length: 1048576
    extension: bmp
    validator: generic
`

	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Len(t, cfg.FileTypes, 1)
	assert.Equal(t, "bmp", cfg.FileTypes[0].Name)
	assert.Equal(t, []string{"BM"}, cfg.FileTypes[0].HeaderPatterns)
	assert.Equal(t, "generic", cfg.FileTypes[0].Validator)
}

func TestFileTypesMerge(t *testing.T) {
	base := &Config{
		FileTypes: []filetypes.Wire{{Name: "base", HeaderPatterns: []string{"AA"}, Extension: "a", MaxLength: 10}},
	}
	overlay := &Config{
		FileTypes: []filetypes.Wire{{Name: "overlay", HeaderPatterns: []string{"BB"}, Extension: "b", MaxLength: 20}},
	}

	base.Merge(overlay)

	require.Len(t, base.FileTypes, 1)
	assert.Equal(t, "overlay", base.FileTypes[0].Name)
}
