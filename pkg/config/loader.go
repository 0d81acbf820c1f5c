package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads and merges configuration files in hierarchical order.
// Later configs override earlier ones: base -> site -> run -> CLI.
func LoadConfig(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configuration files provided")
	}

	var result *Config

	for _, path := range paths {
		cfg, err := loadSingleConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}

		if result == nil {
			result = cfg
		} else {
			result.Merge(cfg)
		}
	}

	if err := interpolateConfigEnvVars(result); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment variables: %w", err)
	}

	applyEngineDefaults(&result.Engine)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return result, nil
}

// LoadConfigWithProfile loads a config file and applies a named profile.
func LoadConfigWithProfile(path string, profileName string) (*Config, error) {
	cfg, err := loadSingleConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := cfg.ApplyProfile(profileName); err != nil {
		return nil, fmt.Errorf("failed to apply profile %q: %w", profileName, err)
	}

	if err := interpolateConfigEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadSingleConfig loads a single YAML configuration file.
func loadSingleConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	return &cfg, nil
}

// interpolateConfigEnvVars interpolates environment variables in all string
// fields that plausibly carry ${VAR} references.
func interpolateConfigEnvVars(cfg *Config) error {
	getenv := func(key string) (string, bool) {
		val := os.Getenv(key)
		if val == "" {
			return "", false
		}
		return val, true
	}

	if cfg.Run.Timeout != "" {
		timeout, err := interpolateEnvVars(cfg.Run.Timeout, getenv)
		if err != nil {
			return err
		}
		cfg.Run.Timeout = timeout
	}

	if cfg.Output.Dir != "" {
		dir, err := interpolateEnvVars(cfg.Output.Dir, getenv)
		if err != nil {
			return err
		}
		cfg.Output.Dir = dir
	}
	if cfg.Output.Format != "" {
		format, err := interpolateEnvVars(cfg.Output.Format, getenv)
		if err != nil {
			return err
		}
		cfg.Output.Format = format
	}

	return nil
}
