package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadConfigKoanf loads configuration using Koanf with proper precedence:
// CLI flags > environment variables > config file > defaults.
func LoadConfigKoanf(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SEARCHLIGHT_ENGINE__BLOCK_SIZE -> engine.block_size (double underscore
	// becomes dot, single underscore preserved).
	err := k.Load(env.Provider("SEARCHLIGHT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "SEARCHLIGHT_")
		s = strings.Replace(s, "__", ".", -1)
		s = strings.ToLower(s)
		return s
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
	}); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	applyEngineDefaults(&cfg.Engine)

	v := validator.New()
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEngineDefaults fills in any engine keys the config file/environment
// left at their zero value with the engine's baseline defaults, field by
// field so a config that only sets block_size still gets sensible
// defaults elsewhere.
func applyEngineDefaults(e *EngineConfig) {
	d := DefaultEngineConfig()
	if e.BlockSize == 0 {
		e.BlockSize = d.BlockSize
	}
	if e.ClusterSize == 0 {
		e.ClusterSize = d.ClusterSize
	}
	if e.IOStrategy == "" {
		e.IOStrategy = d.IOStrategy
	}
	if e.MaxMatchesPerDispatch == 0 {
		e.MaxMatchesPerDispatch = d.MaxMatchesPerDispatch
	}
}
