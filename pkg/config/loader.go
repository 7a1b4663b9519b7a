package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/sailmerge/sailmerge/pkg/store"
)

// yamlConfig mirrors sailmerge.yaml's top-level shape.
type yamlConfig struct {
	Analysis *AnalysisConfig `yaml:"analysis"`
	HTTP     *HTTPConfig     `yaml:"http"`
}

// Initialize loads, merges, validates, and returns ready-to-use
// configuration — the primary entry point, mirroring the teacher's
// pkg/config.Initialize(ctx, configDir) shape.
//
// Steps performed:
//  1. Load sailmerge.yaml from configDir (missing file is not fatal; the
//     built-in defaults apply).
//  2. Expand environment variables in its contents.
//  3. Merge user-provided values onto the built-in defaults.
//  4. Load database connection settings from the environment.
//  5. Validate the merged configuration.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	analysis := DefaultAnalysisConfig()
	httpCfg := DefaultHTTPConfig()

	yc, err := loadYAML(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if yc.Analysis != nil {
		if err := mergo.Merge(&analysis, yc.Analysis, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge analysis config: %w", err)
		}
	}
	if yc.HTTP != nil {
		if err := mergo.Merge(&httpCfg, yc.HTTP, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge http config: %w", err)
		}
	}

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}

	cfg := &Config{
		configDir: configDir,
		Analysis:  analysis,
		Database:  dbCfg,
		HTTP:      httpCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"max_package_size_bytes", cfg.Analysis.MaxPackageSizeBytes,
		"step_timeout_seconds", cfg.Analysis.StepTimeoutSeconds)
	return cfg, nil
}

// loadYAML reads sailmerge.yaml from configDir. A missing file yields an
// empty yamlConfig rather than an error — the built-in defaults are a
// complete, valid configuration on their own.
func loadYAML(configDir string) (*yamlConfig, error) {
	path := filepath.Join(configDir, "sailmerge.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &yamlConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &yc, nil
}
