// Package config loads sailmerge's YAML configuration (SPEC_FULL.md
// Ambient Stack), following the teacher's pkg/config shape: a YAML file,
// environment-variable expansion, built-in defaults merged with user
// overrides, and a validation pass before the config is handed to callers.
package config

import "github.com/sailmerge/sailmerge/pkg/store"

// Config is the umbrella configuration object returned by Initialize.
type Config struct {
	configDir string

	Analysis AnalysisConfig
	Database store.Config
	HTTP     HTTPConfig
}

// AnalysisConfig holds the core's external knobs (spec.md §6): max package
// size, per-step timeout, diff context lines, and the frozen SAIL
// public-function mapping table asset path.
type AnalysisConfig struct {
	MaxPackageSizeBytes int64  `yaml:"max_package_size_bytes,omitempty"`
	StepTimeoutSeconds  int    `yaml:"step_timeout_seconds,omitempty"`
	DiffContextLines    int    `yaml:"diff_context_lines,omitempty"`
	SAILMappingPath     string `yaml:"sail_mapping_path,omitempty"`
}

// HTTPConfig configures cmd/sailmerge's thin Gin surface.
type HTTPConfig struct {
	Port    string `yaml:"port,omitempty"`
	GinMode string `yaml:"gin_mode,omitempty"`
}

// ConfigDir returns the directory Initialize loaded this configuration from.
func (c *Config) ConfigDir() string {
	return c.configDir
}
