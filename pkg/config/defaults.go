package config

import (
	"github.com/sailmerge/sailmerge/pkg/appzip"
)

// DefaultAnalysisConfig returns the built-in analysis defaults (spec.md §6).
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MaxPackageSizeBytes: appzip.DefaultMaxSizeBytes,
		StepTimeoutSeconds:  300,
		DiffContextLines:    3,
		SAILMappingPath:     "",
	}
}

// DefaultHTTPConfig returns the built-in HTTP surface defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:    "8080",
		GinMode: "release",
	}
}
