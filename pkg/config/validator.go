package config

import "fmt"

// validate performs basic sanity checks on a loaded Config, mirroring the
// teacher's pkg/config.validate / Validator shape scaled down to
// sailmerge's much smaller knob set.
func validate(cfg *Config) error {
	v := &Validator{cfg: cfg}
	return v.ValidateAll()
}

// Validator checks a Config for internally consistent, usable values.
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check, returning the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateAnalysis(); err != nil {
		return err
	}
	return v.validateHTTP()
}

func (v *Validator) validateAnalysis() error {
	a := v.cfg.Analysis
	if a.MaxPackageSizeBytes <= 0 {
		return NewValidationError("analysis.max_package_size_bytes", fmt.Errorf("must be positive"))
	}
	if a.StepTimeoutSeconds <= 0 {
		return NewValidationError("analysis.step_timeout_seconds", fmt.Errorf("must be positive"))
	}
	if a.DiffContextLines < 0 {
		return NewValidationError("analysis.diff_context_lines", fmt.Errorf("must not be negative"))
	}
	return nil
}

func (v *Validator) validateHTTP() error {
	if v.cfg.HTTP.Port == "" {
		return NewValidationError("http.port", fmt.Errorf("must not be empty"))
	}
	return nil
}
