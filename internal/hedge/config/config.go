// Package config loads and validates the hedged execution engine's policy
// configuration from YAML, following the same load/validate shape as
// the platform-wide config package: expand environment variables first,
// unmarshal, then run per-section validators and collect every failure
// before returning (internal/config/config.go).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/executor"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/reconciler"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/rollback"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/validator"
)

// ValidationError names the offending field so operators can fix a bad
// config file without re-reading this package's source.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Config is the engine's full policy tree, one section per component.
type Config struct {
	Validator  validator.Policy  `yaml:"validator"`
	Executor   executor.Config   `yaml:"executor"`
	Rollback   rollback.Config   `yaml:"rollback"`
	Reconciler reconciler.Config `yaml:"reconciler"`

	// Symbols whitelists the pairs this deployment is allowed to trade;
	// the reconciler still discovers live positions dynamically and does
	// not consult this list, but ExecuteHedgedEntry rejects anything not
	// named here as an operator-error guard.
	Symbols []string `yaml:"symbols"`
}

// LoadConfig reads filename, expands ${VAR}/$VAR environment references,
// parses YAML, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate runs every section's checks and joins all failures into one
// error, so a bad config file reports everything wrong with it at once.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateValidator(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateExecutor(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateRollback(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateReconciler(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSymbols(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateValidator() error {
	p := c.Validator
	if p.MaxSpreadPercent.LessThanOrEqual(p.WarnSpreadPercent) {
		return ValidationError{"validator.max_spread_percent", p.MaxSpreadPercent, "must be greater than warn_spread_percent"}
	}
	if p.MinDepthUsd.IsNegative() {
		return ValidationError{"validator.min_depth_usd", p.MinDepthUsd, "must be non-negative"}
	}
	if p.MaxStalenessSeconds <= 0 {
		return ValidationError{"validator.max_staleness_seconds", p.MaxStalenessSeconds, "must be positive"}
	}
	return nil
}

func (c *Config) validateExecutor() error {
	e := c.Executor
	if e.MinFillTimeoutSeconds <= 0 || e.MinFillTimeoutSeconds > e.MaxFillTimeoutSeconds {
		return ValidationError{"executor.min_fill_timeout_seconds", e.MinFillTimeoutSeconds, "must be positive and <= max_fill_timeout_seconds"}
	}
	if e.MaxLeg1Retries < 0 {
		return ValidationError{"executor.max_leg1_retries", e.MaxLeg1Retries, "must be non-negative"}
	}
	if e.GhostPollMaxAttempts <= 0 {
		return ValidationError{"executor.ghost_poll_max_attempts", e.GhostPollMaxAttempts, "must be positive"}
	}
	if e.MaxEntrySpreadPercent.IsNegative() {
		return ValidationError{"executor.max_entry_spread_percent", e.MaxEntrySpreadPercent, "must be non-negative"}
	}
	return nil
}

func (c *Config) validateRollback() error {
	r := c.Rollback
	if r.QueueCapacity <= 0 {
		return ValidationError{"rollback.queue_capacity", r.QueueCapacity, "must be positive"}
	}
	if r.MaxAttempts <= 0 {
		return ValidationError{"rollback.max_attempts", r.MaxAttempts, "must be positive"}
	}
	if r.BaseBackoffSeconds <= 0 {
		return ValidationError{"rollback.base_backoff_seconds", r.BaseBackoffSeconds, "must be positive"}
	}
	return nil
}

func (c *Config) validateReconciler() error {
	r := c.Reconciler
	if r.IntervalSeconds <= 0 {
		return ValidationError{"reconciler.interval_seconds", r.IntervalSeconds, "must be positive"}
	}
	if r.Concurrency <= 0 {
		return ValidationError{"reconciler.concurrency", r.Concurrency, "must be positive"}
	}
	if r.ConflictTolerancePercent.IsNegative() {
		return ValidationError{"reconciler.conflict_tolerance_percent", r.ConflictTolerancePercent, "must be non-negative"}
	}
	return nil
}

func (c *Config) validateSymbols() error {
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return ValidationError{"symbols[]", s, "must not be empty"}
		}
		if seen[s] {
			return ValidationError{"symbols[]", s, "duplicate symbol entry"}
		}
		seen[s] = true
	}
	return nil
}

// DefaultConfig seeds every section with its own package default, so a
// config file only needs to override what it deviates from.
func DefaultConfig() Config {
	return Config{
		Validator:  validator.DefaultPolicy(),
		Executor:   executor.DefaultConfig(),
		Rollback:   rollback.DefaultConfig(),
		Reconciler: reconciler.DefaultConfig(),
		Symbols:    nil,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes ${VAR} and $VAR with the environment value,
// leaving the reference untouched (rather than blanking it) when unset, so
// a missing variable surfaces as a YAML parse error instead of silently
// becoming an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.Trim(match, "${}")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}
