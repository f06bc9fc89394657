// Package reconciler implements a startup-and-interval sweep that
// aligns the persisted trade set with positions observed on both venues
// (zombies, ghosts, conflicts), plus a separate late-fill sweep.
package reconciler

import "github.com/shopspring/decimal"

// Config holds the reconciliation policy thresholds.
type Config struct {
	IntervalSeconds float64 `yaml:"interval_seconds"`

	PendingStaleSeconds        float64 `yaml:"pending_stale_seconds"`
	OpeningMakerTimeoutSeconds float64 `yaml:"opening_maker_timeout_seconds"`
	OpeningMaxRetries          int     `yaml:"opening_max_retries"`
	OpeningBufferSeconds       float64 `yaml:"opening_buffer_seconds"`

	ConflictTolerancePercent decimal.Decimal `yaml:"conflict_tolerance_percent"`
	ConflictToleranceAbsUsd  decimal.Decimal `yaml:"conflict_tolerance_abs_usd"`

	AutoImportGhosts bool `yaml:"auto_import_ghosts"`

	SoftCloseTimeoutSeconds float64 `yaml:"soft_close_timeout_seconds"`
	SoftCloseAttempts       int     `yaml:"soft_close_attempts"`

	LateFillWindowSeconds float64 `yaml:"late_fill_window_seconds"`

	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig matches the magnitudes used throughout reconciliation.
func DefaultConfig() Config {
	return Config{
		IntervalSeconds: 300,

		PendingStaleSeconds:        120,
		OpeningMakerTimeoutSeconds: 25,
		OpeningMaxRetries:          2,
		OpeningBufferSeconds:       10,

		ConflictTolerancePercent: decimal.NewFromFloat(0.05),
		ConflictToleranceAbsUsd:  decimal.NewFromFloat(5),

		AutoImportGhosts: false,

		SoftCloseTimeoutSeconds: 5,
		SoftCloseAttempts:       2,

		LateFillWindowSeconds: 3600,

		Concurrency: 4,
	}
}
