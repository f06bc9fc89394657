// Package executor implements the Execution State Machine: it drives
// one hedged entry or exit through PENDING -> LEG1_SENT -> LEG1_FILLED ->
// LEG2_SENT -> COMPLETE, or to FAILED / ROLLBACK_* terminals.
package executor

import "github.com/shopspring/decimal"

// VolatilityHint adjusts the dynamic fill timeout. The caller
// (an external volatility monitor, out of scope here) supplies it per call;
// the zero value behaves as "normal".
type VolatilityHint string

const (
	VolatilityNormal VolatilityHint = ""
	VolatilityHigh   VolatilityHint = "HIGH"
	VolatilityLow    VolatilityHint = "LOW"
)

// Config holds every tunable threshold the state machine needs. All
// durations and decimals are policy, not code; callers wire these from
// loaded configuration.
type Config struct {
	// Dynamic fill timeout.
	BaseFillTimeoutSeconds     float64 `yaml:"base_fill_timeout_seconds"`
	MinFillTimeoutSeconds      float64 `yaml:"min_fill_timeout_seconds"`
	MaxFillTimeoutSeconds      float64 `yaml:"max_fill_timeout_seconds"`
	HighVolMultiplier          float64 `yaml:"high_vol_multiplier"`
	LowVolMultiplier           float64 `yaml:"low_vol_multiplier"`
	ShutdownFillCeilingSeconds float64 `yaml:"shutdown_fill_ceiling_seconds"`

	// Ghost-fill poll loop.
	GhostPollBaseSeconds float64 `yaml:"ghost_poll_base_seconds"`
	GhostPollStepSeconds float64 `yaml:"ghost_poll_step_seconds"`
	GhostPollCapSeconds  float64 `yaml:"ghost_poll_cap_seconds"`
	GhostPollMaxAttempts int     `yaml:"ghost_poll_max_attempts"`

	// Leg1 retry with price chase.
	MaxLeg1Retries int             `yaml:"max_leg1_retries"`
	ChaseIncrement decimal.Decimal `yaml:"chase_increment"`
	MinTickSize    decimal.Decimal `yaml:"min_tick_size"`

	// Leg2 settle wait.
	Leg2SettleWaitSeconds float64 `yaml:"leg2_settle_wait_seconds"`

	// Entry spread gate.
	MaxEntrySpreadPercent decimal.Decimal `yaml:"max_entry_spread_percent"`
	AutoCloseBadEntries   bool            `yaml:"auto_close_bad_entries"`

	// Compliance check.
	ComplianceCacheTTLSeconds float64 `yaml:"compliance_cache_ttl_seconds"`

	// Orderbook depth fetched for validation/pricing.
	OrderbookDepth int `yaml:"orderbook_depth"`

	// Shutdown.
	GracefulTimeoutSeconds float64 `yaml:"graceful_timeout_seconds"`

	// Order-status poll cadence while waiting for a fill.
	FillPollIntervalSeconds float64 `yaml:"fill_poll_interval_seconds"`
}

// DefaultConfig returns reasonable defaults matching the magnitudes named
// throughout the executor.
func DefaultConfig() Config {
	return Config{
		BaseFillTimeoutSeconds:     20,
		MinFillTimeoutSeconds:      15,
		MaxFillTimeoutSeconds:      25,
		HighVolMultiplier:          1.2,
		LowVolMultiplier:           0.9,
		ShutdownFillCeilingSeconds: 2,

		GhostPollBaseSeconds: 0.3,
		GhostPollStepSeconds: 0.05,
		GhostPollCapSeconds:  1.0,
		GhostPollMaxAttempts: 20,

		MaxLeg1Retries: 1,
		ChaseIncrement: decimal.NewFromFloat(0.001),
		MinTickSize:    decimal.NewFromFloat(0.01),

		Leg2SettleWaitSeconds: 0.5,

		MaxEntrySpreadPercent: decimal.NewFromFloat(0.003),
		AutoCloseBadEntries:   true,

		ComplianceCacheTTLSeconds: 5,

		OrderbookDepth: 50,

		GracefulTimeoutSeconds: 30,

		FillPollIntervalSeconds: 0.25,
	}
}
