// Package rollback implements the Rollback Engine: a bounded,
// single-consumer FIFO queue that closes any orphaned leg of a failed
// hedged execution with verified, backed-off retries.
package rollback

// Config holds the rollback policy thresholds.
type Config struct {
	QueueCapacity      int     `yaml:"queue_capacity"`
	SettleDelaySeconds float64 `yaml:"settle_delay_seconds"`
	MaxAttempts        int     `yaml:"max_attempts"`
	BaseBackoffSeconds float64 `yaml:"base_backoff_seconds"`
	VerifyWaitSeconds  float64 `yaml:"verify_wait_seconds"`
}

// DefaultConfig matches the magnitudes used throughout the rollback policy.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:      256,
		SettleDelaySeconds: 3,
		MaxAttempts:        3,
		BaseBackoffSeconds: 1,
		VerifyWaitSeconds:  1,
	}
}
