package executor

import (
	"time"

	"github.com/shopspring/decimal"
)

// dynamicTimeout computes the maker fill-wait window from same-side book
// depth relative to trade size, then applies a volatility multiplier and
// clamps to [min, max].
func (e *Engine) dynamicTimeout(sameSideDepthUsd, tradeSizeUsd decimal.Decimal, vol VolatilityHint) time.Duration {
	base := e.cfg.BaseFillTimeoutSeconds

	seconds := base
	if tradeSizeUsd.IsPositive() {
		depthRatio, _ := sameSideDepthUsd.Div(tradeSizeUsd).Float64()
		switch {
		case depthRatio >= 2.0:
			seconds = base * 0.5
		case depthRatio >= 1.0:
			seconds = base
		default:
			seconds = base * (2 - depthRatio)
		}
	}

	switch vol {
	case VolatilityHigh:
		seconds *= e.cfg.HighVolMultiplier
	case VolatilityLow:
		seconds *= e.cfg.LowVolMultiplier
	}

	if seconds < e.cfg.MinFillTimeoutSeconds {
		seconds = e.cfg.MinFillTimeoutSeconds
	}
	if seconds > e.cfg.MaxFillTimeoutSeconds {
		seconds = e.cfg.MaxFillTimeoutSeconds
	}

	if e.isShuttingDown() && seconds > e.cfg.ShutdownFillCeilingSeconds {
		seconds = e.cfg.ShutdownFillCeilingSeconds
	}

	return time.Duration(seconds * float64(time.Second))
}
