// Package sizer implements the Size Aligner: it reduces a target USD
// notional to an integer-step quantity tradable on both venues.
package sizer

import "github.com/shopspring/decimal"

// Result is the back-computed aligned size for a target notional.
type Result struct {
	Coins      decimal.Decimal
	AlignedUsd decimal.Decimal
	LotSize    decimal.Decimal
}

// Align computes coins = floor((targetUsd / referencePrice) / lot) * lot,
// where lot = max(lotSizeA, lotSizeB). All arithmetic is decimal
// (precision ≥ 18, enforced by shopspring/decimal's default). Ties always
// round toward zero — the result never exceeds the requested notional.
func Align(targetUsd, referencePrice, lotSizeA, lotSizeB decimal.Decimal) Result {
	lot := lotSizeA
	if lotSizeB.GreaterThan(lot) {
		lot = lotSizeB
	}

	if referencePrice.IsZero() || lot.IsZero() {
		return Result{Coins: decimal.Zero, AlignedUsd: decimal.Zero, LotSize: lot}
	}

	rawCoins := targetUsd.Div(referencePrice)
	steps := rawCoins.Div(lot).Truncate(0) // round toward zero, never up
	coins := steps.Mul(lot)
	alignedUsd := coins.Mul(referencePrice)

	return Result{Coins: coins, AlignedUsd: alignedUsd, LotSize: lot}
}
