package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
)

// runLeg1 places the maker leg, waits for a fill, and on timeout runs the
// cancel/ghost-fill race and, if still unfilled, a bounded price-chase
// retry. It returns as soon as a fill (ordinary
// or ghost) is observed, or a terminal ErrorKind once retries/timeouts
// are exhausted.
func (e *Engine) runLeg1(ctx context.Context, adapter venue.Adapter, req EntryRequest, exec *domain.TradeExecution, qty, price, tickSize, hedgeMinSize, sameSideDepthUsd decimal.Decimal) (fillOutcome, string, domain.ErrorKind) {
	attempt := 0
	currentPrice := price
	var lastOrderID string

	for {
		priced := currentPrice
		orderRes, err := adapter.PlaceOrder(ctx, req.Symbol, req.SideA, domain.OrderKindLimitPostOnly, qty, &priced, false, true)
		if err != nil || !orderRes.Success {
			e.recordTransition(exec, domain.StateFailed, map[string]interface{}{"reason": "leg1_place_failed"})
			return fillOutcome{}, lastOrderID, domain.ErrKindLeg1PlaceFailed
		}
		lastOrderID = orderRes.OrderID
		exec.LegAOrderID = orderRes.OrderID
		e.recordTransition(exec, domain.StateLeg1Sent, map[string]interface{}{"order_id": orderRes.OrderID, "attempt": attempt})

		timeout := e.dynamicTimeout(sameSideDepthUsd, req.TargetUsd, req.Volatility)
		if outcome := e.waitForMakerFill(ctx, adapter, req.Symbol, orderRes.OrderID, timeout, qty); outcome.filled {
			return outcome, lastOrderID, ""
		}

		to := e.handleMakerTimeout(ctx, adapter, req.Symbol, orderRes.OrderID, qty, hedgeMinSize)
		if to.waitMore {
			// Micro-fill below hedge minimum: never cancel it out from
			// under ourselves. Give it one more full window.
			if more := e.waitForMakerFill(ctx, adapter, req.Symbol, orderRes.OrderID, timeout, qty); more.filled {
				return more, lastOrderID, ""
			}
			to = e.handleMakerTimeout(ctx, adapter, req.Symbol, orderRes.OrderID, qty, hedgeMinSize)
			if to.waitMore {
				// Still below the hedge minimum after the extra window:
				// abort-and-flatten the micro-fill on the maker venue.
				e.abortAndFlatten(ctx, adapter, req.Symbol, req.SideA)
				e.recordTransition(exec, domain.StateFailed, map[string]interface{}{"reason": "leg1_unfilled_micro"})
				return fillOutcome{}, lastOrderID, domain.ErrKindLeg1Unfilled
			}
		}
		if to.filled {
			return to, lastOrderID, ""
		}
		if to.abort {
			e.abortAndFlatten(ctx, adapter, req.Symbol, req.SideA)
			e.recordTransition(exec, domain.StateFailed, map[string]interface{}{"reason": "micro_partial_abort_flatten"})
			return fillOutcome{}, lastOrderID, domain.ErrKindLeg1Unfilled
		}

		// Confirmed unfilled and canceled. Consider a price-chase retry.
		if e.isShuttingDown() || attempt >= e.cfg.MaxLeg1Retries {
			e.recordTransition(exec, domain.StateFailed, map[string]interface{}{"reason": "leg1_unfilled"})
			return fillOutcome{}, lastOrderID, domain.ErrKindLeg1Unfilled
		}
		if pos, ok := e.findPosition(ctx, adapter, req.Symbol); ok && pos.SignedSize.Abs().IsPositive() {
			// A fill landed in this very race window; never stack a retry on top of it.
			return fillOutcome{filled: true, ghost: true, filledQty: pos.SignedSize.Abs(), avgPrice: pos.EntryPrice}, lastOrderID, ""
		}

		attempt++
		currentPrice = chasePrice(price, req.SideA, e.cfg.ChaseIncrement, attempt, tickSize)
	}
}

// abortAndFlatten cancels any residual order parts and immediately closes
// the maker-venue position when a partial fill can never reach the hedge
// venue's minimum trade size.
func (e *Engine) abortAndFlatten(ctx context.Context, adapter venue.Adapter, symbol string, side domain.OrderSide) {
	_, _ = adapter.CancelAllOrders(ctx, symbol)
	if pos, ok := e.findPosition(ctx, adapter, symbol); ok {
		notional := pos.SignedSize.Abs().Mul(pos.MarkPrice)
		_, _ = adapter.ClosePosition(ctx, symbol, side, notional)
	}
}
