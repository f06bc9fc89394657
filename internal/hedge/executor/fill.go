package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
)

// fillOutcome is the result of waiting for, or racing with, a maker fill.
type fillOutcome struct {
	filled    bool
	ghost     bool // filled via the cancel/fill race, not an ordinary poll
	waitMore  bool // micro partial fill below hedge minimum: keep waiting
	abort     bool // micro partial fill that can never reach hedge minimum
	filledQty decimal.Decimal
	avgPrice  decimal.Decimal
}

// findPosition checks the event-driven push cache first and only falls
// back to a FetchOpenPositions poll when nothing has been pushed yet. Used
// by the fill-detection paths below, where a cached fill is exactly the
// signal being waited for.
func (e *Engine) findPosition(ctx context.Context, adapter venue.Adapter, symbol string) (domain.Position, bool) {
	if pos, ok := e.cachedPosition(adapter.Name(), symbol); ok {
		return pos, true
	}
	return e.pollPosition(ctx, adapter, symbol)
}

// pollPosition always queries the venue directly, bypassing the push
// cache. Used wherever a just-issued close must be verified against
// authoritative state rather than a possibly stale cached fill.
func (e *Engine) pollPosition(ctx context.Context, adapter venue.Adapter, symbol string) (domain.Position, bool) {
	positions, err := adapter.FetchOpenPositions(ctx)
	if err != nil {
		return domain.Position{}, false
	}
	for _, p := range positions {
		if p.Symbol == symbol && !p.IsFlat() {
			return p, true
		}
	}
	return domain.Position{}, false
}

// waitForMakerFill polls order status on the maker venue until it fills to
// at least 95% of plannedQty, the timeout elapses, or the context is
// canceled. A partial below that threshold is never reported as filled —
// it keeps resting so the handleMakerTimeout micro-fill protocol gets a
// chance to decide whether to keep waiting or abort-and-flatten once the
// window actually elapses; this function does not itself cancel the order
// on timeout.
func (e *Engine) waitForMakerFill(ctx context.Context, adapter venue.Adapter, symbol, orderID string, timeout time.Duration, plannedQty decimal.Decimal) fillOutcome {
	deadline := time.Now().Add(timeout)
	interval := time.Duration(e.cfg.FillPollIntervalSeconds * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fillThreshold := plannedQty.Mul(decimal.NewFromFloat(0.95))

	for {
		st, err := adapter.GetOrderStatus(ctx, symbol, orderID)
		if err == nil && st.Found {
			if st.Status == "FILLED" {
				return fillOutcome{filled: true, filledQty: st.FilledAmount, avgPrice: st.AvgPrice}
			}
			if st.FilledAmount.GreaterThanOrEqual(fillThreshold) {
				// Close enough to planned: clear any residual resting
				// remainder before handing the fill off to the hedge leg.
				_, _ = adapter.CancelOrder(ctx, symbol, orderID)
				return fillOutcome{filled: true, filledQty: st.FilledAmount, avgPrice: st.AvgPrice}
			}
			// A sub-threshold partial must never be canceled out from
			// under itself here; leave it resting and keep polling until
			// handleMakerTimeout takes over on timeout.
		}
		if !time.Now().Before(deadline) {
			return fillOutcome{filled: false}
		}
		select {
		case <-ctx.Done():
			return fillOutcome{filled: false}
		case <-ticker.C:
		case <-e.fillSignal:
			// A pushed position update woke us early; loop back around to
			// re-check order status now instead of waiting for the next tick.
		}
	}
}

// handleMakerTimeout runs the cancel/ghost-fill race protocol once the
// fill-wait window elapses without an ordinary fill.
func (e *Engine) handleMakerTimeout(ctx context.Context, adapter venue.Adapter, symbol, orderID string, plannedQty, hedgeMinSize decimal.Decimal) fillOutcome {
	// Step 1: position check first — a fill may already have landed.
	if pos, ok := e.findPosition(ctx, adapter, symbol); ok {
		if pos.SignedSize.Abs().GreaterThanOrEqual(plannedQty.Mul(decimal.NewFromFloat(0.95))) {
			_, _ = adapter.CancelOrder(ctx, symbol, orderID) // clear any residual
			return fillOutcome{filled: true, ghost: true, filledQty: pos.SignedSize.Abs(), avgPrice: pos.EntryPrice}
		}
		// Step 2: present but below the hedge venue's minimum — never
		// cancel a micro-fill out from under ourselves; keep waiting.
		if pos.SignedSize.Abs().LessThan(hedgeMinSize) && pos.SignedSize.Abs().IsPositive() {
			return fillOutcome{waitMore: true, filledQty: pos.SignedSize.Abs(), avgPrice: pos.EntryPrice}
		}
	}

	// Step 3: issue the cancel and race-poll for a ghost fill.
	canceled, err := adapter.CancelOrder(ctx, symbol, orderID)
	confirmedCanceled := err == nil && canceled

	if confirmedCanceled {
		if pos, ok := e.ghostPollPosition(ctx, adapter, symbol); ok {
			return fillOutcome{filled: true, ghost: true, filledQty: pos.SignedSize.Abs(), avgPrice: pos.EntryPrice}
		}
	}

	// Step 4: authoritative order-status verification, including the
	// not-found path, which still must be confirmed via trade history.
	st, statusErr := adapter.GetOrderStatus(ctx, symbol, orderID)
	if statusErr == nil {
		if st.Status == "FILLED" || st.Status == "PARTIALLY_FILLED" || st.FilledAmount.IsPositive() {
			if st.FilledAmount.LessThan(hedgeMinSize) && st.FilledAmount.IsPositive() {
				return fillOutcome{abort: true, filledQty: st.FilledAmount, avgPrice: st.AvgPrice}
			}
			return fillOutcome{filled: true, ghost: true, filledQty: st.FilledAmount, avgPrice: st.AvgPrice}
		}
		if st.Status == "CANCELED" && st.FilledAmount.IsZero() {
			return fillOutcome{filled: false}
		}
	}

	// Order-status said NOT_FOUND or was ambiguous: consult trade history
	// before declaring unfilled.
	if filled, qty, price := e.confirmViaTradeHistory(ctx, adapter, symbol, orderID); filled {
		if qty.LessThan(hedgeMinSize) {
			return fillOutcome{abort: true, filledQty: qty, avgPrice: price}
		}
		return fillOutcome{filled: true, ghost: true, filledQty: qty, avgPrice: price}
	}

	return fillOutcome{filled: false}
}

// ghostPollPosition polls position state with exponentially-capped delays
// looking for a fill that landed in the cancel race window.
func (e *Engine) ghostPollPosition(ctx context.Context, adapter venue.Adapter, symbol string) (domain.Position, bool) {
	delay := e.cfg.GhostPollBaseSeconds
	for attempt := 0; attempt < e.cfg.GhostPollMaxAttempts; attempt++ {
		if pos, ok := e.findPosition(ctx, adapter, symbol); ok {
			return pos, true
		}
		select {
		case <-ctx.Done():
			return domain.Position{}, false
		case <-time.After(time.Duration(delay * float64(time.Second))):
		}
		delay += e.cfg.GhostPollStepSeconds
		if delay > e.cfg.GhostPollCapSeconds {
			delay = e.cfg.GhostPollCapSeconds
		}
	}
	return domain.Position{}, false
}

// confirmViaTradeHistory sums fills reported for orderID in recent trade
// history, used whenever cancel/order-status is ambiguous (NOT_FOUND).
func (e *Engine) confirmViaTradeHistory(ctx context.Context, adapter venue.Adapter, symbol, orderID string) (bool, decimal.Decimal, decimal.Decimal) {
	trades, err := adapter.FetchMyTrades(ctx, symbol, 50)
	if err != nil {
		return false, decimal.Zero, decimal.Zero
	}
	total := decimal.Zero
	notional := decimal.Zero
	for _, t := range trades {
		if t.OrderID != orderID {
			continue
		}
		total = total.Add(t.Qty)
		notional = notional.Add(t.Qty.Mul(t.Price))
	}
	if total.IsZero() {
		return false, decimal.Zero, decimal.Zero
	}
	return true, total, notional.Div(total)
}
