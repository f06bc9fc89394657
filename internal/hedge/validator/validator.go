// Package validator implements the Orderbook Validator: it classifies
// an orderbook snapshot against configurable quality thresholds for a
// proposed maker order. Apart from the post-reconnect window recorded by
// NotePostReconnect (during which Evaluate may refetch the book once through
// its provider), the result depends only on its inputs.
package validator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// Quality is the classification bucket of an orderbook evaluation.
type Quality string

const (
	QualityExcellent    Quality = "EXCELLENT"
	QualityGood         Quality = "GOOD"
	QualityMarginal     Quality = "MARGINAL"
	QualityInsufficient Quality = "INSUFFICIENT"
	QualityCrossed      Quality = "CROSSED"
	QualityStale        Quality = "STALE"
	QualityEmpty        Quality = "EMPTY"
)

// RecommendedAction is what the caller should do with the evaluation.
type RecommendedAction string

const (
	ActionProceed        RecommendedAction = "proceed"
	ActionWait           RecommendedAction = "wait"
	ActionUseMarketOrder RecommendedAction = "use_market_order"
	ActionSkip           RecommendedAction = "skip"
)

// Policy holds the configurable thresholds the validator checks against.
type Policy struct {
	MinDepthUsd                  decimal.Decimal `yaml:"min_depth_usd"`
	MinOppositeDepthUsd          decimal.Decimal `yaml:"min_opposite_depth_usd"`
	MinBidLevels                 int             `yaml:"min_bid_levels"`
	MinAskLevels                 int             `yaml:"min_ask_levels"`
	MaxSpreadPercent             decimal.Decimal `yaml:"max_spread_percent"`
	WarnSpreadPercent            decimal.Decimal `yaml:"warn_spread_percent"`
	MaxStalenessSeconds          float64         `yaml:"max_staleness_seconds"`
	WarnStalenessSeconds         float64         `yaml:"warn_staleness_seconds"`
	ExcellentDepthMultiple       decimal.Decimal `yaml:"excellent_depth_multiple"`
	GoodDepthMultiple            decimal.Decimal `yaml:"good_depth_multiple"`
	MarginalDepthMultiple        decimal.Decimal `yaml:"marginal_depth_multiple"`
	PostReconnectCooldownSeconds float64         `yaml:"post_reconnect_cooldown_seconds"`
}

// Result is the full evaluation of one orderbook snapshot.
type Result struct {
	Valid             bool
	Quality           Quality
	Reason            string
	BidDepthUsd       decimal.Decimal
	AskDepthUsd       decimal.Decimal
	SpreadPercent     decimal.Decimal
	BestBid           decimal.Decimal
	BestAsk           decimal.Decimal
	BidLevels         int
	AskLevels         int
	StalenessSeconds  float64
	RecommendedAction RecommendedAction
	// SameSideDepthUsd is the depth on the side our resting order would
	// fill against — feeds the executor's dynamic fill timeout.
	SameSideDepthUsd decimal.Decimal
}

// SnapshotProvider refreshes a snapshot via REST, used on the
// post-reconnect cooldown path.
type SnapshotProvider interface {
	FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error)
}

// Validator evaluates orderbook snapshots against a Policy.
type Validator struct {
	policy Policy
	logger logging.ILogger

	// reconnectedAt, if set and within PostReconnectCooldownSeconds of now,
	// triggers the one-shot REST refresh in step 1.
	reconnectedAt *time.Time
}

// New creates a Validator bound to a Policy.
func New(policy Policy, logger logging.ILogger) *Validator {
	return &Validator{policy: policy, logger: logger.WithField("component", "orderbook_validator")}
}

// DefaultPolicy holds the default quality-bucket thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinDepthUsd:                  decimal.NewFromInt(5000),
		MinOppositeDepthUsd:          decimal.NewFromInt(2000),
		MinBidLevels:                 3,
		MinAskLevels:                 3,
		MaxSpreadPercent:             decimal.NewFromFloat(0.003),
		WarnSpreadPercent:            decimal.NewFromFloat(0.0015),
		MaxStalenessSeconds:          5,
		WarnStalenessSeconds:         2,
		ExcellentDepthMultiple:       decimal.NewFromInt(5),
		GoodDepthMultiple:            decimal.NewFromInt(2),
		MarginalDepthMultiple:        decimal.NewFromInt(1),
		PostReconnectCooldownSeconds: 10,
	}
}

// NotePostReconnect records that the provider just reconnected, arming the
// cooldown-window REST-refresh check for the next Evaluate call.
func (v *Validator) NotePostReconnect(at time.Time) {
	v.reconnectedAt = &at
}

// Evaluate runs the full quality-check pipeline in order; the first failing
// step short-circuits the remainder.
func (v *Validator) Evaluate(
	ctx context.Context,
	symbol string,
	side domain.OrderSide,
	tradeSizeUsd decimal.Decimal,
	snapshot domain.OrderbookSnapshot,
	now time.Time,
	provider SnapshotProvider,
) Result {
	// Step 1: post-reconnect cooldown — attempt one fresh REST snapshot if
	// still within the cooldown window and the book looks unusable.
	if v.reconnectedAt != nil && now.Sub(*v.reconnectedAt).Seconds() <= v.policy.PostReconnectCooldownSeconds {
		if provider != nil && v.looksUnusable(snapshot) {
			fresh, err := provider.FetchOrderbook(ctx, symbol, 50)
			if err == nil {
				snapshot = fresh
			}
			if v.isCrossedOrEmpty(snapshot) {
				if v.bothSidesEmpty(snapshot) {
					return v.result(false, QualityEmpty, "empty book after reconnect refresh", snapshot, 0, 0, ActionSkip)
				}
				return v.result(false, QualityCrossed, "crossed book after reconnect refresh", snapshot, 0, 0, ActionWait)
			}
		}
		v.reconnectedAt = nil
	}

	// Step 2: both sides empty.
	if v.bothSidesEmpty(snapshot) {
		return v.result(false, QualityEmpty, "orderbook empty", snapshot, 0, 0, ActionSkip)
	}

	// Step 3: required counterparty side must exist.
	if side == domain.SideSell && len(snapshot.Bids) == 0 {
		return v.result(false, QualityEmpty, "no bids for SELL maker", snapshot, 0, 0, ActionSkip)
	}
	if side == domain.SideBuy && len(snapshot.Asks) == 0 {
		return v.result(false, QualityEmpty, "no asks for BUY maker", snapshot, 0, 0, ActionSkip)
	}

	bestBid, _ := snapshot.BestBid()
	bestAsk, _ := snapshot.BestAsk()

	// Step 4: crossed book.
	if !bestAsk.Price.IsZero() && !bestBid.Price.IsZero() && bestAsk.Price.LessThanOrEqual(bestBid.Price) {
		return v.result(false, QualityCrossed, "crossed book", snapshot, 0, 0, ActionWait)
	}

	// Step 5: staleness.
	stalenessSeconds := now.Sub(snapshot.Timestamp).Seconds()
	if stalenessSeconds > v.policy.MaxStalenessSeconds {
		return v.result(false, QualityStale, "orderbook stale", snapshot, stalenessSeconds, 0, ActionWait)
	}

	// Step 6: level minima.
	if len(snapshot.Bids) < v.policy.MinBidLevels || len(snapshot.Asks) < v.policy.MinAskLevels {
		return v.result(false, QualityInsufficient, "insufficient price levels", snapshot, stalenessSeconds, 0, ActionSkip)
	}

	bidDepth := sumDepthUsd(snapshot.Bids)
	askDepth := sumDepthUsd(snapshot.Asks)

	var sameSideDepth, oppositeSideDepth decimal.Decimal
	if side == domain.SideSell {
		sameSideDepth, oppositeSideDepth = bidDepth, askDepth
	} else {
		sameSideDepth, oppositeSideDepth = askDepth, bidDepth
	}

	// Step 7: depth minima.
	if sameSideDepth.LessThan(v.policy.MinDepthUsd) {
		return v.resultWithDepths(false, QualityInsufficient, "insufficient same-side depth", snapshot, stalenessSeconds, bidDepth, askDepth, sameSideDepth, ActionSkip)
	}
	if oppositeSideDepth.LessThan(v.policy.MinOppositeDepthUsd) {
		return v.resultWithDepths(false, QualityInsufficient, "insufficient opposite-side depth", snapshot, stalenessSeconds, bidDepth, askDepth, sameSideDepth, ActionSkip)
	}

	// Step 8: depth multiple vs trade size.
	var depthMultiple decimal.Decimal
	if tradeSizeUsd.IsPositive() {
		depthMultiple = sameSideDepth.Div(tradeSizeUsd)
	}
	if depthMultiple.LessThan(v.policy.MarginalDepthMultiple) {
		return v.resultWithDepths(false, QualityInsufficient, "order would walk the book", snapshot, stalenessSeconds, bidDepth, askDepth, sameSideDepth, ActionUseMarketOrder)
	}

	// Step 9: spread.
	mid := bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2))
	var spreadPct decimal.Decimal
	if mid.IsPositive() {
		spreadPct = bestAsk.Price.Sub(bestBid.Price).Div(mid)
	}
	if spreadPct.GreaterThan(v.policy.MaxSpreadPercent) {
		r := v.resultWithDepths(false, QualityInsufficient, "spread too wide", snapshot, stalenessSeconds, bidDepth, askDepth, sameSideDepth, ActionWait)
		r.SpreadPercent = spreadPct
		return r
	}

	// Step 10: classify quality by worst of the three buckets.
	quality := v.classify(depthMultiple, spreadPct, stalenessSeconds)

	r := v.resultWithDepths(true, quality, "", snapshot, stalenessSeconds, bidDepth, askDepth, sameSideDepth, ActionProceed)
	r.SpreadPercent = spreadPct
	return r
}

// RecommendedPrice returns the post-only price one tick inside the best of
// our side, clamped so a SELL rests strictly above best bid and a BUY
// strictly below best ask.
func RecommendedPrice(snapshot domain.OrderbookSnapshot, side domain.OrderSide, tick decimal.Decimal) (decimal.Decimal, bool) {
	bestBid, hasBid := snapshot.BestBid()
	bestAsk, hasAsk := snapshot.BestAsk()
	switch side {
	case domain.SideSell:
		if !hasAsk || !hasBid {
			return decimal.Zero, false
		}
		price := bestAsk.Price.Sub(tick)
		if price.LessThanOrEqual(bestBid.Price) {
			price = bestBid.Price.Add(tick)
		}
		return price, true
	default:
		if !hasBid || !hasAsk {
			return decimal.Zero, false
		}
		price := bestBid.Price.Add(tick)
		if price.GreaterThanOrEqual(bestAsk.Price) {
			price = bestAsk.Price.Sub(tick)
		}
		return price, true
	}
}

func (v *Validator) classify(depthMultiple, spreadPct decimal.Decimal, stalenessSeconds float64) Quality {
	depthBucket := QualityMarginal
	switch {
	case depthMultiple.GreaterThanOrEqual(v.policy.ExcellentDepthMultiple):
		depthBucket = QualityExcellent
	case depthMultiple.GreaterThanOrEqual(v.policy.GoodDepthMultiple):
		depthBucket = QualityGood
	}

	spreadBucket := QualityGood
	if spreadPct.GreaterThan(v.policy.WarnSpreadPercent) {
		spreadBucket = QualityMarginal
	} else if spreadPct.LessThanOrEqual(v.policy.WarnSpreadPercent.Div(decimal.NewFromInt(2))) {
		spreadBucket = QualityExcellent
	}

	stalenessBucket := QualityGood
	if stalenessSeconds > v.policy.WarnStalenessSeconds {
		stalenessBucket = QualityMarginal
	} else if stalenessSeconds <= v.policy.WarnStalenessSeconds/2 {
		stalenessBucket = QualityExcellent
	}

	return worstOf(depthBucket, spreadBucket, stalenessBucket)
}

func worstOf(qualities ...Quality) Quality {
	rank := map[Quality]int{QualityExcellent: 3, QualityGood: 2, QualityMarginal: 1}
	worst := QualityExcellent
	for _, q := range qualities {
		if rank[q] < rank[worst] {
			worst = q
		}
	}
	return worst
}

func sumDepthUsd(levels []domain.OrderbookLevel) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Size))
	}
	return total
}

func (v *Validator) bothSidesEmpty(s domain.OrderbookSnapshot) bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}

func (v *Validator) isCrossedOrEmpty(s domain.OrderbookSnapshot) bool {
	if v.bothSidesEmpty(s) {
		return true
	}
	bestBid, hasBid := s.BestBid()
	bestAsk, hasAsk := s.BestAsk()
	if !hasBid || !hasAsk {
		return true
	}
	return bestAsk.Price.LessThanOrEqual(bestBid.Price)
}

func (v *Validator) looksUnusable(s domain.OrderbookSnapshot) bool {
	return v.isCrossedOrEmpty(s)
}

func (v *Validator) result(valid bool, q Quality, reason string, s domain.OrderbookSnapshot, staleness float64, _ int, action RecommendedAction) Result {
	bestBid, _ := s.BestBid()
	bestAsk, _ := s.BestAsk()
	return Result{
		Valid:             valid,
		Quality:           q,
		Reason:            reason,
		BestBid:           bestBid.Price,
		BestAsk:           bestAsk.Price,
		BidLevels:         len(s.Bids),
		AskLevels:         len(s.Asks),
		StalenessSeconds:  staleness,
		RecommendedAction: action,
	}
}

func (v *Validator) resultWithDepths(valid bool, q Quality, reason string, s domain.OrderbookSnapshot, staleness float64, bidDepth, askDepth, sameSideDepth decimal.Decimal, action RecommendedAction) Result {
	r := v.result(valid, q, reason, s, staleness, 0, action)
	r.BidDepthUsd = bidDepth
	r.AskDepthUsd = askDepth
	r.SameSideDepthUsd = sameSideDepth
	return r
}
