// Package domain defines the shared data model for the hedged execution engine.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/errors"
)

// OrderSide is the side of an order or position.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind is the kind of order the core places.
type OrderKind string

const (
	OrderKindMarketIOC    OrderKind = "MARKET_IOC"
	OrderKindLimitPostOnly OrderKind = "LIMIT_POST_ONLY"
	OrderKindLimit        OrderKind = "LIMIT"
)

// Venue identifies one of the two perpetual-futures venues.
type Venue string

const (
	VenueA Venue = "VENUE_A" // maker-friendly
	VenueB Venue = "VENUE_B" // taker venue
)

// Opposite returns the other venue.
func (v Venue) Opposite() Venue {
	if v == VenueA {
		return VenueB
	}
	return VenueA
}

// PositionEpsilon is the tolerance below which a position is "no position"
// inside execution flows: 1e-8, distinct from the reconciliation dust
// threshold below.
var PositionEpsilon = decimal.New(1, -8)

// ReconciliationDustThreshold is the dust tolerance used only inside the
// reconciler: 1e-4, intentionally coarser than PositionEpsilon.
var ReconciliationDustThreshold = decimal.New(1, -4)

// Position is a position as observed on a venue. Sign convention: positive
// is long, negative is short.
type Position struct {
	Symbol        string
	SignedSize    decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnl decimal.Decimal
	Leverage      int
}

// IsFlat reports whether the position is within PositionEpsilon of zero.
func (p Position) IsFlat() bool {
	return p.SignedSize.Abs().LessThanOrEqual(PositionEpsilon)
}

// ErrorKind is the core's own error taxonomy.
type ErrorKind string

const (
	ErrKindBusy             ErrorKind = "BUSY"
	ErrKindSelfMatchRisk    ErrorKind = "SELF_MATCH_RISK"
	ErrKindOrderbookInvalid ErrorKind = "ORDERBOOK_INVALID"
	ErrKindLeg1PlaceFailed  ErrorKind = "LEG1_PLACE_FAILED"
	ErrKindLeg1Unfilled     ErrorKind = "LEG1_UNFILLED"
	ErrKindLeg2PlaceFailed  ErrorKind = "LEG2_PLACE_FAILED"
	ErrKindGhostFill        ErrorKind = "GHOST_FILL"
	ErrKindBadEntrySpread   ErrorKind = "BAD_ENTRY_SPREAD"
	ErrKindRollbackFailed   ErrorKind = "ROLLBACK_FAILED"
	ErrKindShuttingDown     ErrorKind = "SHUTTING_DOWN"
	ErrKindInternal         ErrorKind = "INTERNAL"
)

// AdapterErrorKind is the error taxonomy returned by venue adapters.
type AdapterErrorKind string

const (
	AdapterErrNotFound            AdapterErrorKind = "NOT_FOUND"
	AdapterErrRateLimited         AdapterErrorKind = "RATE_LIMITED"
	AdapterErrCrossedBook         AdapterErrorKind = "CROSSED_BOOK"
	AdapterErrInsufficientBalance AdapterErrorKind = "INSUFFICIENT_BALANCE"
	AdapterErrNetwork             AdapterErrorKind = "NETWORK"
	AdapterErrBadRequest          AdapterErrorKind = "BAD_REQUEST"
	AdapterErrUnknown             AdapterErrorKind = "UNKNOWN"
)

// ClassifyAdapterError maps the platform's standard sentinel errors onto
// the adapter error taxonomy, so a venue.Adapter implementation built on
// top of apperrors only needs to return the sentinel and let the core
// classify it.
func ClassifyAdapterError(err error) AdapterErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperrors.ErrOrderNotFound):
		return AdapterErrNotFound
	case errors.Is(err, apperrors.ErrRateLimitExceeded), errors.Is(err, apperrors.ErrSystemOverload):
		return AdapterErrRateLimited
	case errors.Is(err, apperrors.ErrInvalidSymbol), errors.Is(err, apperrors.ErrTimestampOutOfBounds):
		return AdapterErrBadRequest
	case errors.Is(err, apperrors.ErrInvalidOrderParameter), errors.Is(err, apperrors.ErrDuplicateOrder):
		return AdapterErrBadRequest
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		return AdapterErrInsufficientBalance
	case errors.Is(err, apperrors.ErrNetwork), errors.Is(err, apperrors.ErrExchangeMaintenance), errors.Is(err, apperrors.ErrAuthenticationFailed):
		return AdapterErrNetwork
	default:
		return AdapterErrUnknown
	}
}

// OrderResult is the result of placing, canceling, or closing an order.
type OrderResult struct {
	Success      bool
	OrderID      string
	FilledSize   decimal.Decimal
	AvgFillPrice decimal.Decimal
	FeePaid      decimal.Decimal
	ErrorKind    AdapterErrorKind
	Err          error
}

// OrderbookLevel is a single (price, size) level of an orderbook.
type OrderbookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderbookSnapshot is a point-in-time view of one venue's book for a symbol.
// Bids are ordered descending by price, asks ascending by price. Valid when
// non-crossed: Asks[0].Price > Bids[0].Price.
type OrderbookSnapshot struct {
	Symbol         string
	Venue          Venue
	Bids           []OrderbookLevel
	Asks           []OrderbookLevel
	Timestamp      time.Time
	SequenceNumber *int64
}

// BestBid returns the best bid level, or ok=false if there are no bids.
func (s OrderbookSnapshot) BestBid() (OrderbookLevel, bool) {
	if len(s.Bids) == 0 {
		return OrderbookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the best ask level, or ok=false if there are no asks.
func (s OrderbookSnapshot) BestAsk() (OrderbookLevel, bool) {
	if len(s.Asks) == 0 {
		return OrderbookLevel{}, false
	}
	return s.Asks[0], true
}

// MarketInfo describes a symbol's tradable-unit constraints on one venue.
type MarketInfo struct {
	LotSize         decimal.Decimal
	TickSize        decimal.Decimal
	MinOrderSizeCoins decimal.Decimal
	MinNotionalUsd    decimal.Decimal
}

// TradeFill describes one fill (order ID, quantity, price). Nothing in this
// module consumes it: fill detection uses order status, venue.MyTrade trade
// history and pushed domain.Position updates.
type TradeFill struct {
	OrderID string
	Qty     decimal.Decimal
	Price   decimal.Decimal
}
