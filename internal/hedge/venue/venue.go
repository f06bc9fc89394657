// Package venue defines the adapter interface the core consumes for each
// perpetual-futures venue. Implementations are external collaborators
// (real REST/WebSocket adapters); the core only ever programs against this
// interface.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
)

// OpenOrder is a resting order as reported by getOpenOrders.
type OpenOrder struct {
	ID    string
	Side  domain.OrderSide
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderStatus is the result of getOrderStatus.
type OrderStatus struct {
	Found        bool
	Status       string // e.g. "NEW", "FILLED", "PARTIALLY_FILLED", "CANCELED"
	FilledAmount decimal.Decimal
	AvgPrice     decimal.Decimal
}

// MyTrade is one entry from fetchMyTrades.
type MyTrade struct {
	OrderID string
	Qty     decimal.Decimal
	Price   decimal.Decimal
}

// PositionCallback is invoked by the adapter when a position update is
// pushed for event-driven fill detection. The adapter never imports the
// engine; it only calls this narrow notifier.
type PositionCallback func(domain.Position)

// Adapter is the capability set the core requires of a single venue.
// One implementation exists per venue; the core never type-switches on
// concrete adapters.
type Adapter interface {
	Name() domain.Venue

	PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, kind domain.OrderKind, size decimal.Decimal, price *decimal.Decimal, reduceOnly, postOnly bool) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	CancelAllOrders(ctx context.Context, symbol string) (bool, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (OrderStatus, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	FetchOpenPositions(ctx context.Context) ([]domain.Position, error)
	FetchMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	FetchOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error)
	FetchMyTrades(ctx context.Context, symbol string, limit int) ([]MyTrade, error)
	GetMarketInfo(ctx context.Context, symbol string) (domain.MarketInfo, error)

	RegisterPositionCallback(fn PositionCallback)

	ClosePosition(ctx context.Context, symbol string, originalSide domain.OrderSide, notionalUsd decimal.Decimal) (domain.OrderResult, error)

	Shutdown(ctx context.Context) error
}
