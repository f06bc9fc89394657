// Package store defines the persistence interface the core consumes.
// The real SQLite-backed implementation is an external collaborator and
// out of scope; this package provides only the interface. The in-memory
// fake used by tests is hedgetest.Store.
package store

import (
	"context"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
)

// Patch is a partial update applied to a TradeRecord by updateTrade.
type Patch map[string]interface{}

// Store is the persistence interface consumed by the core. All
// methods are async (accept a context and may block on I/O).
type Store interface {
	CreateTrade(ctx context.Context, record *domain.TradeRecord) error
	UpdateTrade(ctx context.Context, tradeID string, patch Patch) error
	ListOpenTrades(ctx context.Context) ([]*domain.TradeRecord, error)
	ListTrades(ctx context.Context, status domain.TradeStatus, limit int) ([]*domain.TradeRecord, error)
}
