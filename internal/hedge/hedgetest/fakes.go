// Package hedgetest provides in-memory fakes of the venue, store, and
// event bus interfaces, shared across the hedge engine's test suites so
// each package does not redefine its own scripted adapter.
package hedgetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
)

// ScriptedOrder is a canned PlaceOrder outcome, consumed in order for a
// given symbol.
type ScriptedOrder struct {
	Result domain.OrderResult
	Err    error
}

// Adapter is a scriptable fake venue.Adapter. Tests push canned responses
// and then drive ExecuteHedgedEntry/Exit against it.
type Adapter struct {
	mu sync.Mutex

	name domain.Venue

	PlaceQueue map[string][]ScriptedOrder // keyed by symbol
	orderSeq   int

	orders    map[string]*venue.OpenOrder
	statuses  map[string]venue.OrderStatus
	trades    map[string][]venue.MyTrade
	positions map[string]domain.Position
	books     map[string]domain.OrderbookSnapshot
	marks     map[string]decimal.Decimal
	markets   map[string]domain.MarketInfo

	CancelOrderFunc  func(symbol, orderID string) (bool, error)
	CloseFunc        func(symbol string, side domain.OrderSide, notionalUsd decimal.Decimal) (domain.OrderResult, error)
	callback         venue.PositionCallback
}

// NewAdapter builds an empty fake adapter for the given venue identity.
func NewAdapter(name domain.Venue) *Adapter {
	return &Adapter{
		name:       name,
		PlaceQueue: make(map[string][]ScriptedOrder),
		orders:     make(map[string]*venue.OpenOrder),
		statuses:   make(map[string]venue.OrderStatus),
		trades:     make(map[string][]venue.MyTrade),
		positions:  make(map[string]domain.Position),
		books:      make(map[string]domain.OrderbookSnapshot),
		marks:      make(map[string]decimal.Decimal),
		markets:    make(map[string]domain.MarketInfo),
	}
}

func (a *Adapter) Name() domain.Venue { return a.name }

// QueueOrder schedules the next PlaceOrder call for symbol to return res.
func (a *Adapter) QueueOrder(symbol string, res domain.OrderResult, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PlaceQueue[symbol] = append(a.PlaceQueue[symbol], ScriptedOrder{Result: res, Err: err})
}

// SetOrderStatus pre-seeds the status returned by GetOrderStatus.
func (a *Adapter) SetOrderStatus(orderID string, st venue.OrderStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[orderID] = st
}

// SetPosition sets (or clears, with a zero size) the position reported for
// a symbol.
func (a *Adapter) SetPosition(symbol string, pos domain.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos.Symbol = symbol
	a.positions[symbol] = pos
}

// SetMarketInfo pre-seeds GetMarketInfo's result for a symbol.
func (a *Adapter) SetMarketInfo(symbol string, info domain.MarketInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markets[symbol] = info
}

// SetOrderbook pre-seeds FetchOrderbook's result for a symbol.
func (a *Adapter) SetOrderbook(symbol string, ob domain.OrderbookSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.books[symbol] = ob
}

// AddTrade appends a fill visible to FetchMyTrades/trade-history fallback.
func (a *Adapter) AddTrade(symbol string, t venue.MyTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades[symbol] = append(a.trades[symbol], t)
}

func (a *Adapter) PlaceOrder(_ context.Context, symbol string, side domain.OrderSide, kind domain.OrderKind, size decimal.Decimal, price *decimal.Decimal, reduceOnly, postOnly bool) (domain.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	queue := a.PlaceQueue[symbol]
	if len(queue) > 0 {
		next := queue[0]
		a.PlaceQueue[symbol] = queue[1:]
		if next.Result.OrderID == "" && next.Err == nil {
			next.Result.OrderID = a.nextOrderID()
		}
		if next.Err == nil {
			a.orders[next.Result.OrderID] = &venue.OpenOrder{ID: next.Result.OrderID, Side: side, Size: size}
		}
		return next.Result, next.Err
	}

	// Default: accept and fill fully at the given price. An unpriced
	// (market) order fills at the seeded book's best opposite level, or at
	// zero when no book is seeded for the symbol.
	id := a.nextOrderID()
	filledPrice := decimal.Zero
	if price != nil {
		filledPrice = *price
	} else if book, ok := a.books[symbol]; ok {
		if side == domain.SideBuy {
			if lvl, ok := book.BestAsk(); ok {
				filledPrice = lvl.Price
			}
		} else if lvl, ok := book.BestBid(); ok {
			filledPrice = lvl.Price
		}
	}
	result := domain.OrderResult{Success: true, OrderID: id, FilledSize: size, AvgFillPrice: filledPrice}
	a.statuses[id] = venue.OrderStatus{Found: true, Status: "FILLED", FilledAmount: size, AvgPrice: filledPrice}
	return result, nil
}

func (a *Adapter) nextOrderID() string {
	a.orderSeq++
	return fmt.Sprintf("%s-order-%d", a.name, a.orderSeq)
}

func (a *Adapter) CancelOrder(_ context.Context, symbol, orderID string) (bool, error) {
	if a.CancelOrderFunc != nil {
		return a.CancelOrderFunc(symbol, orderID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.orders, orderID)
	if st, ok := a.statuses[orderID]; ok && st.Status != "FILLED" {
		st.Status = "CANCELED"
		a.statuses[orderID] = st
	}
	return true, nil
}

func (a *Adapter) CancelAllOrders(_ context.Context, symbol string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, o := range a.orders {
		_ = o
		delete(a.orders, id)
	}
	return true, nil
}

func (a *Adapter) GetOrderStatus(_ context.Context, _ string, orderID string) (venue.OrderStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.statuses[orderID]
	if !ok {
		return venue.OrderStatus{Found: false}, nil
	}
	return st, nil
}

func (a *Adapter) GetOpenOrders(_ context.Context, symbol string) ([]venue.OpenOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]venue.OpenOrder, 0, len(a.orders))
	for _, o := range a.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (a *Adapter) FetchOpenPositions(_ context.Context) ([]domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Position, 0, len(a.positions))
	for _, p := range a.positions {
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *Adapter) FetchMarkPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.marks[symbol], nil
}

func (a *Adapter) FetchOrderbook(_ context.Context, symbol string, _ int) (domain.OrderbookSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.books[symbol], nil
}

func (a *Adapter) FetchMyTrades(_ context.Context, symbol string, _ int) ([]venue.MyTrade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]venue.MyTrade(nil), a.trades[symbol]...), nil
}

func (a *Adapter) GetMarketInfo(_ context.Context, symbol string) (domain.MarketInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.markets[symbol]
	if !ok {
		return domain.MarketInfo{LotSize: decimal.NewFromFloat(0.001), TickSize: decimal.NewFromFloat(0.01), MinOrderSizeCoins: decimal.NewFromFloat(0.001)}, nil
	}
	return info, nil
}

func (a *Adapter) RegisterPositionCallback(fn venue.PositionCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = fn
}

// PushPositionUpdate invokes the registered callback, simulating a pushed
// position-update stream event used for fill detection.
func (a *Adapter) PushPositionUpdate(pos domain.Position) {
	a.mu.Lock()
	cb := a.callback
	a.mu.Unlock()
	if cb != nil {
		cb(pos)
	}
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, originalSide domain.OrderSide, notionalUsd decimal.Decimal) (domain.OrderResult, error) {
	if a.CloseFunc != nil {
		return a.CloseFunc(symbol, originalSide, notionalUsd)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.positions, symbol)
	return domain.OrderResult{Success: true, OrderID: a.nextOrderID()}, nil
}

func (a *Adapter) Shutdown(_ context.Context) error { return nil }

// Store is an in-memory fake of store.Store.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.TradeRecord
}

// NewStore builds an empty fake store.
func NewStore() *Store {
	return &Store{records: make(map[string]*domain.TradeRecord)}
}

func (s *Store) CreateTrade(_ context.Context, record *domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.TradeID == "" {
		record.TradeID = uuid.NewString()
	}
	cp := *record
	s.records[record.TradeID] = &cp
	return nil
}

func (s *Store) UpdateTrade(_ context.Context, tradeID string, patch store.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tradeID]
	if !ok {
		return fmt.Errorf("trade %s not found", tradeID)
	}
	applyPatch(rec, patch)
	return nil
}

func (s *Store) ListOpenTrades(_ context.Context) ([]*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TradeRecord
	for _, r := range s.records {
		switch r.Status {
		case domain.StatusOpen, domain.StatusOpening, domain.StatusPending, domain.StatusClosing:
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListTrades(_ context.Context, status domain.TradeStatus, limit int) ([]*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TradeRecord
	for _, r := range s.records {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Get returns the stored record by ID, for test assertions.
func (s *Store) Get(tradeID string) (*domain.TradeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[tradeID]
	return r, ok
}

func applyPatch(rec *domain.TradeRecord, patch store.Patch) {
	for k, v := range patch {
		switch k {
		case "status":
			rec.Status = v.(domain.TradeStatus)
		case "executionState":
			rec.ExecutionState = v.(domain.ExecutionState)
		case "entryPriceA":
			rec.EntryPriceA = v.(decimal.Decimal)
		case "entryPriceB":
			rec.EntryPriceB = v.(decimal.Decimal)
		case "closeReason":
			rec.CloseReason = v.(string)
		case "closedAt":
			t := v.(time.Time)
			rec.ClosedAt = &t
		case "openedAt":
			t := v.(time.Time)
			rec.OpenedAt = &t
		}
	}
}

// Bus is an in-memory fake of eventbus.Bus that records every publish.
type Bus struct {
	mu     sync.Mutex
	Events []eventbus.Event
}

// NewBus builds an empty fake bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(_ context.Context, event eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, event)
}
