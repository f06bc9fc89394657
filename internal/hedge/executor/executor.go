package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/sizer"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/validator"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/tradingutils"
)

// EntryRequest is the input to ExecuteHedgedEntry. SideA/SideB follow the
// maker/hedge naming of the TradeExecution they produce: SideA is placed
// on MakerVenue, SideB on its opposite.
type EntryRequest struct {
	Symbol     string
	MakerVenue domain.Venue
	SideA      domain.OrderSide
	SideB      domain.OrderSide
	TargetUsd  decimal.Decimal
	Volatility VolatilityHint
}

// EntryResult mirrors the public return shape of executeHedgedEntry:
// success plus both leg order IDs where known.
type EntryResult struct {
	Success     bool
	LegAOrderID string
	LegBOrderID string
	ErrorKind   domain.ErrorKind
	Execution   *domain.TradeExecution
}

// ExitResult mirrors executeHedgedExit's return shape.
type ExitResult struct {
	Success bool
}

// RollbackEnqueuer is the subset of the rollback queue that the executor depends on: handing off a
// TradeExecution whose named leg still needs closing.
type RollbackEnqueuer interface {
	Enqueue(ctx context.Context, exec *domain.TradeExecution, legToClose domain.Venue)
}

// Engine is the execution state machine. Per-symbol locks allow at most
// one hedged entry or exit per symbol at a time; a call that finds its
// symbol locked returns at once instead of waiting (ErrKindBusy for entries).
type Engine struct {
	cfg      Config
	venues   map[domain.Venue]venue.Adapter
	validator *validator.Validator
	store    store.Store
	bus      eventbus.Bus
	rollback RollbackEnqueuer
	logger   logging.ILogger

	complianceCache *complianceCache

	lockMu      sync.Mutex
	symbolLocks map[string]*sync.Mutex

	shuttingDown atomic.Bool

	statsMu sync.Mutex
	stats   ExecutionStats

	activeMu sync.Mutex
	active   map[string]*domain.TradeExecution

	// posCache and fillSignal are the event-driven half of fill detection:
	// adapters push position updates here as they stream in, and
	// waitForMakerFill wakes on them instead of waiting for the next poll
	// tick. GetOrderStatus polling remains the fallback when nothing pushes.
	posCacheMu sync.Mutex
	posCache   map[domain.Venue]map[string]domain.Position
	fillSignal chan string
}

// ExecutionStats are the counters exposed by getExecutionStats.
type ExecutionStats struct {
	Total               int64
	Successful          int64
	Failed              int64
	RollbacksTriggered  int64
	RollbacksSuccessful int64
	RollbacksFailed     int64
	ActiveExecutions    int
	PendingRollbacks    int
	PerStateCounts      map[domain.ExecutionState]int64
}

// New builds an Engine. venues must contain both domain.VenueA and
// domain.VenueB. rollback may be nil and wired in later with
// SetRollbackEnqueuer; while it is nil, failed executions are not enqueued
// for rollback.
func New(cfg Config, venues map[domain.Venue]venue.Adapter, v *validator.Validator, st store.Store, bus eventbus.Bus, rollback RollbackEnqueuer, logger logging.ILogger) *Engine {
	e := &Engine{
		cfg:             cfg,
		venues:          venues,
		validator:       v,
		store:           st,
		bus:             bus,
		rollback:        rollback,
		logger:          logger.WithField("component", "executor"),
		complianceCache: newComplianceCache(),
		symbolLocks:     make(map[string]*sync.Mutex),
		active:          make(map[string]*domain.TradeExecution),
		stats:           ExecutionStats{PerStateCounts: make(map[domain.ExecutionState]int64)},
		posCache:        make(map[domain.Venue]map[string]domain.Position),
		fillSignal:      make(chan string, 64),
	}
	for venueID, adapter := range venues {
		adapter.RegisterPositionCallback(e.onPositionUpdate(venueID))
	}
	return e
}

// onPositionUpdate builds the per-venue callback handed to RegisterPositionCallback.
// It caches the pushed position and wakes any waitForMakerFill loop blocked
// on that symbol; the callback must never block the adapter's stream goroutine.
func (e *Engine) onPositionUpdate(v domain.Venue) venue.PositionCallback {
	return func(pos domain.Position) {
		e.posCacheMu.Lock()
		if e.posCache[v] == nil {
			e.posCache[v] = make(map[string]domain.Position)
		}
		e.posCache[v][pos.Symbol] = pos
		e.posCacheMu.Unlock()

		select {
		case e.fillSignal <- pos.Symbol:
		default:
		}
	}
}

// cachedPosition returns the most recently pushed, non-flat position for a
// venue/symbol pair, if any. This is the fast path findPosition checks
// before falling back to a FetchOpenPositions poll.
func (e *Engine) cachedPosition(v domain.Venue, symbol string) (domain.Position, bool) {
	e.posCacheMu.Lock()
	defer e.posCacheMu.Unlock()
	pos, ok := e.posCache[v][symbol]
	if !ok || pos.IsFlat() {
		return domain.Position{}, false
	}
	return pos, true
}

// SetShuttingDown flips the process-wide shutdown flag observed by every
// blocking wait inside this engine.
func (e *Engine) SetShuttingDown(v bool) {
	e.shuttingDown.Store(v)
}

// SetRollbackEnqueuer wires the rollback queue in after construction. The two components
// depend on each other (the queue reports outcomes back here), so the
// caller builds this engine with a nil rollback first, then the queue
// naming this engine as its notifier, then calls this to close the loop.
func (e *Engine) SetRollbackEnqueuer(r RollbackEnqueuer) {
	e.rollback = r
}

func (e *Engine) isShuttingDown() bool {
	return e.shuttingDown.Load()
}

func (e *Engine) tryLockSymbol(symbol string) (*sync.Mutex, bool) {
	e.lockMu.Lock()
	lock, ok := e.symbolLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.symbolLocks[symbol] = lock
	}
	e.lockMu.Unlock()
	return lock, lock.TryLock()
}

// ExecuteHedgedEntry drives one hedged entry end to end.
func (e *Engine) ExecuteHedgedEntry(ctx context.Context, req EntryRequest) (EntryResult, error) {
	if e.isShuttingDown() {
		return EntryResult{ErrorKind: domain.ErrKindShuttingDown}, nil
	}

	lock, acquired := e.tryLockSymbol(req.Symbol)
	if !acquired {
		return EntryResult{ErrorKind: domain.ErrKindBusy}, nil
	}
	defer lock.Unlock()

	makerAdapter, ok := e.venues[req.MakerVenue]
	if !ok {
		return EntryResult{ErrorKind: domain.ErrKindInternal}, nil
	}
	hedgeVenue := req.MakerVenue.Opposite()
	hedgeAdapter, ok := e.venues[hedgeVenue]
	if !ok {
		return EntryResult{ErrorKind: domain.ErrKindInternal}, nil
	}

	// Pre-clean: best-effort cancel of stale resting orders on both venues.
	_, _ = makerAdapter.CancelAllOrders(ctx, req.Symbol)
	_, _ = hedgeAdapter.CancelAllOrders(ctx, req.Symbol)

	if violation, _ := e.checkCompliance(ctx, req); violation {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindSelfMatchRisk}, nil
	}

	snapshot, err := makerAdapter.FetchOrderbook(ctx, req.Symbol, e.cfg.OrderbookDepth)
	if err != nil {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindOrderbookInvalid}, nil
	}
	vres := e.validator.Evaluate(ctx, req.Symbol, req.SideA, req.TargetUsd, snapshot, time.Now(), makerAdapter)
	if !vres.Valid {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindOrderbookInvalid}, nil
	}

	makerInfo, err := makerAdapter.GetMarketInfo(ctx, req.Symbol)
	if err != nil {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindInternal}, nil
	}
	hedgeInfo, err := hedgeAdapter.GetMarketInfo(ctx, req.Symbol)
	if err != nil {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindInternal}, nil
	}

	refPrice := midPrice(snapshot)
	sizeRes := sizer.Align(req.TargetUsd, refPrice, makerInfo.LotSize, hedgeInfo.LotSize)
	if !sizeRes.Coins.IsPositive() {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindInternal}, nil
	}

	price, ok := validator.RecommendedPrice(snapshot, req.SideA, makerInfo.TickSize)
	if !ok {
		e.bumpTotalAndFailed()
		return EntryResult{ErrorKind: domain.ErrKindOrderbookInvalid}, nil
	}

	exec := domain.NewTradeExecution(req.Symbol, req.SideA, req.SideB, req.MakerVenue, req.TargetUsd)
	exec.PlannedQuantityCoins = sizeRes.Coins
	e.registerActive(req.Symbol, exec)
	defer e.unregisterActive(req.Symbol)

	// TradeRecord sides and entry prices are keyed by venue (A = VenueA), as
	// ExecuteHedgedExit and the reconciler read them; the request and the
	// TradeExecution key them by maker/hedge role instead.
	recSideA, recSideB := req.SideA, req.SideB
	if req.MakerVenue == domain.VenueB {
		recSideA, recSideB = req.SideB, req.SideA
	}

	tradeID := uuid.NewString()
	exec.TradeID = tradeID
	record := &domain.TradeRecord{
		TradeID:        tradeID,
		Symbol:         req.Symbol,
		SideA:          recSideA,
		SideB:          recSideB,
		SizeUsd:        sizeRes.AlignedUsd,
		Status:         domain.StatusPending,
		ExecutionState: domain.StatePending,
		CreatedAt:      time.Now(),
		Metadata:       map[string]interface{}{},
	}
	if e.store != nil {
		_ = e.store.CreateTrade(ctx, record)
	}

	outcome, legAOrderID, failKind := e.runLeg1(ctx, makerAdapter, req, exec, sizeRes.Coins, price, makerInfo.TickSize, hedgeInfo.MinOrderSizeCoins, vres.SameSideDepthUsd)
	if failKind != "" {
		e.updateRecordState(ctx, tradeID, domain.StatusFailed, exec.State)
		e.bumpTotalAndFailed()
		return EntryResult{LegAOrderID: legAOrderID, ErrorKind: failKind, Execution: exec}, nil
	}

	exec.LegAFilled = true
	exec.EntryPriceA = outcome.avgPrice
	exec.ActualFilledQuantity = outcome.filledQty
	e.recordTransition(exec, domain.StateLeg1Filled, map[string]interface{}{"filled_qty": outcome.filledQty.String(), "ghost": outcome.ghost})
	e.updateRecordState(ctx, tradeID, domain.StatusOpening, domain.StateLeg1Filled)

	e.recordTransition(exec, domain.StateLeg2Sent, nil)
	legB, err := hedgeAdapter.PlaceOrder(ctx, req.Symbol, req.SideB, domain.OrderKindMarketIOC, outcome.filledQty, nil, false, false)
	if err != nil || !legB.Success {
		e.recordTransition(exec, domain.StateRollbackQueued, map[string]interface{}{"reason": "leg2_place_failed"})
		e.enqueueRollback(ctx, exec, req.MakerVenue)
		e.updateRecordState(ctx, tradeID, domain.StatusRollback, domain.StateRollbackQueued)
		e.publish(ctx, eventbus.EventCriticalError, map[string]interface{}{"symbol": req.Symbol, "reason": "leg2_place_failed", "trade_id": tradeID})
		e.bumpTotalAndFailed()
		e.bumpRollbackTriggered()
		return EntryResult{Success: false, LegAOrderID: legAOrderID, ErrorKind: domain.ErrKindLeg2PlaceFailed, Execution: exec}, nil
	}

	exec.LegBOrderID = legB.OrderID
	exec.LegBFilled = true
	exec.EntryPriceB = legB.AvgFillPrice

	select {
	case <-time.After(time.Duration(e.cfg.Leg2SettleWaitSeconds * float64(time.Second))):
	case <-ctx.Done():
	}

	spread := entrySpreadPct(exec.EntryPriceA, exec.EntryPriceB)
	if spread.GreaterThan(e.cfg.MaxEntrySpreadPercent) && e.cfg.AutoCloseBadEntries {
		exec.RecordEvent("bad_entry_spread", map[string]interface{}{"spread_pct": spread.String()})
		e.recordTransition(exec, domain.StateRollbackQueued, map[string]interface{}{"reason": "bad_entry_spread"})
		// Both legs filled: this is a full unwind, not a single-leg
		// rollback, but it reuses the same verified-close protocol on
		// each venue independently.
		e.enqueueRollback(ctx, exec, req.MakerVenue)
		e.enqueueRollback(ctx, exec, hedgeVenue)
		e.updateRecordState(ctx, tradeID, domain.StatusRollback, domain.StateRollbackQueued)
		e.bumpTotalAndFailed()
		e.bumpRollbackTriggered()
		return EntryResult{Success: false, LegAOrderID: legAOrderID, LegBOrderID: legB.OrderID, ErrorKind: domain.ErrKindBadEntrySpread, Execution: exec}, nil
	}

	e.recordTransition(exec, domain.StateComplete, nil)
	now := time.Now()
	recPriceA, recPriceB := exec.EntryPriceA, exec.EntryPriceB
	if req.MakerVenue == domain.VenueB {
		recPriceA, recPriceB = recPriceB, recPriceA
	}
	if e.store != nil {
		_ = e.store.UpdateTrade(ctx, tradeID, store.Patch{
			"status":         domain.StatusOpen,
			"executionState": domain.StateComplete,
			"entryPriceA":    recPriceA,
			"entryPriceB":    recPriceB,
			"openedAt":       now,
		})
	}
	e.publish(ctx, eventbus.EventTradeOpened, map[string]interface{}{"trade_id": tradeID, "symbol": req.Symbol})
	e.bumpTotalAndSuccessful()

	return EntryResult{Success: true, LegAOrderID: legAOrderID, LegBOrderID: legB.OrderID, Execution: exec}, nil
}

// ExecuteHedgedExit unwinds an open trade via reduce-only market closes on
// both venues, verified via position reads.
func (e *Engine) ExecuteHedgedExit(ctx context.Context, tradeID string, reason string) (ExitResult, error) {
	if e.isShuttingDown() {
		return ExitResult{}, nil
	}
	record, err := e.findTradeRecord(ctx, tradeID)
	if err != nil || record == nil {
		return ExitResult{}, nil
	}

	lock, acquired := e.tryLockSymbol(record.Symbol)
	if !acquired {
		return ExitResult{}, nil
	}
	defer lock.Unlock()

	makerAdapter, hedgeAdapter := e.venues[domain.VenueA], e.venues[domain.VenueB]
	aOK := e.verifiedClose(ctx, makerAdapter, record.Symbol, record.SideA)
	bOK := e.verifiedClose(ctx, hedgeAdapter, record.Symbol, record.SideB)

	now := time.Now()
	status := domain.StatusClosed
	if !aOK || !bOK {
		status = domain.StatusFailed
	}
	if e.store != nil {
		_ = e.store.UpdateTrade(ctx, tradeID, store.Patch{"status": status, "closedAt": now, "closeReason": reason})
	}
	e.publish(ctx, eventbus.EventTradeClosed, map[string]interface{}{"trade_id": tradeID, "reason": reason})
	return ExitResult{Success: aOK && bOK}, nil
}

func (e *Engine) verifiedClose(ctx context.Context, adapter venue.Adapter, symbol string, originalSide domain.OrderSide) bool {
	if adapter == nil {
		return true
	}
	pos, ok := e.pollPosition(ctx, adapter, symbol)
	if !ok {
		return true
	}
	notional := pos.SignedSize.Abs().Mul(pos.MarkPrice)
	_, _ = adapter.ClosePosition(ctx, symbol, originalSide, notional)
	select {
	case <-time.After(time.Duration(e.cfg.Leg2SettleWaitSeconds * float64(time.Second))):
	case <-ctx.Done():
	}
	if p2, ok2 := e.pollPosition(ctx, adapter, symbol); ok2 {
		return p2.IsFlat()
	}
	return true
}

func (e *Engine) findTradeRecord(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	records, err := e.store.ListOpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.TradeID == tradeID {
			return r, nil
		}
	}
	return nil, nil
}

func (e *Engine) enqueueRollback(ctx context.Context, exec *domain.TradeExecution, legToClose domain.Venue) {
	if e.rollback == nil {
		return
	}
	e.rollback.Enqueue(ctx, exec, legToClose)
}

func (e *Engine) updateRecordState(ctx context.Context, tradeID string, status domain.TradeStatus, state domain.ExecutionState) {
	if e.store == nil {
		return
	}
	_ = e.store.UpdateTrade(ctx, tradeID, store.Patch{"status": status, "executionState": state})
}

func (e *Engine) publish(ctx context.Context, name eventbus.EventName, details map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, eventbus.Event{Name: name, Details: details})
}

func (e *Engine) registerActive(symbol string, exec *domain.TradeExecution) {
	e.activeMu.Lock()
	e.active[symbol] = exec
	e.activeMu.Unlock()
}

func (e *Engine) unregisterActive(symbol string) {
	e.activeMu.Lock()
	delete(e.active, symbol)
	e.activeMu.Unlock()
}

// recordTransition moves exec to state and bumps the matching per-state
// counter in the same step, so GetExecutionStats().PerStateCounts reflects
// every transition this engine makes. The rollback queue's own
// ROLLBACK_IN_PROGRESS/ROLLBACK_DONE/ROLLBACK_FAILED transitions do not go
// through here and are not counted.
func (e *Engine) recordTransition(exec *domain.TradeExecution, state domain.ExecutionState, details map[string]interface{}) {
	exec.Transition(state, details)
	e.statsMu.Lock()
	e.stats.PerStateCounts[state]++
	e.statsMu.Unlock()
}

func (e *Engine) bumpTotalAndSuccessful() {
	e.statsMu.Lock()
	e.stats.Total++
	e.stats.Successful++
	e.statsMu.Unlock()
}

func (e *Engine) bumpTotalAndFailed() {
	e.statsMu.Lock()
	e.stats.Total++
	e.stats.Failed++
	e.statsMu.Unlock()
}

func (e *Engine) bumpRollbackTriggered() {
	e.statsMu.Lock()
	e.stats.RollbacksTriggered++
	e.statsMu.Unlock()
}

// NoteRollbackOutcome lets the rollback engine report terminal outcomes
// back into the shared stats counters.
func (e *Engine) NoteRollbackOutcome(success bool) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	if success {
		e.stats.RollbacksSuccessful++
	} else {
		e.stats.RollbacksFailed++
	}
}

// GetExecutionStats returns a snapshot of the counters.
func (e *Engine) GetExecutionStats() ExecutionStats {
	e.statsMu.Lock()
	snapshot := e.stats
	snapshot.PerStateCounts = make(map[domain.ExecutionState]int64, len(e.stats.PerStateCounts))
	for k, v := range e.stats.PerStateCounts {
		snapshot.PerStateCounts[k] = v
	}
	e.statsMu.Unlock()

	e.activeMu.Lock()
	snapshot.ActiveExecutions = len(e.active)
	e.activeMu.Unlock()
	return snapshot
}

func midPrice(s domain.OrderbookSnapshot) decimal.Decimal {
	bestBid, hasBid := s.BestBid()
	bestAsk, hasAsk := s.BestAsk()
	switch {
	case hasBid && hasAsk:
		return bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2))
	case hasBid:
		return bestBid.Price
	case hasAsk:
		return bestAsk.Price
	default:
		return decimal.Zero
	}
}

func entrySpreadPct(priceA, priceB decimal.Decimal) decimal.Decimal {
	mid := priceA.Add(priceB).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.Zero
	}
	return priceA.Sub(priceB).Abs().Div(mid)
}

func chasePrice(base decimal.Decimal, side domain.OrderSide, k decimal.Decimal, attempt int, tickSize decimal.Decimal) decimal.Decimal {
	factor := k.Mul(decimal.NewFromInt(int64(attempt)))
	var raw decimal.Decimal
	if side == domain.SideSell {
		raw = base.Mul(decimal.NewFromInt(1).Sub(factor))
	} else {
		raw = base.Mul(decimal.NewFromInt(1).Add(factor))
	}
	if tickSize.IsZero() {
		return raw
	}
	// Every chase step must still land on a tradable tick; reuse
	// the same anchor/interval alignment the grid engine uses for levels.
	return tradingutils.FindNearestGridPrice(raw, decimal.Zero, tickSize)
}
