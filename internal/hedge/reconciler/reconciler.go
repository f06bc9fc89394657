package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/concurrency"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// venuePositions maps a venue to the (non-dust) position it reports for
// one symbol.
type venuePositions map[domain.Venue]domain.Position

// Reconciler runs the startup/interval sweep and the separate late-fill
// sweep. It never opens positions, only closes or relabels.
type Reconciler struct {
	cfg    Config
	venues map[domain.Venue]venue.Adapter
	store  store.Store
	bus    eventbus.Bus
	pool   *concurrency.WorkerPool
	logger logging.ILogger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Reconciler. Call Start to run the startup sweep and launch
// the interval loop.
func New(cfg Config, venues map[domain.Venue]venue.Adapter, st store.Store, bus eventbus.Bus, logger logging.ILogger) *Reconciler {
	logger = logger.WithField("component", "reconciler")
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "reconciler",
		MaxWorkers:  cfg.Concurrency,
		MaxCapacity: 1024,
	}, logger)
	return &Reconciler{
		cfg:    cfg,
		venues: venues,
		store:  st,
		bus:    bus,
		pool:   pool,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start runs the startup sweep synchronously, then launches the interval
// loop in the background.
func (r *Reconciler) Start(ctx context.Context) {
	r.sweep(ctx, true)
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop halts the interval loop and the worker pool. Already-running sweeps
// are allowed to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.pool.Stop()
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Duration(r.cfg.IntervalSeconds * float64(time.Second)))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep(ctx, false)
			r.lateFillSweep(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep runs one pass of the main reconciliation algorithm.
func (r *Reconciler) sweep(ctx context.Context, startup bool) {
	if r.store == nil {
		return
	}
	records, err := r.store.ListOpenTrades(ctx)
	if err != nil {
		r.logger.Error("reconciler: list open trades failed", "error", err)
		return
	}

	positionsBySymbol := r.fetchPositionsBySymbol(ctx)

	recordsBySymbol := make(map[string]*domain.TradeRecord, len(records))
	for _, rec := range records {
		recordsBySymbol[rec.Symbol] = rec
	}

	symbols := make(map[string]struct{}, len(records)+len(positionsBySymbol))
	for s := range recordsBySymbol {
		symbols[s] = struct{}{}
	}
	for s := range positionsBySymbol {
		symbols[s] = struct{}{}
	}

	var wg sync.WaitGroup
	now := time.Now()
	for symbol := range symbols {
		symbol := symbol
		rec := recordsBySymbol[symbol]
		pos := positionsBySymbol[symbol]
		wg.Add(1)
		_ = r.pool.Submit(func() {
			defer wg.Done()
			r.reconcileSymbol(ctx, symbol, rec, pos, now, startup)
		})
	}
	wg.Wait()
}

func (r *Reconciler) reconcileSymbol(ctx context.Context, symbol string, rec *domain.TradeRecord, pos venuePositions, now time.Time, startup bool) {
	if rec == nil {
		// Ghost: a position with no trade record at all.
		if len(pos) > 0 {
			r.handleGhost(ctx, symbol, pos)
		}
		return
	}

	if !r.isZombieCandidate(rec, now, startup) {
		return
	}

	if len(pos) == 0 {
		r.closeZombie(ctx, rec)
		return
	}

	if r.detectConflict(pos) {
		r.flattenConflict(ctx, rec, pos)
	}
}

func (r *Reconciler) isZombieCandidate(rec *domain.TradeRecord, now time.Time, startup bool) bool {
	switch rec.Status {
	case domain.StatusOpen, domain.StatusClosing:
		return true
	case domain.StatusPending:
		if startup {
			return true
		}
		return now.Sub(rec.CreatedAt).Seconds() > r.cfg.PendingStaleSeconds
	case domain.StatusOpening:
		if startup {
			return true
		}
		threshold := r.cfg.OpeningMakerTimeoutSeconds*float64(r.cfg.OpeningMaxRetries+1) + r.cfg.OpeningBufferSeconds
		return now.Sub(rec.CreatedAt).Seconds() > threshold
	default:
		return false
	}
}

// closeZombie handles a trade record with no matching on-exchange
// position: OPEN/CLOSING become CLOSED, orphaned OPENING/PENDING become
// FAILED.
func (r *Reconciler) closeZombie(ctx context.Context, rec *domain.TradeRecord) {
	for _, adapter := range r.venues {
		_, _ = adapter.CancelAllOrders(ctx, rec.Symbol)
	}

	status := domain.StatusClosed
	if rec.Status == domain.StatusOpening || rec.Status == domain.StatusPending {
		status = domain.StatusFailed
	}

	now := time.Now()
	if r.store != nil {
		_ = r.store.UpdateTrade(ctx, rec.TradeID, store.Patch{
			"status":      status,
			"closedAt":    now,
			"closeReason": "reconciliation_zombie",
		})
	}
	r.publish(ctx, eventbus.EventPositionReconciled, map[string]interface{}{
		"symbol": rec.Symbol, "trade_id": rec.TradeID, "action": "zombie_closed",
	})
}

// detectConflict reports a side mismatch, a one-sided exposure, or a
// quantity mismatch beyond tolerance.
func (r *Reconciler) detectConflict(pos venuePositions) bool {
	a, hasA := pos[domain.VenueA]
	b, hasB := pos[domain.VenueB]
	if hasA != hasB {
		return true
	}
	if !hasA && !hasB {
		return false
	}
	if sameSign(a.SignedSize, b.SignedSize) {
		return true
	}
	return sizesDiffer(a, b, r.cfg)
}

func (r *Reconciler) flattenConflict(ctx context.Context, rec *domain.TradeRecord, pos venuePositions) {
	r.closePositions(ctx, rec.Symbol, pos)

	now := time.Now()
	if r.store != nil {
		_ = r.store.UpdateTrade(ctx, rec.TradeID, store.Patch{
			"status":      domain.StatusClosed,
			"closedAt":    now,
			"closeReason": "reconciliation_quantity_mismatch",
		})
	}
	r.publish(ctx, eventbus.EventPositionReconciled, map[string]interface{}{
		"symbol": rec.Symbol, "trade_id": rec.TradeID, "action": "quantity_mismatch",
	})
}

// handleGhost either imports a matched opposite-sides pair as a new OPEN
// record, or flattens whatever is left.
func (r *Reconciler) handleGhost(ctx context.Context, symbol string, pos venuePositions) {
	a, hasA := pos[domain.VenueA]
	b, hasB := pos[domain.VenueB]

	if r.cfg.AutoImportGhosts && hasA && hasB && oppositeSign(a.SignedSize, b.SignedSize) && !sizesDiffer(a, b, r.cfg) {
		r.importGhost(ctx, symbol, a, b)
		return
	}

	r.closePositions(ctx, symbol, pos)
	r.publish(ctx, eventbus.EventPositionReconciled, map[string]interface{}{
		"symbol": symbol, "action": "ghost_closed",
	})
}

func (r *Reconciler) importGhost(ctx context.Context, symbol string, a, b domain.Position) {
	if r.store == nil {
		return
	}
	sideA := domain.SideSell
	if a.SignedSize.IsPositive() {
		sideA = domain.SideBuy
	}
	sideB := domain.SideSell
	if b.SignedSize.IsPositive() {
		sideB = domain.SideBuy
	}

	sizeUsd := a.SignedSize.Abs().Mul(a.EntryPrice)
	now := time.Now()
	record := &domain.TradeRecord{
		TradeID:        uuid.NewString(),
		Symbol:         symbol,
		SideA:          sideA,
		SideB:          sideB,
		SizeUsd:        sizeUsd,
		EntryPriceA:    a.EntryPrice,
		EntryPriceB:    b.EntryPrice,
		Status:         domain.StatusOpen,
		ExecutionState: domain.StateComplete,
		CreatedAt:      now,
		OpenedAt:       &now,
		Metadata:       map[string]interface{}{"imported_as_ghost": true},
	}
	_ = r.store.CreateTrade(ctx, record)
	r.publish(ctx, eventbus.EventPositionReconciled, map[string]interface{}{
		"symbol": symbol, "trade_id": record.TradeID, "action": "ghost_imported",
	})
}

// closePositions closes every venue position still present for a symbol,
// trying passive POST_ONLY reduce-only orders first (each followed by a
// flatness check) and falling back to CancelAllOrders plus ClosePosition on
// timeout. The fallback close is issued once and is not re-checked.
func (r *Reconciler) closePositions(ctx context.Context, symbol string, pos venuePositions) {
	for venueID, p := range pos {
		adapter, ok := r.venues[venueID]
		if !ok {
			continue
		}
		originalSide := domain.SideSell
		if p.SignedSize.IsPositive() {
			originalSide = domain.SideBuy
		}
		r.softCloseThenMarket(ctx, adapter, symbol, originalSide, p)
	}
}

func (r *Reconciler) softCloseThenMarket(ctx context.Context, adapter venue.Adapter, symbol string, originalSide domain.OrderSide, p domain.Position) {
	notional := p.SignedSize.Abs().Mul(p.MarkPrice)
	deadline := time.Now().Add(time.Duration(r.cfg.SoftCloseTimeoutSeconds * float64(time.Second)))

	for attempt := 0; attempt < r.cfg.SoftCloseAttempts && time.Now().Before(deadline); attempt++ {
		price := midPriceFromPosition(p)
		_, _ = adapter.PlaceOrder(ctx, symbol, originalSide.Opposite(), domain.OrderKindLimitPostOnly, p.SignedSize.Abs(), &price, true, true)
		time.Sleep(time.Duration(r.cfg.SoftCloseTimeoutSeconds / float64(r.cfg.SoftCloseAttempts) * float64(time.Second)))
		if flat, ok := positionFlat(ctx, adapter, symbol); ok && flat {
			return
		}
	}

	_, _ = adapter.CancelAllOrders(ctx, symbol)
	_, _ = adapter.ClosePosition(ctx, symbol, originalSide, notional)
}

// lateFillSweep scans recently FAILED/ROLLBACK records for a position that
// has since appeared and closes it.
func (r *Reconciler) lateFillSweep(ctx context.Context) {
	if r.store == nil {
		return
	}
	cutoff := time.Now().Add(-time.Duration(r.cfg.LateFillWindowSeconds * float64(time.Second)))

	for _, status := range []domain.TradeStatus{domain.StatusFailed, domain.StatusRollback} {
		records, err := r.store.ListTrades(ctx, status, 500)
		if err != nil {
			continue
		}
		for _, rec := range records {
			// ROLLBACK records and leg1-failed records carry no ClosedAt;
			// their age is measured from CreatedAt.
			ref := rec.CreatedAt
			if rec.ClosedAt != nil {
				ref = *rec.ClosedAt
			}
			if ref.Before(cutoff) {
				continue
			}
			r.checkLateFill(ctx, rec)
		}
	}
}

func (r *Reconciler) checkLateFill(ctx context.Context, rec *domain.TradeRecord) {
	pos := venuePositions{}
	for venueID, adapter := range r.venues {
		positions, err := adapter.FetchOpenPositions(ctx)
		if err != nil {
			continue
		}
		for _, p := range positions {
			if p.Symbol == rec.Symbol && p.SignedSize.Abs().GreaterThan(domain.ReconciliationDustThreshold) {
				pos[venueID] = p
			}
		}
	}
	if len(pos) == 0 {
		return
	}
	r.closePositions(ctx, rec.Symbol, pos)
	now := time.Now()
	_ = r.store.UpdateTrade(ctx, rec.TradeID, store.Patch{
		"status":      domain.StatusClosed,
		"closedAt":    now,
		"closeReason": "reconciliation_late_fill",
	})
	r.publish(ctx, eventbus.EventPositionReconciled, map[string]interface{}{
		"symbol": rec.Symbol, "trade_id": rec.TradeID, "action": "late_fill_closed",
	})
}

func (r *Reconciler) fetchPositionsBySymbol(ctx context.Context) map[string]venuePositions {
	result := make(map[string]venuePositions)
	for venueID, adapter := range r.venues {
		positions, err := adapter.FetchOpenPositions(ctx)
		if err != nil {
			r.logger.Error("reconciler: fetch positions failed", "venue", venueID, "error", err)
			continue
		}
		for _, p := range positions {
			if p.SignedSize.Abs().LessThanOrEqual(domain.ReconciliationDustThreshold) {
				continue // dust, below ReconciliationDustThreshold
			}
			if result[p.Symbol] == nil {
				result[p.Symbol] = venuePositions{}
			}
			result[p.Symbol][venueID] = p
		}
	}
	return result
}

func (r *Reconciler) publish(ctx context.Context, name eventbus.EventName, details map[string]interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, eventbus.Event{Name: name, Details: details})
}

func sameSign(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

func oppositeSign(a, b decimal.Decimal) bool {
	return !sameSign(a, b)
}

func sizesDiffer(a, b domain.Position, cfg Config) bool {
	sizeA, sizeB := a.SignedSize.Abs(), b.SignedSize.Abs()
	diff := sizeA.Sub(sizeB).Abs()
	larger := decimal.Max(sizeA, sizeB)
	pctTol := larger.Mul(cfg.ConflictTolerancePercent)

	absTolCoins := decimal.Zero
	if a.MarkPrice.IsPositive() {
		absTolCoins = cfg.ConflictToleranceAbsUsd.Div(a.MarkPrice)
	}
	tol := decimal.Max(pctTol, absTolCoins)
	return diff.GreaterThan(tol)
}

func positionFlat(ctx context.Context, adapter venue.Adapter, symbol string) (bool, bool) {
	positions, err := adapter.FetchOpenPositions(ctx)
	if err != nil {
		return false, false
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.IsFlat(), true
		}
	}
	return true, true
}

func midPriceFromPosition(p domain.Position) decimal.Decimal {
	if p.MarkPrice.IsPositive() {
		return p.MarkPrice
	}
	return p.EntryPrice
}
