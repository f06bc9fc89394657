package rollback

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// job is one queued rollback: close legToClose for exec's symbol.
type job struct {
	exec       *domain.TradeExecution
	legToClose domain.Venue
}

// OutcomeNotifier lets the rollback engine report terminal outcomes back
// into the execution state machine's stats counters.
type OutcomeNotifier interface {
	NoteRollbackOutcome(success bool)
}

// Queue is the bounded, single-consumer rollback worker: it has exactly
// one consumer, so the queue itself serializes order of handling.
type Queue struct {
	cfg      Config
	venues   map[domain.Venue]venue.Adapter
	store    store.Store
	bus      eventbus.Bus
	notifier OutcomeNotifier
	logger   logging.ILogger

	jobs   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	// closePipeline retries a single close attempt with exponential
	// backoff. It operates on bool (attempt succeeded) rather than
	// the order result, since the decision to retry is "is the position
	// still open", verified separately after every attempt.
	closePipeline failsafe.Executor[bool]

	pendingMu sync.Mutex
	pending   int
}

// New builds a Queue. Call Start to launch its single consumer goroutine.
func New(cfg Config, venues map[domain.Venue]venue.Adapter, st store.Store, bus eventbus.Bus, notifier OutcomeNotifier, logger logging.ILogger) *Queue {
	retryPolicy := retrypolicy.NewBuilder[bool]().
		HandleIf(func(success bool, err error) bool {
			return err != nil || !success
		}).
		WithBackoff(time.Duration(cfg.BaseBackoffSeconds*float64(time.Second)), 30*time.Second).
		WithMaxRetries(cfg.MaxAttempts - 1).
		Build()

	return &Queue{
		cfg:           cfg,
		venues:        venues,
		store:         st,
		bus:           bus,
		notifier:      notifier,
		logger:        logger.WithField("component", "rollback_queue"),
		jobs:          make(chan job, cfg.QueueCapacity),
		stopCh:        make(chan struct{}),
		closePipeline: failsafe.With[bool](retryPolicy),
	}
}

// Start launches the single consumer goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop signals the consumer to drain whatever is already queued and
// return; it does not accept new jobs afterward.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

// Enqueue hands off a failed execution for rollback. It never
// blocks the caller: a full queue spills to a background send so the
// execution state machine's per-symbol lock is never held waiting on it.
func (q *Queue) Enqueue(ctx context.Context, exec *domain.TradeExecution, legToClose domain.Venue) {
	select {
	case <-q.stopCh:
		q.logger.Error("rollback queue stopped, job not accepted", "symbol", exec.Symbol)
		return
	default:
	}
	q.pendingMu.Lock()
	q.pending++
	q.pendingMu.Unlock()

	select {
	case q.jobs <- job{exec: exec, legToClose: legToClose}:
		return
	default:
	}
	go func() {
		select {
		case q.jobs <- job{exec: exec, legToClose: legToClose}:
		case <-q.stopCh:
			q.pendingMu.Lock()
			q.pending--
			q.pendingMu.Unlock()
			q.logger.Error("rollback queue closed before job could be delivered", "symbol", exec.Symbol)
		}
	}()
}

// PendingCount reports the number of rollbacks queued or in flight,
// surfaced in ExecutionStats.PendingRollbacks.
func (q *Queue) PendingCount() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.pending
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case j := <-q.jobs:
			q.process(ctx, j)
		case <-q.stopCh:
			q.drain(ctx)
			return
		}
	}
}

func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case j := <-q.jobs:
			q.process(ctx, j)
		default:
			return
		}
	}
}

// process runs the per-rollback policy: settle delay, then up to
// MaxAttempts close attempts with exponential backoff, each followed by a
// position re-verify.
func (q *Queue) process(ctx context.Context, j job) {
	defer func() {
		q.pendingMu.Lock()
		q.pending--
		q.pendingMu.Unlock()
	}()

	j.exec.Transition(domain.StateRollbackInProgress, map[string]interface{}{"leg": string(j.legToClose)})

	q.sleep(time.Duration(q.cfg.SettleDelaySeconds * float64(time.Second)))

	adapter, ok := q.venues[j.legToClose]
	if !ok {
		q.finish(ctx, j, false)
		return
	}

	originalSide := j.exec.SideA
	if j.legToClose != j.exec.MakerVenue {
		originalSide = j.exec.SideB
	}

	success, _ := q.closePipeline.GetWithExecution(func(exec failsafe.Execution[bool]) (bool, error) {
		j.exec.RollbackAttempts++

		pos, found := findPosition(ctx, adapter, j.exec.Symbol)
		if !found || pos.IsFlat() {
			return true, nil
		}

		notional := pos.SignedSize.Abs().Mul(pos.MarkPrice)
		_, _ = adapter.ClosePosition(ctx, j.exec.Symbol, originalSide, notional)

		q.sleep(time.Duration(q.cfg.VerifyWaitSeconds * float64(time.Second)))

		pos2, found2 := findPosition(ctx, adapter, j.exec.Symbol)
		return !found2 || pos2.IsFlat(), nil
	})

	q.finish(ctx, j, success)
}

func (q *Queue) finish(ctx context.Context, j job, success bool) {
	if success {
		j.exec.Transition(domain.StateRollbackDone, nil)
	} else {
		j.exec.Transition(domain.StateRollbackFailed, nil)
	}

	if q.notifier != nil {
		q.notifier.NoteRollbackOutcome(success)
	}

	if q.store != nil && j.exec.TradeID != "" {
		status, reason := domain.StatusClosed, "rollback_done"
		if !success {
			status, reason = domain.StatusFailed, "rollback_failed"
		}
		now := time.Now()
		_ = q.store.UpdateTrade(ctx, j.exec.TradeID, store.Patch{
			"status":         status,
			"executionState": j.exec.CurrentState(),
			"closedAt":       now,
			"closeReason":    reason,
		})
	}

	if q.bus != nil {
		if !success {
			q.bus.Publish(ctx, eventbus.Event{Name: eventbus.EventCriticalError, Details: map[string]interface{}{
				"symbol": j.exec.Symbol, "reason": "rollback_failed", "trade_id": j.exec.TradeID,
			}})
		} else {
			q.bus.Publish(ctx, eventbus.Event{Name: eventbus.EventTradeClosed, Details: map[string]interface{}{
				"symbol": j.exec.Symbol, "trade_id": j.exec.TradeID, "reason": "rollback_done",
			}})
		}
	}
}

func (q *Queue) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-q.stopCh:
	}
}

func findPosition(ctx context.Context, adapter venue.Adapter, symbol string) (domain.Position, bool) {
	positions, err := adapter.FetchOpenPositions(ctx)
	if err != nil {
		return domain.Position{}, false
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return domain.Position{}, false
}
