// Package engine wires the validator, sizer, executor, rollback queue, and
// reconciler into the single Engine facade external callers program
// against, mirroring the way the platform's own internal/engine assembles
// exchanges, monitors, and the arbitrage orchestrator behind one Engine
// interface.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/config"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/executor"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/reconciler"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/rollback"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/validator"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// Engine is the public entry point. Callers never reach into the component internals
// directly; this is the only type they construct.
type Engine interface {
	ExecuteHedgedEntry(ctx context.Context, req executor.EntryRequest) (executor.EntryResult, error)
	ExecuteHedgedExit(ctx context.Context, tradeID string, reason string) (executor.ExitResult, error)
	Start(ctx context.Context) error
	Stop(force bool) error
	GetExecutionStats() executor.ExecutionStats
}

// engine is the concrete implementation, holding the executor (which owns
// the validator and calls the sizer), the rollback queue and the reconciler,
// plus the shared collaborators they were built from.
type engine struct {
	cfg    config.Config
	venues map[domain.Venue]venue.Adapter

	exec       *executor.Engine
	rollbackQ  *rollback.Queue
	reconciler *reconciler.Reconciler

	logger logging.ILogger
}

// New assembles the engine: a Validator bound to cfg.Validator, a rollback
// Queue that reports outcomes back to the executor, an executor that
// enqueues onto that Queue, and a Reconciler sharing the same venues and
// store. Symbol whitelist membership (cfg.Symbols) is enforced on entry.
func New(cfg config.Config, venues map[domain.Venue]venue.Adapter, st store.Store, bus eventbus.Bus, logger logging.ILogger) Engine {
	logger = logger.WithField("component", "hedge_engine")

	v := validator.New(cfg.Validator, logger)

	execEngine := executor.New(cfg.Executor, venues, v, st, bus, nil, logger)
	rollbackQ := rollback.New(cfg.Rollback, venues, st, bus, execEngine, logger)
	execEngine.SetRollbackEnqueuer(rollbackQ)

	rec := reconciler.New(cfg.Reconciler, venues, st, bus, logger)

	return &engine{
		cfg:        cfg,
		venues:     venues,
		exec:       execEngine,
		rollbackQ:  rollbackQ,
		reconciler: rec,
		logger:     logger,
	}
}

// Start launches the rollback consumer and the reconciler (which itself
// runs the startup sweep synchronously before returning).
func (e *engine) Start(ctx context.Context) error {
	e.rollbackQ.Start(ctx)
	e.reconciler.Start(ctx)
	e.logger.Info("hedge engine started", "symbols", e.cfg.Symbols)
	return nil
}

// Stop performs the graceful shutdown sequence: mark shutting down
// so any in-flight fill wait collapses to the shutdown ceiling, give
// outstanding executions up to GracefulTimeoutSeconds to reach a terminal
// state on their own, then drain the rollback queue and stop the
// reconciler. force skips the grace window and proceeds straight to drain.
func (e *engine) Stop(force bool) error {
	e.exec.SetShuttingDown(true)

	if !force {
		deadline := time.Duration(e.cfg.Executor.GracefulTimeoutSeconds * float64(time.Second))
		e.waitForQuiescence(deadline)
	}

	e.reconciler.Stop()
	e.rollbackQ.Stop()
	e.logger.Info("hedge engine stopped", "forced", force)
	return nil
}

func (e *engine) waitForQuiescence(deadline time.Duration) {
	interval := 200 * time.Millisecond
	elapsed := time.Duration(0)
	for elapsed < deadline {
		stats := e.exec.GetExecutionStats()
		if stats.ActiveExecutions == 0 {
			return
		}
		time.Sleep(interval)
		elapsed += interval
	}
}

func (e *engine) ExecuteHedgedEntry(ctx context.Context, req executor.EntryRequest) (executor.EntryResult, error) {
	if !e.symbolAllowed(req.Symbol) {
		return executor.EntryResult{}, fmt.Errorf("symbol %q is not in the configured whitelist", req.Symbol)
	}
	return e.exec.ExecuteHedgedEntry(ctx, req)
}

func (e *engine) ExecuteHedgedExit(ctx context.Context, tradeID string, reason string) (executor.ExitResult, error) {
	return e.exec.ExecuteHedgedExit(ctx, tradeID, reason)
}

// GetExecutionStats merges the rollback queue's live depth into the
// executor's counters, since PendingRollbacks lives in a separate
// component the executor cannot see into directly.
func (e *engine) GetExecutionStats() executor.ExecutionStats {
	stats := e.exec.GetExecutionStats()
	stats.PendingRollbacks = e.rollbackQ.PendingCount()
	return stats
}

func (e *engine) symbolAllowed(symbol string) bool {
	if len(e.cfg.Symbols) == 0 {
		return true
	}
	for _, s := range e.cfg.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
