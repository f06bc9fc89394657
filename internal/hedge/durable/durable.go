// Package durable exposes the hedge engine's entry/exit calls as DBOS
// workflows, so a crash mid-execution resumes from the last completed
// step instead of losing the in-flight trade. It wraps the same
// RunWorkflow/RunAsStep/Launch/Shutdown calls the platform's own
// internal/engine/durable package uses around its arbitrage and grid
// engines — this is the arbitrage variant of that pattern, not the grid
// one, since a hedged entry/exit is itself the durable unit of work.
package durable

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/engine"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/executor"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// Engine wraps a hedge engine.Engine with a DBOS workflow boundary around
// each entry/exit call. The underlying engine already retries within a
// single call (price chase, ghost polling); DBOS adds the outer guarantee
// that the call itself resumes after a process restart rather than being
// silently abandoned mid-leg.
type Engine struct {
	dbosCtx dbos.DBOSContext
	inner   engine.Engine
	logger  logging.ILogger
}

// New wraps inner with a DBOS-backed workflow boundary. dbosCtx is
// constructed and configured by the process composition root, the same
// way every durable engine in this codebase receives it already wired
// rather than building its own.
func New(dbosCtx dbos.DBOSContext, inner engine.Engine, logger logging.ILogger) *Engine {
	return &Engine{
		dbosCtx: dbosCtx,
		inner:   inner,
		logger:  logger.WithField("component", "durable_hedge_engine"),
	}
}

// Start runs the inner engine's own lifecycle (rollback consumer,
// reconciler sweep) and then launches the DBOS runtime that will host the
// entry/exit workflows.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.inner.Start(ctx); err != nil {
		return err
	}
	e.logger.Info("launching DBOS runtime")
	return e.dbosCtx.Launch()
}

// Stop drains the inner engine first (rollback queue, reconciler) and then
// shuts the DBOS runtime down with a fixed 30s grace window, mirroring the
// raw-nanosecond literal the platform's own durable engines pass here.
func (e *Engine) Stop(force bool) error {
	if err := e.inner.Stop(force); err != nil {
		return err
	}
	e.logger.Info("shutting down DBOS runtime")
	e.dbosCtx.Shutdown(30 * 1000 * 1000 * 1000)
	return nil
}

// ExecuteHedgedEntry runs the inner engine's entry call as one durable
// workflow step. A crash after the workflow is recorded but before this
// step completes replays from here rather than silently losing the call.
func (e *Engine) ExecuteHedgedEntry(ctx context.Context, req executor.EntryRequest) (executor.EntryResult, error) {
	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.entryWorkflow, req)
	if err != nil {
		return executor.EntryResult{}, fmt.Errorf("failed to start hedged entry workflow: %w", err)
	}
	resultRaw, err := handle.GetResult()
	if err != nil {
		return executor.EntryResult{}, err
	}
	res, _ := resultRaw.(executor.EntryResult)
	return res, nil
}

// ExecuteHedgedExit runs the inner engine's exit call as one durable
// workflow step, same rationale as ExecuteHedgedEntry.
func (e *Engine) ExecuteHedgedExit(ctx context.Context, tradeID string, reason string) (executor.ExitResult, error) {
	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.exitWorkflow, exitInput{TradeID: tradeID, Reason: reason})
	if err != nil {
		return executor.ExitResult{}, fmt.Errorf("failed to start hedged exit workflow: %w", err)
	}
	resultRaw, err := handle.GetResult()
	if err != nil {
		return executor.ExitResult{}, err
	}
	res, _ := resultRaw.(executor.ExitResult)
	return res, nil
}

func (e *Engine) GetExecutionStats() executor.ExecutionStats {
	return e.inner.GetExecutionStats()
}

type exitInput struct {
	TradeID string
	Reason  string
}

// entryWorkflow is the DBOS workflow function bound to ExecuteHedgedEntry.
// The entire hedged entry runs as a single step: it already carries its
// own internal retry/rollback logic, so the durable boundary sits around
// the call as a whole rather than around each venue request inside it.
func (e *Engine) entryWorkflow(ctx dbos.DBOSContext, input any) (any, error) {
	req := input.(executor.EntryRequest)
	return ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return e.inner.ExecuteHedgedEntry(stepCtx, req)
	})
}

// exitWorkflow is the DBOS workflow function bound to ExecuteHedgedExit.
func (e *Engine) exitWorkflow(ctx dbos.DBOSContext, input any) (any, error) {
	in := input.(exitInput)
	return ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return e.inner.ExecuteHedgedExit(stepCtx, in.TradeID, in.Reason)
	})
}
