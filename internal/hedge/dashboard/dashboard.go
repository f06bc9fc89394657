// Package dashboard implements a concrete eventbus.Bus that fans out every
// published event to connected WebSocket clients, the way the platform's
// own pkg/liveserver drives its live order/position feed. Unlike venue
// adapters and the durable store, a status dashboard has no exchange- or
// storage-specific surface to fabricate, so it is provided as a real,
// runnable component rather than an external-collaborator seam.
package dashboard

import (
	"context"
	"time"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/liveserver"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// hubLogger adapts pkg/logging.ILogger to the minimal liveserver.Logger
// interface (Info/Warn only).
type hubLogger struct {
	l logging.ILogger
}

func (h hubLogger) Info(msg string, kv ...interface{}) { h.l.Info(msg, kv...) }
func (h hubLogger) Warn(msg string, kv ...interface{}) { h.l.Warn(msg, kv...) }

// Bus broadcasts published events to every connected dashboard client over
// WebSocket, keyed off the same message-type taxonomy as the platform's
// live order/position feed (TradeEvent, RiskStatus).
type Bus struct {
	srv    *liveserver.Server
	hub    *liveserver.Hub
	logger logging.ILogger
}

// New builds a dashboard bus listening on addr once Start is called.
// allowedOrigins follows pkg/liveserver's origin-check convention; an empty
// slice allows any origin (suitable for local/dev use only).
func New(logger logging.ILogger, allowedOrigins []string) *Bus {
	hub := liveserver.NewHub(hubLogger{logger})
	return &Bus{
		srv:    liveserver.NewServer(hub, hubLogger{logger}, allowedOrigins),
		hub:    hub,
		logger: logger,
	}
}

// Start runs the hub loop and the WebSocket/health HTTP server in the
// background and returns without waiting for ctx to end. A server error
// that arrives within the first 100ms (for example, the address is already
// in use) is returned; later server errors are not reported. Callers stop
// both via ctx cancellation plus Stop.
func (b *Bus) Start(ctx context.Context, addr string) error {
	go b.hub.Run(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- b.srv.Start(ctx, addr) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts down the HTTP server.
func (b *Bus) Stop(ctx context.Context) error {
	return b.srv.Stop(ctx)
}

// Publish implements eventbus.Bus. Trade lifecycle events map onto
// TypeTradeEvent; everything else (reconciliation, critical errors,
// generic notifications) maps onto TypeRiskStatus so dashboard clients
// can subscribe to one channel for operational health.
func (b *Bus) Publish(_ context.Context, event eventbus.Event) {
	payload := map[string]interface{}{
		"event":   string(event.Name),
		"details": event.Details,
	}
	switch event.Name {
	case eventbus.EventTradeOpened, eventbus.EventTradeClosed:
		b.srv.BroadcastMessage(liveserver.TypeTradeEvent, payload)
	default:
		b.srv.BroadcastMessage(liveserver.TypeRiskStatus, payload)
	}
}
