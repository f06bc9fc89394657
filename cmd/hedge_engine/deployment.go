package main

import (
	"context"
	"fmt"

	hedgeconfig "github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/config"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/dashboard"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/eventbus"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/store"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

// NewDeployment assembles the concrete venue adapters and persistence
// backends for one running process, the way createExchange does for
// live_server. A real deployment replaces the "not configured" venue/store
// error below with its REST/WebSocket adapters for Venue-A and Venue-B and
// a durably-backed Store; the engine core never depends on which concrete
// types fill these interfaces. The event Bus, unlike the store, has a real
// in-module implementation: internal/hedge/dashboard broadcasts every
// published event over WebSocket with no exchange- or storage-specific
// surface to fabricate.
func NewDeployment(ctx context.Context, cfg *hedgeconfig.Config, logger logging.ILogger, dashboardAddr string) (map[domain.Venue]venue.Adapter, store.Store, eventbus.Bus, error) {
	venues, err := createVenueAdapters(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := createStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	bus := dashboard.New(logger, nil)
	if err := bus.Start(ctx, dashboardAddr); err != nil {
		return nil, nil, nil, fmt.Errorf("starting dashboard bus: %w", err)
	}

	return venues, st, bus, nil
}

// createVenueAdapters resolves the two configured venues to their
// adapters. This engine programs only against venue.Adapter; no
// concrete exchange client ships in this module, matching the
// decoupling of the rest of internal/hedge from any one venue's API.
func createVenueAdapters(cfg *hedgeconfig.Config, logger logging.ILogger) (map[domain.Venue]venue.Adapter, error) {
	return nil, fmt.Errorf("no venue.Adapter implementations registered for %s/%s: wire concrete REST/WebSocket clients in NewDeployment before starting", domain.VenueA, domain.VenueB)
}

// createStore resolves the durable Store. The real SQLite-backed store is
// an external collaborator (see store.Store's doc comment); this module
// ships only the interface plus in-memory fakes reserved for tests
// (internal/hedge/hedgetest), deliberately not reused here since a
// restart-surviving deployment needs a real backing store.
func createStore(cfg *hedgeconfig.Config, logger logging.ILogger) (store.Store, error) {
	return nil, fmt.Errorf("no durable store.Store implementation registered: wire persistence in NewDeployment before starting")
}
