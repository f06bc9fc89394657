package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/hedgetest"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() logging.ILogger {
	return logging.NewLogger(logging.FatalLevel, nil)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.IntervalSeconds = 3600
	cfg.SoftCloseTimeoutSeconds = 0.02
	cfg.SoftCloseAttempts = 1
	cfg.Concurrency = 2
	return cfg
}

func TestSweep_ClosesZombieTradeWithNoMatchingPosition(t *testing.T) {
	venues := map[domain.Venue]venue.Adapter{
		domain.VenueA: hedgetest.NewAdapter(domain.VenueA),
		domain.VenueB: hedgetest.NewAdapter(domain.VenueB),
	}
	st := hedgetest.NewStore()
	require.NoError(t, st.CreateTrade(context.Background(), &domain.TradeRecord{
		TradeID: "trade-1", Symbol: "BTC-PERP", Status: domain.StatusOpen, CreatedAt: time.Now(),
	}))

	r := New(fastConfig(), venues, st, nil, testLogger())
	r.sweep(context.Background(), true)

	rec, ok := st.Get("trade-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusClosed, rec.Status)
}

func TestSweep_LeavesHealthyOpenTradeAlone(t *testing.T) {
	a := hedgetest.NewAdapter(domain.VenueA)
	a.SetPosition("BTC-PERP", domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000"), EntryPrice: dec("50000")})
	b := hedgetest.NewAdapter(domain.VenueB)
	b.SetPosition("BTC-PERP", domain.Position{SignedSize: dec("-1"), MarkPrice: dec("50000"), EntryPrice: dec("50000")})
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: a, domain.VenueB: b}

	st := hedgetest.NewStore()
	require.NoError(t, st.CreateTrade(context.Background(), &domain.TradeRecord{
		TradeID: "trade-1", Symbol: "BTC-PERP", Status: domain.StatusOpen, CreatedAt: time.Now(),
	}))

	r := New(fastConfig(), venues, st, nil, testLogger())
	r.sweep(context.Background(), true)

	rec, ok := st.Get("trade-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusOpen, rec.Status, "balanced opposite-sign positions within tolerance must not be touched")
}

func TestSweep_FlattensConflictingOneSidedPosition(t *testing.T) {
	a := hedgetest.NewAdapter(domain.VenueA)
	a.SetPosition("BTC-PERP", domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000"), EntryPrice: dec("50000")})
	b := hedgetest.NewAdapter(domain.VenueB)
	// No position on venue B: one-sided exposure is a conflict.
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: a, domain.VenueB: b}

	st := hedgetest.NewStore()
	require.NoError(t, st.CreateTrade(context.Background(), &domain.TradeRecord{
		TradeID: "trade-1", Symbol: "BTC-PERP", Status: domain.StatusOpen, CreatedAt: time.Now(),
	}))

	r := New(fastConfig(), venues, st, nil, testLogger())
	r.sweep(context.Background(), true)

	rec, ok := st.Get("trade-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusClosed, rec.Status)
	require.Equal(t, "reconciliation_quantity_mismatch", rec.CloseReason)
}

func TestSweep_ClosesGhostPositionWithNoTradeRecord(t *testing.T) {
	a := hedgetest.NewAdapter(domain.VenueA)
	a.SetPosition("BTC-PERP", domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000"), EntryPrice: dec("50000")})
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: a}

	positions, err := a.FetchOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)

	r := New(fastConfig(), venues, nil, nil, testLogger())
	// sweep() is a no-op with a nil store (see reconciler.go), so call the
	// ghost/orphan path directly the way the main sweep would dispatch it.
	r.reconcileSymbol(context.Background(), "BTC-PERP", nil, venuePositions{domain.VenueA: positions[0]}, time.Now(), true)

	remaining, _ := a.FetchOpenPositions(context.Background())
	require.Empty(t, remaining, "ghost position with no record should be flattened")
}

func TestDetectConflict_OppositeSignsWithinToleranceIsNotAConflict(t *testing.T) {
	cfg := DefaultConfig()
	r := &Reconciler{cfg: cfg}
	pos := venuePositions{
		domain.VenueA: domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000")},
		domain.VenueB: domain.Position{SignedSize: dec("-1"), MarkPrice: dec("50000")},
	}
	require.False(t, r.detectConflict(pos))
}

func TestDetectConflict_SameSignIsAlwaysAConflict(t *testing.T) {
	cfg := DefaultConfig()
	r := &Reconciler{cfg: cfg}
	pos := venuePositions{
		domain.VenueA: domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000")},
		domain.VenueB: domain.Position{SignedSize: dec("1"), MarkPrice: dec("50000")},
	}
	require.True(t, r.detectConflict(pos))
}

func TestIsZombieCandidate_OpeningBeforeTimeoutIsNotZombieOutsideStartup(t *testing.T) {
	cfg := DefaultConfig()
	r := &Reconciler{cfg: cfg}
	rec := &domain.TradeRecord{Status: domain.StatusOpening, CreatedAt: time.Now()}
	require.False(t, r.isZombieCandidate(rec, time.Now(), false))
}

func TestIsZombieCandidate_OpeningPastTimeoutIsZombie(t *testing.T) {
	cfg := DefaultConfig()
	r := &Reconciler{cfg: cfg}
	threshold := cfg.OpeningMakerTimeoutSeconds*float64(cfg.OpeningMaxRetries+1) + cfg.OpeningBufferSeconds
	rec := &domain.TradeRecord{Status: domain.StatusOpening, CreatedAt: time.Now().Add(-time.Duration(threshold+1) * time.Second)}
	require.True(t, r.isZombieCandidate(rec, time.Now(), false))
}
