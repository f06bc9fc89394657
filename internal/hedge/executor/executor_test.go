package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/hedgetest"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/validator"
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

func level(price, size string) domain.OrderbookLevel {
	return domain.OrderbookLevel{Price: dec(price), Size: dec(size)}
}

func deepBook() domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Symbol: "BTC-PERP",
		Bids: []domain.OrderbookLevel{
			level("49990", "10"), level("49980", "10"), level("49970", "10"), level("49960", "10"),
		},
		Asks: []domain.OrderbookLevel{
			level("50010", "10"), level("50020", "10"), level("50030", "10"), level("50040", "10"),
		},
		Timestamp: time.Now(),
	}
}

func setUpVenues() map[domain.Venue]venue.Adapter {
	a := hedgetest.NewAdapter(domain.VenueA)
	b := hedgetest.NewAdapter(domain.VenueB)
	for _, adapter := range []*hedgetest.Adapter{a, b} {
		adapter.SetOrderbook("BTC-PERP", deepBook())
		adapter.SetMarketInfo("BTC-PERP", domain.MarketInfo{
			LotSize:           dec("0.001"),
			TickSize:          dec("0.01"),
			MinOrderSizeCoins: dec("0.001"),
			MinNotionalUsd:    dec("10"),
		})
	}
	return map[domain.Venue]venue.Adapter{domain.VenueA: a, domain.VenueB: b}
}

func newTestEngine(venues map[domain.Venue]venue.Adapter) *Engine {
	cfg := DefaultConfig()
	v := validator.New(validator.DefaultPolicy(), testLogger())
	return New(cfg, venues, v, nil, nil, nil, testLogger())
}

func TestExecuteHedgedEntry_HappyPath(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)

	req := EntryRequest{
		Symbol:     "BTC-PERP",
		MakerVenue: domain.VenueA,
		SideA:      domain.SideSell,
		SideB:      domain.SideBuy,
		TargetUsd:  dec("1000"),
	}
	res, err := eng.ExecuteHedgedEntry(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success, "expected success, got ErrorKind=%s", res.ErrorKind)
	require.NotEmpty(t, res.LegAOrderID)
	require.NotEmpty(t, res.LegBOrderID)
	require.Equal(t, domain.StateComplete, res.Execution.CurrentState())

	stats := eng.GetExecutionStats()
	require.EqualValues(t, 1, stats.Total)
	require.EqualValues(t, 1, stats.Successful)
}

func TestGetExecutionStats_PerStateCountsTracksEveryTransition(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}
	res, err := eng.ExecuteHedgedEntry(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success, "expected success, got ErrorKind=%s", res.ErrorKind)

	stats := eng.GetExecutionStats()
	require.EqualValues(t, 1, stats.PerStateCounts[domain.StateLeg1Sent])
	require.EqualValues(t, 1, stats.PerStateCounts[domain.StateLeg1Filled])
	require.EqualValues(t, 1, stats.PerStateCounts[domain.StateLeg2Sent])
	require.EqualValues(t, 1, stats.PerStateCounts[domain.StateComplete])
}

func TestExecuteHedgedEntry_InvalidOrderbookRejected(t *testing.T) {
	venues := setUpVenues()
	a := venues[domain.VenueA].(*hedgetest.Adapter)
	a.SetOrderbook("BTC-PERP", domain.OrderbookSnapshot{Timestamp: time.Now()}) // empty book

	eng := newTestEngine(venues)
	req := EntryRequest{
		Symbol:     "BTC-PERP",
		MakerVenue: domain.VenueA,
		SideA:      domain.SideSell,
		SideB:      domain.SideBuy,
		TargetUsd:  dec("1000"),
	}
	res, err := eng.ExecuteHedgedEntry(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, domain.ErrKindOrderbookInvalid, res.ErrorKind)

	stats := eng.GetExecutionStats()
	require.EqualValues(t, 1, stats.Failed)
}

func TestExecuteHedgedEntry_BusyRejectsConcurrentSameSymbol(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)

	lock, acquired := eng.tryLockSymbol("BTC-PERP")
	require.True(t, acquired)
	defer lock.Unlock()

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}
	res, err := eng.ExecuteHedgedEntry(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.ErrKindBusy, res.ErrorKind)
}

func TestExecuteHedgedEntry_ShuttingDownRejectsNewWork(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)
	eng.SetShuttingDown(true)

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}
	res, err := eng.ExecuteHedgedEntry(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.ErrKindShuttingDown, res.ErrorKind)
}
