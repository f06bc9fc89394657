package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/hedgetest"
)

func TestCheckCompliance_FlagsOppositeSideRestingOrderOnHedgeVenue(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)
	b := venues[domain.VenueB].(*hedgetest.Adapter)

	// A resting SELL on venue B conflicts with the BUY we intend to place
	// there as the hedge leg.
	b.QueueOrder("BTC-PERP", domain.OrderResult{Success: true}, nil)
	_, err := b.PlaceOrder(context.Background(), "BTC-PERP", domain.SideSell, domain.OrderKindLimitPostOnly, dec("1"), nil, false, true)
	require.NoError(t, err)

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}

	violation, err := eng.checkCompliance(context.Background(), req)
	require.NoError(t, err)
	require.True(t, violation, "opposite-side resting order on the hedge venue must be flagged")
}

func TestCheckCompliance_NeverCachesAViolationAsClean(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)
	b := venues[domain.VenueB].(*hedgetest.Adapter)

	b.QueueOrder("BTC-PERP", domain.OrderResult{Success: true}, nil)
	_, err := b.PlaceOrder(context.Background(), "BTC-PERP", domain.SideSell, domain.OrderKindLimitPostOnly, dec("1"), nil, false, true)
	require.NoError(t, err)

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}

	violation1, err := eng.checkCompliance(context.Background(), req)
	require.NoError(t, err)
	require.True(t, violation1)

	// A second check within ComplianceCacheTTLSeconds must still see the
	// violation: only a clean result is ever cached, never a positive one.
	violation2, err := eng.checkCompliance(context.Background(), req)
	require.NoError(t, err)
	require.True(t, violation2, "a detected self-match risk must never be masked by the compliance cache on a retry")
}

func TestCheckCompliance_CachesCleanResultAndSkipsTheRecheck(t *testing.T) {
	venues := setUpVenues()
	eng := newTestEngine(venues)

	req := EntryRequest{Symbol: "BTC-PERP", MakerVenue: domain.VenueA, SideA: domain.SideSell, SideB: domain.SideBuy, TargetUsd: dec("1000")}

	violation1, err := eng.checkCompliance(context.Background(), req)
	require.NoError(t, err)
	require.False(t, violation1)
	ttl := time.Duration(eng.cfg.ComplianceCacheTTLSeconds * float64(time.Second))
	require.True(t, eng.complianceCache.recall("BTC-PERP", ttl), "a clean result should be cached")

	violation2, err := eng.checkCompliance(context.Background(), req)
	require.NoError(t, err)
	require.False(t, violation2)
}
