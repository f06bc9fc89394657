package rollback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/domain"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/hedgetest"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/internal/hedge/venue"
	"github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/logging"
)

func fastConfig() Config {
	return Config{
		QueueCapacity:      16,
		SettleDelaySeconds: 0,
		MaxAttempts:        2,
		BaseBackoffSeconds: 0.01,
		VerifyWaitSeconds:  0,
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []bool
}

func (r *recordingNotifier) NoteRollbackOutcome(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, success)
}

func (r *recordingNotifier) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return false, false
	}
	return r.outcomes[len(r.outcomes)-1], true
}

func newExec(venue domain.Venue) *domain.TradeExecution {
	exec := domain.NewTradeExecution("BTC-PERP", domain.SideSell, domain.SideBuy, venue, decimal.NewFromInt(1000))
	exec.TradeID = "trade-1"
	return exec
}

func waitForOutcome(t *testing.T, n *recordingNotifier) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if success, ok := n.last(); ok {
			return success
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for rollback outcome")
	return false
}

func TestQueue_ClosesStrandedLegSuccessfully(t *testing.T) {
	adapter := hedgetest.NewAdapter(domain.VenueA)
	adapter.SetPosition("BTC-PERP", domain.Position{SignedSize: decimal.NewFromInt(1), MarkPrice: decimal.NewFromInt(50000)})

	notifier := &recordingNotifier{}
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: adapter}
	q := New(fastConfig(), venues, nil, nil, notifier, logging.NewLogger(logging.FatalLevel, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	exec := newExec(domain.VenueA)
	q.Enqueue(ctx, exec, domain.VenueA)

	require.True(t, waitForOutcome(t, notifier))
	require.Equal(t, domain.StateRollbackDone, exec.CurrentState())
}

func TestQueue_GivesUpAfterMaxAttemptsWhenPositionNeverFlattens(t *testing.T) {
	adapter := hedgetest.NewAdapter(domain.VenueA)
	adapter.SetPosition("BTC-PERP", domain.Position{SignedSize: decimal.NewFromInt(1), MarkPrice: decimal.NewFromInt(50000)})
	// Position is re-seeded after every close attempt, so it never
	// verifies flat and the queue exhausts MaxAttempts.
	adapter.CloseFunc = func(symbol string, side domain.OrderSide, notionalUsd decimal.Decimal) (domain.OrderResult, error) {
		adapter.SetPosition(symbol, domain.Position{SignedSize: decimal.NewFromInt(1), MarkPrice: decimal.NewFromInt(50000)})
		return domain.OrderResult{Success: true}, nil
	}

	notifier := &recordingNotifier{}
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: adapter}
	q := New(fastConfig(), venues, nil, nil, notifier, logging.NewLogger(logging.FatalLevel, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	exec := newExec(domain.VenueA)
	q.Enqueue(ctx, exec, domain.VenueA)

	require.False(t, waitForOutcome(t, notifier))
	require.Equal(t, domain.StateRollbackFailed, exec.CurrentState())
}

func TestQueue_PendingCountTracksInFlightJobs(t *testing.T) {
	adapter := hedgetest.NewAdapter(domain.VenueA)
	adapter.SetPosition("BTC-PERP", domain.Position{SignedSize: decimal.NewFromInt(1), MarkPrice: decimal.NewFromInt(50000)})

	notifier := &recordingNotifier{}
	venues := map[domain.Venue]venue.Adapter{domain.VenueA: adapter}
	q := New(fastConfig(), venues, nil, nil, notifier, logging.NewLogger(logging.FatalLevel, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	exec := newExec(domain.VenueA)
	q.Enqueue(ctx, exec, domain.VenueA)
	require.True(t, waitForOutcome(t, notifier))

	require.Eventually(t, func() bool { return q.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
}
