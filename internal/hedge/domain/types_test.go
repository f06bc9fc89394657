package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "github.com/koopmannleon19977-cmyk/Funding-bot-sub002/pkg/errors"
)

func TestClassifyAdapterError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want AdapterErrorKind
	}{
		{"nil", nil, ""},
		{"not found", apperrors.ErrOrderNotFound, AdapterErrNotFound},
		{"rate limited", apperrors.ErrRateLimitExceeded, AdapterErrRateLimited},
		{"overload maps to rate limited", apperrors.ErrSystemOverload, AdapterErrRateLimited},
		{"invalid symbol", apperrors.ErrInvalidSymbol, AdapterErrBadRequest},
		{"insufficient funds", apperrors.ErrInsufficientFunds, AdapterErrInsufficientBalance},
		{"network", apperrors.ErrNetwork, AdapterErrNetwork},
		{"unmapped", errors.New("boom"), AdapterErrUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, ClassifyAdapterError(c.err))
		})
	}
}

func TestClassifyAdapterError_WrappedSentinel(t *testing.T) {
	wrapped := errors.Join(errors.New("placing order"), apperrors.ErrDuplicateOrder)
	require.Equal(t, AdapterErrBadRequest, ClassifyAdapterError(wrapped))
}

func TestTradeExecution_TransitionAppendsEvent(t *testing.T) {
	exec := NewTradeExecution("BTC-PERP", SideBuy, SideSell, VenueA, decimal.NewFromInt(1000))
	require.Equal(t, StatePending, exec.CurrentState())

	exec.Transition(StateLeg1Sent, map[string]interface{}{"order_id": "abc"})
	require.Equal(t, StateLeg1Sent, exec.CurrentState())
	require.Len(t, exec.Events, 1)
	require.Equal(t, "state_transition:LEG1_SENT", exec.Events[0].Name)

	exec.RecordEvent("ghost_fill_detected", nil)
	require.Len(t, exec.Events, 2)
	require.Equal(t, StateLeg1Sent, exec.CurrentState(), "RecordEvent must not change state")
}

func TestOrderSide_Opposite(t *testing.T) {
	require.Equal(t, SideSell, SideBuy.Opposite())
	require.Equal(t, SideBuy, SideSell.Opposite())
}
