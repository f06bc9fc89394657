package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionState is the state of one in-flight hedged trade.
type ExecutionState string

const (
	StatePending            ExecutionState = "PENDING"
	StateLeg1Sent           ExecutionState = "LEG1_SENT"
	StateLeg1Filled         ExecutionState = "LEG1_FILLED"
	StateLeg2Sent           ExecutionState = "LEG2_SENT"
	StateComplete           ExecutionState = "COMPLETE"
	StatePartialFill        ExecutionState = "PARTIAL_FILL"
	StateRollbackQueued     ExecutionState = "ROLLBACK_QUEUED"
	StateRollbackInProgress ExecutionState = "ROLLBACK_IN_PROGRESS"
	StateRollbackDone       ExecutionState = "ROLLBACK_DONE"
	StateRollbackFailed     ExecutionState = "ROLLBACK_FAILED"
	StateFailed             ExecutionState = "FAILED"
)

// TradeStatus is the persisted status of a TradeRecord.
type TradeStatus string

const (
	StatusPending  TradeStatus = "PENDING"
	StatusOpening  TradeStatus = "OPENING"
	StatusOpen     TradeStatus = "OPEN"
	StatusClosing  TradeStatus = "CLOSING"
	StatusClosed   TradeStatus = "CLOSED"
	StatusFailed   TradeStatus = "FAILED"
	StatusRejected TradeStatus = "REJECTED"
	StatusRollback TradeStatus = "ROLLBACK"
)

// TradeEvent is one append-only entry in a TradeRecord's event log. Every
// state transition and externally-observable error appends before any
// blocking I/O.
type TradeEvent struct {
	Timestamp time.Time
	Name      string
	Details   map[string]interface{}
}

// TradeExecution is the in-memory record of one active hedged trade,
// owned exclusively by the goroutine running executeHedgedEntry/Exit.
type TradeExecution struct {
	mu sync.Mutex

	TradeID             string
	Symbol              string
	State               ExecutionState
	LegAOrderID         string
	LegBOrderID         string
	LegAFilled          bool
	LegBFilled          bool
	StartTimeMonotonic  time.Time
	SideA               OrderSide
	SideB               OrderSide
	MakerVenue          Venue
	PlannedSizeUsd      decimal.Decimal
	PlannedQuantityCoins decimal.Decimal
	ActualFilledQuantity decimal.Decimal
	EntryPriceA         decimal.Decimal
	EntryPriceB         decimal.Decimal
	Error               string
	RollbackAttempts    int

	Events []TradeEvent
}

// NewTradeExecution creates a TradeExecution in state PENDING.
func NewTradeExecution(symbol string, sideA, sideB OrderSide, makerVenue Venue, plannedSizeUsd decimal.Decimal) *TradeExecution {
	return &TradeExecution{
		Symbol:         symbol,
		State:          StatePending,
		SideA:          sideA,
		SideB:          sideB,
		MakerVenue:     makerVenue,
		PlannedSizeUsd: plannedSizeUsd,
	}
}

// Transition moves the execution to a new state and appends an event.
// It is the only way state should be mutated so the event log and the
// state field never drift apart.
func (e *TradeExecution) Transition(state ExecutionState, details map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = state
	e.Events = append(e.Events, TradeEvent{
		Timestamp: time.Now(),
		Name:      "state_transition:" + string(state),
		Details:   details,
	})
}

// RecordEvent appends an observability event without changing state (used
// for externally-observable errors that are not themselves a transition).
func (e *TradeExecution) RecordEvent(name string, details map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, TradeEvent{Timestamp: time.Now(), Name: name, Details: details})
}

// CurrentState returns the execution's state under lock.
func (e *TradeExecution) CurrentState() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.State
}

// TradeRecord is the persisted representation of a hedged trade,
// created/updated/read via the Store interface. The Reconciler is its
// only mutator for externally-caused state changes.
type TradeRecord struct {
	TradeID        string
	Symbol         string
	SideA          OrderSide
	SideB          OrderSide
	SizeUsd        decimal.Decimal
	EntryPriceA    decimal.Decimal
	EntryPriceB    decimal.Decimal
	Status         TradeStatus
	ExecutionState ExecutionState
	CreatedAt      time.Time
	OpenedAt       *time.Time
	ClosedAt       *time.Time
	RealizedPnl    decimal.Decimal
	CloseReason    string
	Metadata       map[string]interface{}
	Events         []TradeEvent
}
