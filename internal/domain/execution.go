package domain

import "github.com/shopspring/decimal"

// ExecutionState is the lifecycle position of a failsafe execution.
type ExecutionState string

const (
	StatePending            ExecutionState = "pending"
	StateFundingSource      ExecutionState = "funding_source"
	StateBought             ExecutionState = "bought"
	StateWithdrawn          ExecutionState = "withdrawn"
	StateFundingDestination ExecutionState = "funding_destination"
	StateMonitoring         ExecutionState = "monitoring"
	StateSelling            ExecutionState = "selling"
	StateSold               ExecutionState = "sold"
	StateCompleted          ExecutionState = "completed"
	StateFailed             ExecutionState = "failed"
)

// successor maps each non-terminal state to its single success successor.
// Failure is handled separately: any non-terminal state may move to failed.
var successor = map[ExecutionState]ExecutionState{
	StatePending:            StateFundingSource,
	StateFundingSource:      StateBought,
	StateBought:             StateWithdrawn,
	StateWithdrawn:          StateFundingDestination,
	StateFundingDestination: StateMonitoring,
	StateMonitoring:         StateSelling,
	StateSelling:            StateSold,
	StateSold:               StateCompleted,
}

// Terminal reports whether the state ends the execution lifecycle.
func (s ExecutionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known state.
func (s ExecutionState) Valid() bool {
	if s == StateCompleted || s == StateFailed {
		return true
	}
	_, ok := successor[s]
	return ok
}

// Next returns the success successor of s. ok is false for terminal states.
func (s ExecutionState) Next() (ExecutionState, bool) {
	next, ok := successor[s]
	return next, ok
}

// CanTransition reports whether from -> to is a legal transition:
// the single success successor, or failed from any non-terminal state.
func CanTransition(from, to ExecutionState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return successor[from] == to
}

// FailsafeExecution is the engine's primary mutable entity: one row per
// execution attempt of an opportunity. Corresponds to the executions table
// in PostgreSQL. Owned exclusively by the controller for its lifetime.
type FailsafeExecution struct {
	ExecutionID   string          // PRIMARY KEY, uuid
	OpportunityID string          // opportunity being executed
	State         ExecutionState  // current lifecycle state
	Capital       decimal.Decimal // quote capital invested
	BaseAmount    decimal.Decimal // base asset held (post-buy)
	CurrentSpread decimal.Decimal // latest observed spread %, updated by the monitor
	TargetSpread  decimal.Decimal // sell trigger spread %, frozen at start
	Profit        decimal.NullDecimal
	FailureReason string // set when State == failed
	Live          bool   // live venue calls vs simulated clients
	StartedAt     int64  // Unix timestamp in milliseconds
	UpdatedAt     int64  // last transition or spread update (ms)
}

// Active reports whether the execution still holds the opportunity slot.
func (e FailsafeExecution) Active() bool {
	return !e.State.Terminal()
}

// Failure reason codes recorded on terminal failed executions.
const (
	FailureReasonCancelled       = "cancelled"
	FailureReasonTransferTimeout = "transfer_timeout"
	FailureReasonVenueError      = "venue_error"
	FailureReasonInsufficient    = "insufficient_balance"
	FailureReasonValidation      = "validation"
)
