package domain

// StepOutcome is the recorded outcome of one execution step attempt.
type StepOutcome string

const (
	OutcomeStarted    StepOutcome = "started"
	OutcomeChecking   StepOutcome = "checking"
	OutcomeConfirming StepOutcome = "confirming"
	OutcomeSubmitted  StepOutcome = "submitted"
	OutcomeBroadcast  StepOutcome = "broadcast"
	OutcomeCompleted  StepOutcome = "completed"
	OutcomeFailed     StepOutcome = "failed"
	OutcomePending    StepOutcome = "pending"
)

// ExecutionStep is one append-only audit entry. Every state transition
// writes a started entry before the action and a completed/failed entry
// after it; polling stages add checking/confirming entries in between.
// Never mutated after write. Corresponds to the execution_steps table.
type ExecutionStep struct {
	StepID      int64          // assigned by the store, monotonic per insert order
	ExecutionID string         // owning execution
	Step        string         // step name code
	Outcome     StepOutcome    // attempt outcome
	Details     map[string]any // structured payload, logged verbatim
	Live        bool           // mirrors the execution's live flag
	CreatedAt   int64          // Unix timestamp in milliseconds
}

// Step name codes, in canonical pipeline order.
const (
	StepPriceCheck         = "price_check"
	StepProfitabilityCheck = "profitability_check"
	StepValidateBalance    = "validate_balance"
	StepPlaceBuyOrder      = "place_buy_order"
	StepWithdrawToDest     = "withdraw_to_destination"
	StepConfirmDeposit     = "confirm_deposit"
	StepMonitorSpread      = "monitor_spread"
	StepPlaceSellOrder     = "place_sell_order"
	StepWithdrawProfits    = "withdraw_profits"
)
