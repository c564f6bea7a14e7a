package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
)

// OpportunityStore provides access to opportunities storage.
type OpportunityStore interface {
	// Insert adds a new opportunity. Returns ErrDuplicateKey if opportunity_id exists.
	Insert(ctx context.Context, o *domain.Opportunity) error

	// GetByID retrieves an opportunity by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, opportunityID string) (*domain.Opportunity, error)

	// ListRecent retrieves up to limit opportunities, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Opportunity, error)
}

// ExecutionStore provides access to executions storage.
type ExecutionStore interface {
	// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
	Insert(ctx context.Context, e *domain.FailsafeExecution) error

	// GetByID retrieves an execution by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, executionID string) (*domain.FailsafeExecution, error)

	// Update overwrites the mutable fields of an existing execution.
	// Returns ErrNotFound if the execution does not exist.
	Update(ctx context.Context, e *domain.FailsafeExecution) error

	// UpdateSpread persists the latest observed spread without touching the
	// rest of the row. Returns ErrNotFound if the execution does not exist.
	UpdateSpread(ctx context.Context, executionID string, spreadPct decimal.Decimal, updatedAt int64) error

	// ListActive retrieves all executions in a non-terminal state.
	ListActive(ctx context.Context) ([]*domain.FailsafeExecution, error)

	// ActiveForOpportunity retrieves the non-terminal execution for an
	// opportunity, if any. Returns ErrNotFound when none is active.
	ActiveForOpportunity(ctx context.Context, opportunityID string) (*domain.FailsafeExecution, error)

	// ListRecent retrieves up to limit executions, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.FailsafeExecution, error)

	// Stats aggregates terminal and active execution counts and total profit.
	Stats(ctx context.Context) (*domain.TradeStats, error)
}

// ExecutionStepStore provides access to execution_steps storage.
// The step log is append-only: entries are never updated or deleted.
type ExecutionStepStore interface {
	// Append adds one step entry and assigns its StepID.
	Append(ctx context.Context, s *domain.ExecutionStep) error

	// ListByExecution retrieves all steps for an execution in insert order.
	ListByExecution(ctx context.Context, executionID string) ([]*domain.ExecutionStep, error)
}

// SettingsStore provides access to the single-row settings storage.
type SettingsStore interface {
	// Get retrieves the persisted settings. Returns ErrNotFound when the
	// row has never been written; callers fall back to domain defaults.
	Get(ctx context.Context) (*domain.Settings, error)

	// Put upserts the settings row.
	Put(ctx context.Context, s *domain.Settings) error
}

// SpreadSampleStore provides access to spread_samples storage.
type SpreadSampleStore interface {
	// Insert adds one monitor tick sample.
	Insert(ctx context.Context, sample *domain.SpreadSample) error

	// GetByExecution retrieves all samples for an execution, ordered by
	// observation time ASC.
	GetByExecution(ctx context.Context, executionID string) ([]*domain.SpreadSample, error)
}
