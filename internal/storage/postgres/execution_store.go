package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
//
// A partial unique index on (opportunity_id) WHERE state is non-terminal
// backs the one-active-execution-per-opportunity rule, so a racing insert
// surfaces as ErrDuplicateKey rather than a second live run.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists
// or another execution is still active for the same opportunity.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.FailsafeExecution) error {
	if e == nil || e.ExecutionID == "" || e.OpportunityID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO executions (
			execution_id, opportunity_id, state,
			capital, base_amount, current_spread, target_spread, profit,
			failure_reason, live, started_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ExecutionID, e.OpportunityID, string(e.State),
		e.Capital, e.BaseAmount, e.CurrentSpread, e.TargetSpread, e.Profit,
		e.FailureReason, e.Live, e.StartedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID retrieves an execution by its ID. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.FailsafeExecution, error) {
	query := `
		SELECT
			execution_id, opportunity_id, state,
			capital, base_amount, current_spread, target_spread, profit,
			failure_reason, live, started_at, updated_at
		FROM executions
		WHERE execution_id = $1
	`

	row := s.pool.QueryRow(ctx, query, executionID)
	e, err := scanExecution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution by id: %w", err)
	}
	return e, nil
}

// Update overwrites the mutable fields of an existing execution.
func (s *ExecutionStore) Update(ctx context.Context, e *domain.FailsafeExecution) error {
	if e == nil || e.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE executions
		SET state = $2,
		    capital = $3,
		    base_amount = $4,
		    current_spread = $5,
		    target_spread = $6,
		    profit = $7,
		    failure_reason = $8,
		    live = $9,
		    updated_at = $10
		WHERE execution_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		e.ExecutionID, string(e.State),
		e.Capital, e.BaseAmount, e.CurrentSpread, e.TargetSpread, e.Profit,
		e.FailureReason, e.Live, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSpread persists the latest observed spread without touching the
// rest of the row.
func (s *ExecutionStore) UpdateSpread(ctx context.Context, executionID string, spreadPct decimal.Decimal, updatedAt int64) error {
	query := `
		UPDATE executions
		SET current_spread = $2, updated_at = $3
		WHERE execution_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, executionID, spreadPct, updatedAt)
	if err != nil {
		return fmt.Errorf("update execution spread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActive retrieves all executions in a non-terminal state, oldest first
// so recovery resumes runs in start order.
func (s *ExecutionStore) ListActive(ctx context.Context) ([]*domain.FailsafeExecution, error) {
	query := `
		SELECT
			execution_id, opportunity_id, state,
			capital, base_amount, current_spread, target_spread, profit,
			failure_reason, live, started_at, updated_at
		FROM executions
		WHERE state NOT IN ('completed', 'failed')
		ORDER BY started_at ASC, execution_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ActiveForOpportunity retrieves the non-terminal execution for an
// opportunity. Returns ErrNotFound when none is active.
func (s *ExecutionStore) ActiveForOpportunity(ctx context.Context, opportunityID string) (*domain.FailsafeExecution, error) {
	query := `
		SELECT
			execution_id, opportunity_id, state,
			capital, base_amount, current_spread, target_spread, profit,
			failure_reason, live, started_at, updated_at
		FROM executions
		WHERE opportunity_id = $1 AND state NOT IN ('completed', 'failed')
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, opportunityID)
	e, err := scanExecution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active execution for opportunity: %w", err)
	}
	return e, nil
}

// ListRecent retrieves up to limit executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]*domain.FailsafeExecution, error) {
	query := `
		SELECT
			execution_id, opportunity_id, state,
			capital, base_amount, current_spread, target_spread, profit,
			failure_reason, live, started_at, updated_at
		FROM executions
		ORDER BY started_at DESC, execution_id ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// Stats aggregates terminal and active execution counts and total profit.
func (s *ExecutionStore) Stats(ctx context.Context) (*domain.TradeStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'failed'),
			COUNT(*) FILTER (WHERE state NOT IN ('completed', 'failed')),
			COALESCE(SUM(profit) FILTER (WHERE state = 'completed'), 0)
		FROM executions
	`

	var (
		total, completed, failed, active int64
		totalProfit                      decimal.Decimal
	)
	err := s.pool.QueryRow(ctx, query).Scan(&total, &completed, &failed, &active, &totalProfit)
	if err != nil {
		return nil, fmt.Errorf("aggregate execution stats: %w", err)
	}

	stats := &domain.TradeStats{
		TotalExecutions: int(total),
		Completed:       int(completed),
		Failed:          int(failed),
		Active:          int(active),
		TotalProfit:     totalProfit,
	}
	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}
	return stats, nil
}

// scanExecution scans a single row into a FailsafeExecution.
func scanExecution(row pgx.Row) (*domain.FailsafeExecution, error) {
	var e domain.FailsafeExecution
	var state string

	err := row.Scan(
		&e.ExecutionID, &e.OpportunityID, &state,
		&e.Capital, &e.BaseAmount, &e.CurrentSpread, &e.TargetSpread, &e.Profit,
		&e.FailureReason, &e.Live, &e.StartedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.State = domain.ExecutionState(state)
	return &e, nil
}

// scanExecutions scans multiple rows into a slice of FailsafeExecution.
func scanExecutions(rows pgx.Rows) ([]*domain.FailsafeExecution, error) {
	var execs []*domain.FailsafeExecution

	for rows.Next() {
		var e domain.FailsafeExecution
		var state string

		err := rows.Scan(
			&e.ExecutionID, &e.OpportunityID, &state,
			&e.Capital, &e.BaseAmount, &e.CurrentSpread, &e.TargetSpread, &e.Profit,
			&e.FailureReason, &e.Live, &e.StartedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}

		e.State = domain.ExecutionState(state)
		execs = append(execs, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}

	return execs, nil
}
