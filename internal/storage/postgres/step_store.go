package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// ExecutionStepStore implements storage.ExecutionStepStore using PostgreSQL.
// The step log is append-only; step_id comes from a sequence so the insert
// order is recoverable even when two entries share a timestamp.
type ExecutionStepStore struct {
	pool *Pool
}

// NewExecutionStepStore creates a new ExecutionStepStore.
func NewExecutionStepStore(pool *Pool) *ExecutionStepStore {
	return &ExecutionStepStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStepStore = (*ExecutionStepStore)(nil)

// Append adds one step entry and assigns its StepID.
func (s *ExecutionStepStore) Append(ctx context.Context, step *domain.ExecutionStep) error {
	if step == nil || step.ExecutionID == "" || step.Step == "" {
		return storage.ErrInvalidInput
	}

	details, err := marshalDetails(step.Details)
	if err != nil {
		return fmt.Errorf("marshal step details: %w", err)
	}

	query := `
		INSERT INTO execution_steps (
			execution_id, step, outcome, details, live, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING step_id
	`

	row := s.pool.QueryRow(ctx, query,
		step.ExecutionID, step.Step, string(step.Outcome), details, step.Live, step.CreatedAt,
	)
	if err := row.Scan(&step.StepID); err != nil {
		return fmt.Errorf("insert execution step: %w", err)
	}
	return nil
}

// ListByExecution retrieves all steps for an execution in insert order.
func (s *ExecutionStepStore) ListByExecution(ctx context.Context, executionID string) ([]*domain.ExecutionStep, error) {
	query := `
		SELECT step_id, execution_id, step, outcome, details, live, created_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY step_id ASC
	`

	rows, err := s.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list execution steps: %w", err)
	}
	defer rows.Close()

	var steps []*domain.ExecutionStep
	for rows.Next() {
		var (
			step    domain.ExecutionStep
			outcome string
			details []byte
		)

		err := rows.Scan(
			&step.StepID, &step.ExecutionID, &step.Step, &outcome, &details, &step.Live, &step.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution step row: %w", err)
		}

		step.Outcome = domain.StepOutcome(outcome)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &step.Details); err != nil {
				return nil, fmt.Errorf("unmarshal step details: %w", err)
			}
		}
		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution step rows: %w", err)
	}

	return steps, nil
}

// marshalDetails encodes the details payload for the JSONB column.
// A nil map is stored as an empty object so scans round-trip cleanly.
func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}
