package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// ExecutionStepStore is an in-memory implementation of storage.ExecutionStepStore.
type ExecutionStepStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[string][]*domain.ExecutionStep // keyed by execution_id, insert order
}

// NewExecutionStepStore creates a new in-memory step store.
func NewExecutionStepStore() *ExecutionStepStore {
	return &ExecutionStepStore{
		data: make(map[string][]*domain.ExecutionStep),
	}
}

// Append adds one step entry and assigns its StepID.
func (s *ExecutionStepStore) Append(_ context.Context, step *domain.ExecutionStep) error {
	if step == nil || step.ExecutionID == "" || step.Step == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	step.StepID = s.nextID

	stepCopy := copyStep(step)
	s.data[step.ExecutionID] = append(s.data[step.ExecutionID], stepCopy)
	return nil
}

// ListByExecution retrieves all steps for an execution in insert order.
func (s *ExecutionStepStore) ListByExecution(_ context.Context, executionID string) ([]*domain.ExecutionStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.data[executionID]
	result := make([]*domain.ExecutionStep, 0, len(steps))
	for _, step := range steps {
		result = append(result, copyStep(step))
	}
	return result, nil
}

// copyStep clones a step including its details map, so callers can never
// mutate a stored entry.
func copyStep(step *domain.ExecutionStep) *domain.ExecutionStep {
	stepCopy := *step
	if step.Details != nil {
		stepCopy.Details = maps.Clone(step.Details)
	}
	return &stepCopy
}

// Verify interface compliance at compile time.
var _ storage.ExecutionStepStore = (*ExecutionStepStore)(nil)
