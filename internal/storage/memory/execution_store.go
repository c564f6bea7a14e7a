package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FailsafeExecution // keyed by execution_id
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.FailsafeExecution),
	}
}

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id
// exists or the opportunity already has a non-terminal execution, matching
// the partial unique index the PostgreSQL store relies on.
func (s *ExecutionStore) Insert(_ context.Context, e *domain.FailsafeExecution) error {
	if e == nil || e.ExecutionID == "" || e.OpportunityID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}
	if e.Active() {
		for _, other := range s.data {
			if other.OpportunityID == e.OpportunityID && other.Active() {
				return storage.ErrDuplicateKey
			}
		}
	}

	execCopy := *e
	s.data[e.ExecutionID] = &execCopy
	return nil
}

// GetByID retrieves an execution by its ID. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(_ context.Context, executionID string) (*domain.FailsafeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[executionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	execCopy := *e
	return &execCopy, nil
}

// Update overwrites the mutable fields of an existing execution.
func (s *ExecutionStore) Update(_ context.Context, e *domain.FailsafeExecution) error {
	if e == nil || e.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ExecutionID]; !exists {
		return storage.ErrNotFound
	}

	execCopy := *e
	s.data[e.ExecutionID] = &execCopy
	return nil
}

// UpdateSpread persists the latest observed spread for an execution.
func (s *ExecutionStore) UpdateSpread(_ context.Context, executionID string, spreadPct decimal.Decimal, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[executionID]
	if !exists {
		return storage.ErrNotFound
	}

	e.CurrentSpread = spreadPct
	e.UpdatedAt = updatedAt
	return nil
}

// ListActive retrieves all executions in a non-terminal state.
func (s *ExecutionStore) ListActive(_ context.Context) ([]*domain.FailsafeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FailsafeExecution
	for _, e := range s.data {
		if e.Active() {
			execCopy := *e
			result = append(result, &execCopy)
		}
	}

	// Sort by started_at ASC for deterministic recovery order
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt < result[j].StartedAt
	})

	return result, nil
}

// ActiveForOpportunity retrieves the non-terminal execution for an opportunity.
func (s *ExecutionStore) ActiveForOpportunity(_ context.Context, opportunityID string) (*domain.FailsafeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.OpportunityID == opportunityID && e.Active() {
			execCopy := *e
			return &execCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListRecent retrieves up to limit executions, newest first.
func (s *ExecutionStore) ListRecent(_ context.Context, limit int) ([]*domain.FailsafeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FailsafeExecution, 0, len(s.data))
	for _, e := range s.data {
		execCopy := *e
		result = append(result, &execCopy)
	}

	// Sort by started_at DESC
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt > result[j].StartedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Stats aggregates terminal and active execution counts and total profit.
func (s *ExecutionStore) Stats(_ context.Context) (*domain.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.TradeStats{TotalProfit: decimal.Zero}
	for _, e := range s.data {
		stats.TotalExecutions++
		switch e.State {
		case domain.StateCompleted:
			stats.Completed++
			if e.Profit.Valid {
				stats.TotalProfit = stats.TotalProfit.Add(e.Profit.Decimal)
			}
		case domain.StateFailed:
			stats.Failed++
		default:
			stats.Active++
		}
	}

	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}
	return stats, nil
}

// Verify interface compliance at compile time.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)
