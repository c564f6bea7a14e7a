package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// SpreadSampleStore is an in-memory implementation of storage.SpreadSampleStore.
type SpreadSampleStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.SpreadSample // keyed by execution_id
}

// NewSpreadSampleStore creates a new in-memory spread sample store.
func NewSpreadSampleStore() *SpreadSampleStore {
	return &SpreadSampleStore{
		data: make(map[string][]*domain.SpreadSample),
	}
}

// Insert adds one monitor tick sample.
func (s *SpreadSampleStore) Insert(_ context.Context, sample *domain.SpreadSample) error {
	if sample == nil || sample.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sampleCopy := *sample
	s.data[sample.ExecutionID] = append(s.data[sample.ExecutionID], &sampleCopy)
	return nil
}

// GetByExecution retrieves all samples for an execution, ordered by
// observation time ASC.
func (s *SpreadSampleStore) GetByExecution(_ context.Context, executionID string) ([]*domain.SpreadSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.data[executionID]
	result := make([]*domain.SpreadSample, 0, len(samples))
	for _, sample := range samples {
		sampleCopy := *sample
		result = append(result, &sampleCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SpreadSampleStore = (*SpreadSampleStore)(nil)
