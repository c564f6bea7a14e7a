package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// OpportunityStore is an in-memory implementation of storage.OpportunityStore.
type OpportunityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Opportunity // keyed by opportunity_id
}

// NewOpportunityStore creates a new in-memory opportunity store.
func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{
		data: make(map[string]*domain.Opportunity),
	}
}

// Insert adds a new opportunity. Returns ErrDuplicateKey if opportunity_id exists.
func (s *OpportunityStore) Insert(_ context.Context, o *domain.Opportunity) error {
	if o == nil || o.OpportunityID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OpportunityID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	oppCopy := *o
	s.data[o.OpportunityID] = &oppCopy
	return nil
}

// GetByID retrieves an opportunity by its ID. Returns ErrNotFound if not exists.
func (s *OpportunityStore) GetByID(_ context.Context, opportunityID string) (*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[opportunityID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	oppCopy := *o
	return &oppCopy, nil
}

// ListRecent retrieves up to limit opportunities, newest first.
func (s *OpportunityStore) ListRecent(_ context.Context, limit int) ([]*domain.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Opportunity, 0, len(s.data))
	for _, o := range s.data {
		oppCopy := *o
		result = append(result, &oppCopy)
	}

	// Sort by detected_at DESC
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt > result[j].DetectedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.OpportunityStore = (*OpportunityStore)(nil)
