package memory

import (
	"context"
	"sync"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu      sync.RWMutex
	current *domain.Settings
}

// NewSettingsStore creates a new in-memory settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

// Get retrieves the persisted settings. Returns ErrNotFound when the row
// has never been written.
func (s *SettingsStore) Get(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, storage.ErrNotFound
	}

	settingsCopy := *s.current
	return &settingsCopy, nil
}

// Put upserts the settings row.
func (s *SettingsStore) Put(_ context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settingsCopy := *settings
	s.current = &settingsCopy
	return nil
}

// Verify interface compliance at compile time.
var _ storage.SettingsStore = (*SettingsStore)(nil)
