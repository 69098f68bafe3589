package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/galleryd/galleryd/internal/uid"
)

// MemoryStore implements the Store interface using in-memory maps. It backs
// the "memory" engine and the unit tests; the failure hooks let tests
// simulate a metadata backend failing mid-operation.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]*Asset

	// InsertErr, DeleteErr, BatchErr: when non-nil, the corresponding
	// operation fails with this error without touching the maps. Test hooks.
	InsertErr error
	DeleteErr error
	BatchErr  error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]*Asset)}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Insert creates a new asset record, assigning id and timestamps.
func (s *MemoryStore) Insert(ctx context.Context, a *Asset) (*Asset, error) {
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *a
	stored.ID = uid.New()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.assets[stored.ID] = &stored

	cp := stored
	return &cp, nil
}

// Get retrieves an asset by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Delete removes an asset record by id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assets[id]; !ok {
		return ErrNotFound
	}
	delete(s.assets, id)
	return nil
}

// GetByProject returns the project's assets in display order.
func (s *MemoryStore) GetByProject(ctx context.Context, projectID string) ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var assets []Asset
	for _, a := range s.assets {
		if a.ProjectID == projectID {
			assets = append(assets, *a)
		}
	}
	SortAssets(assets)
	return assets, nil
}

// MaxDisplayOrder returns the highest display order in the project, or -1.
func (s *MemoryStore) MaxDisplayOrder(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := -1
	for _, a := range s.assets {
		if a.ProjectID == projectID && a.DisplayOrder > max {
			max = a.DisplayOrder
		}
	}
	return max, nil
}

// BatchUpdateOrder applies the given display orders atomically: membership
// is checked up front so a bad id leaves every record untouched.
func (s *MemoryStore) BatchUpdateOrder(ctx context.Context, projectID string, orders map[string]int) error {
	if s.BatchErr != nil {
		return s.BatchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range orders {
		a, ok := s.assets[id]
		if !ok || a.ProjectID != projectID {
			return ErrNotFound
		}
	}

	now := time.Now().UTC()
	for id, order := range orders {
		s.assets[id].DisplayOrder = order
		s.assets[id].UpdatedAt = now
	}
	return nil
}
