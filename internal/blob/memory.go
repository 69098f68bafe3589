package blob

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MemoryStore implements the Store interface using an in-memory map.
// It backs the "memory" blob backend and the unit tests; the failure hooks
// let tests simulate an unreachable or rejecting backend.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// BaseURL is the prefix used by PublicURL. Defaults to "memory://".
	BaseURL string

	// PutErr, RemoveErr: when non-nil, the corresponding operation fails
	// with this error instead of touching the map. Test hooks.
	PutErr    error
	RemoveErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), BaseURL: "memory://"}
}

// Put stores the reader's bytes under key, replacing any previous value.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	if s.PutErr != nil {
		return 0, s.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return int64(len(data)), nil
}

// Remove deletes the blob under key, returning ErrNotFound when absent.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// PublicURL joins the base URL with the key.
func (s *MemoryStore) PublicURL(key string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + key
}

// Exists reports whether a blob is stored under key.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

// Get returns a copy of the stored bytes, or ErrNotFound. Test helper.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Len returns the number of stored blobs. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}
