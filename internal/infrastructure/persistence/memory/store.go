// Package memory implements a process-local key-value backend for tests and
// ephemeral runs.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// Store implements shared.KVStore on a map. Values are copied on the way in
// and out.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns a copy of the value under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Update applies fn under the write lock.
func (s *Store) Update(_ context.Context, key string, fn shared.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.data[key]
	next, err := fn(append([]byte(nil), current...), found)
	if err != nil {
		return err
	}
	if next != nil {
		s.data[key] = append([]byte(nil), next...)
	}
	return nil
}

// DeleteProfile removes every record of profile.
func (s *Store) DeleteProfile(_ context.Context, profile shared.ProfileID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := profile.String() + ":"
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
