// Package cache holds tool results keyed by call fingerprint.
package cache

import (
	"context"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Store provides a simple thread-safe in-memory cache. Entries live for the
// lifetime of the Store; there is no eviction.
type Store struct {
	items map[string]interface{}
	mutex sync.RWMutex
}

// New creates an empty Store.
func New() *Store {
	return &Store{items: make(map[string]interface{})}
}

// Get retrieves an item from the cache. found is true for any stored value,
// including nil and zero values.
func (s *Store) Get(ctx context.Context, key string) (interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errbuilder.WrapIfContextDone(ctx, err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, found := s.items[key]
	return value, found, nil
}

// Set adds or replaces an item in the cache.
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return errbuilder.WrapIfContextDone(ctx, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.items[key] = value
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}
