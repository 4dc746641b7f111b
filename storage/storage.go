// Package storage holds the durable client-side key/value store and the
// session identifier kept in it.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrStorageUnavailable is returned when the durable store cannot be read or written
var ErrStorageUnavailable = errors.New("storage unavailable")

// Storage is a small durable key/value store, the process analogue of a
// browser profile's local storage
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStorage keeps values for the lifetime of the process
type MemoryStorage struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get returns the value stored under key
func (ms *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	v, ok := ms.values[key]
	return v, ok, nil
}

// Set stores value under key
func (ms *MemoryStorage) Set(_ context.Context, key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.values[key] = value
	return nil
}
