package storage

import (
	"context"
	"sync"
)

// LocalStorage keeps values in process memory.
// Guarded by sync.RWMutex so it can back a store shared by HTTP handlers.
type LocalStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewLocalStorage constructor
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		values: make(map[string]string),
	}
}

// Initialize does nothing in this implementation.
func (l *LocalStorage) Initialize(ctx context.Context) error {
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (l *LocalStorage) Get(ctx context.Context, key string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set replaces the value stored under key.
func (l *LocalStorage) Set(ctx context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values[key] = value
	return nil
}

// Ping is a health check that always returns true.
func (l *LocalStorage) Ping(ctx context.Context) bool {
	return true
}
