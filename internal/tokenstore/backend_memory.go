// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tokenstore

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory. Nothing survives a restart,
// which makes it the backend of choice for tests and throwaway sessions.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (backend *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	backend.mu.RLock()
	defer backend.mu.RUnlock()

	value, ok := backend.values[key]
	return value, ok, nil
}

func (backend *MemoryBackend) SetMany(_ context.Context, values map[string]string) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	for key, value := range values {
		backend.values[key] = value
	}
	return nil
}

func (backend *MemoryBackend) DeleteMany(_ context.Context, keys ...string) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	for _, key := range keys {
		delete(backend.values, key)
	}
	return nil
}

func (backend *MemoryBackend) Ping(context.Context) error { return nil }

func (backend *MemoryBackend) Close() error { return nil }

// Len returns the number of stored keys.
func (backend *MemoryBackend) Len() int {
	backend.mu.RLock()
	defer backend.mu.RUnlock()
	return len(backend.values)
}
