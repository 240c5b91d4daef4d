package store

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Backend with an optional byte quota. The quota
// counts len(key)+len(value) of every stored entry.
type Memory struct {
	maxBytes int

	mu   sync.RWMutex
	data map[string][]byte
	used int
}

// NewMemory returns an empty Memory backend. maxBytes ≤ 0 means unlimited.
func NewMemory(maxBytes int) *Memory {
	return &Memory{maxBytes: maxBytes, data: make(map[string][]byte)}
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := len(key) + len(val)
	if old, ok := m.data[key]; ok {
		delta -= len(key) + len(old)
	}
	if m.maxBytes > 0 && m.used+delta > m.maxBytes {
		return ErrQuotaExceeded
	}
	m.data[key] = bytes.Clone(val)
	m.used += delta
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Keys implements Backend. Keys are returned sorted.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Used returns the number of bytes counted against the quota.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }
