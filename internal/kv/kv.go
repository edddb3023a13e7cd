// Package kv defines the durable local storage contract used for client-side
// state such as the offline queue: string values under fixed string keys,
// written whole on every change.
package kv

import (
	"errors"
	"sync"
)

// ErrQuotaExceeded is returned by a storage that has no room for a value.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// Storage is the getItem/setItem/removeItem contract.
type Storage interface {
	// GetItem returns the value under key and whether it exists.
	GetItem(key string) (string, bool, error)
	// SetItem replaces the value under key.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
}

// Memory is a goroutine-safe in-memory Storage. A positive Quota bounds the
// total number of value bytes, mimicking browser storage limits.
type Memory struct {
	Quota int

	mu     sync.Mutex
	items  map[string]string
	writes int
	fail   error
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

func (m *Memory) GetItem(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", false, m.fail
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.Quota > 0 {
		used := len(value)
		for k, v := range m.items {
			if k != key {
				used += len(v)
			}
		}
		if used > m.Quota {
			return ErrQuotaExceeded
		}
	}
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	m.writes++
	return nil
}

func (m *Memory) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.items, key)
	m.writes++
	return nil
}

// FailWith makes every subsequent call return err; nil restores normal behavior.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Writes returns the number of successful SetItem/RemoveItem calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
