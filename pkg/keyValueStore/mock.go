package keyValueStore

import (
	"context"
	"sync"
)

var _ Store = &MockStore{}

// MockStore provides an in-memory store for tests. It records every call.
type MockStore struct {
	mu   sync.RWMutex
	data map[string]string

	GetCalls []string
	SetCalls []SetCall

	// GetErr, SetErr and PingErr are returned by the matching operation when set.
	GetErr  error
	SetErr  error
	PingErr error
	closed  bool
}

type SetCall struct {
	Key   string
	Value string
}

// NewMockStore initialises an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]string)}
}

func (m *MockStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = append(m.GetCalls, key)
	if m.closed {
		return "", false, ErrClosed
	}
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	if key == "" {
		return "", false, nil
	}
	v, ok := m.data[key]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (m *MockStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls = append(m.SetCalls, SetCall{Key: key, Value: value})
	if m.closed {
		return ErrClosed
	}
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	return nil
}

func (m *MockStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.PingErr
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Put seeds a value without recording a Set call.
func (m *MockStore) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Delete removes a key without recording a call.
func (m *MockStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Value returns the raw stored value.
func (m *MockStore) Value(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Writes returns the recorded Set calls for key.
func (m *MockStore) Writes(key string) []SetCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SetCall
	for _, c := range m.SetCalls {
		if c.Key == key {
			out = append(out, c)
		}
	}
	return out
}
