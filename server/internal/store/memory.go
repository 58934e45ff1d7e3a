package store

import (
	"context"
	"sync"
)

// Memory keeps the snapshot in process memory.
type Memory struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.set = true
	return nil
}

// Bytes returns a copy of the stored bytes, or nil if nothing was written.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil
	}
	return append([]byte(nil), m.data...)
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Close() error { return nil }
