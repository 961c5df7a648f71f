package store

import (
	"context"
	"sync"
)

// Memory keeps records in process memory. Used for embedding and tests.
type Memory struct {
	name    string
	mu      sync.Mutex
	records []string
	closed  bool
}

func NewMemory(name string, records ...string) *Memory {
	return &Memory{name: name, records: append([]string(nil), records...)}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) ReadAll(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), m.records...), nil
}

func (m *Memory) ReadBlob(ctx context.Context) (string, error) {
	recs, err := m.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	return Blob(recs), nil
}

func (m *Memory) AppendLine(_ context.Context, record string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = append(m.records, record)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = nil
	return nil
}

func (m *Memory) WriteAll(_ context.Context, records []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = append([]string(nil), records...)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
