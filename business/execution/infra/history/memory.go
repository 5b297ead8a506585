// Package history stores execution records.
package history

import (
	"context"
	"sync"

	"github.com/fd1az/perp-router/business/execution/app"
	"github.com/fd1az/perp-router/business/execution/domain"
)

// DefaultCapacity bounds the in-memory store.
const DefaultCapacity = 500

var _ app.HistoryStore = (*Memory)(nil)

// Memory keeps the most recent records in a ring.
type Memory struct {
	mu   sync.RWMutex
	buf  []domain.Record
	next int
	full bool
}

// NewMemory creates a Memory holding up to capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{buf: make([]domain.Record, capacity)}
}

// Save appends rec, evicting the oldest record when full.
func (m *Memory) Save(_ context.Context, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf[m.next] = rec
	m.next = (m.next + 1) % len(m.buf)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (m *Memory) List(_ context.Context, limit int) ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = len(m.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]domain.Record, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out, nil
}
