// Package audit records mutating file operations.
package audit

import (
	"context"
	"sync"
	"time"
)

// Entry is one audited operation. Session is a credential fingerprint,
// never the credential itself.
type Entry struct {
	At      time.Time `json:"at"`
	Op      string    `json:"op"`
	Path    string    `json:"path"`
	Session string    `json:"session"`
	OK      bool      `json:"ok"`
	Detail  string    `json:"detail,omitempty"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const (
	DefaultRecentLimit = 100
	MaxRecentLimit     = 1000
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	}
	return limit
}

// Nop discards entries. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }
func (Nop) Close() error { return nil }

// Memory keeps the most recent entries in a ring.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemory creates an in-memory recorder holding up to max entries.
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = MaxRecentLimit
	}
	return &Memory{max: max}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
