package storage

import (
	"context"
	"sync"
)

// MemoryJournal keeps trades in memory. Used by tests and dry runs.
type MemoryJournal struct {
	recordError error
	trades      []Trade
	mu          sync.Mutex
}

// NewMemoryJournal creates an empty in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordTrade stores a trade
func (m *MemoryJournal) RecordTrade(ctx context.Context, trade Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordError != nil {
		return m.recordError
	}
	m.trades = append(m.trades, trade)
	return nil
}

// Trades returns a copy of the recorded trades in order
func (m *MemoryJournal) Trades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Trade(nil), m.trades...)
}

// SetRecordError makes subsequent RecordTrade calls fail
func (m *MemoryJournal) SetRecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordError = err
}
