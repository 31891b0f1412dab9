package storage

import (
	"sync"
	"time"
)

const defaultHistorySize = 20

type MemoryHistory struct {
	records map[int64][]Record
	size    int
	mutex   sync.RWMutex
}

// NewMemoryHistory keeps up to size records per session, newest first.
func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &MemoryHistory{
		records: make(map[int64][]Record),
		size:    size,
	}
}

func (m *MemoryHistory) Add(rec Record) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	recs := append([]Record{rec}, m.records[rec.Session]...)
	if len(recs) > m.size {
		recs = recs[:m.size]
	}
	m.records[rec.Session] = recs
	return nil
}

func (m *MemoryHistory) Recent(session int64, limit int) ([]Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	recs := m.records[session]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}

	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

func (m *MemoryHistory) Close() error {
	return nil
}
