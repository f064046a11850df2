package ledger

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
)

// Memory is an in-memory Store. Records are stored encoded, so callers
// never share state with the store. It is safe for concurrent use and
// intended primarily for testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, r *Record) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[r.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	data, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(data)
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.data, id)
	return nil
}

func (m *Memory) List(_ context.Context, f Filter) iter.Seq2[*Record, error] {
	// Snapshot under read lock.
	m.mu.RLock()
	ids := slices.Sorted(maps.Keys(m.data))
	values := make([][]byte, len(ids))
	for i, id := range ids {
		values[i] = m.data[id]
	}
	m.mu.RUnlock()

	return func(yield func(*Record, error) bool) {
		n := 0
		for _, data := range values {
			r, err := decode(data)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !f.match(r) {
				continue
			}
			n++
			if !yield(r, nil) || (f.Limit > 0 && n >= f.Limit) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
