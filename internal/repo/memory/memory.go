package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

// Store keeps the machine list in memory. Backs --no-save and tests.
type Store struct {
	mu       sync.RWMutex
	machines []domain.Machine
	saves    int
	failWith error
}

func New(machines ...domain.Machine) *Store {
	return &Store{machines: clone(machines)}
}

func (m *Store) Load(ctx context.Context) ([]domain.Machine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.machines), nil
}

func (m *Store) Save(ctx context.Context, machines []domain.Machine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failWith != nil {
		return m.failWith
	}
	m.machines = clone(machines)
	return nil
}

// Saves reports how many times Save was called.
func (m *Store) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// FailWith makes subsequent Saves return err (nil restores normal behaviour).
func (m *Store) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func clone(ms []domain.Machine) []domain.Machine {
	out := make([]domain.Machine, len(ms))
	copy(out, ms)
	return out
}
