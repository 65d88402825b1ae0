package registry

import (
	"sync"
	"time"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

// Registry holds the monitored machines and their last observed state.
// The watchdog loop is the only writer; the bot and HTTP API only read.
type Registry struct {
	mu       sync.RWMutex
	machines []domain.Machine
	index    map[string]int
	states   map[string]domain.MachineState
}

// New builds a registry from machines. Machines with a name already seen are
// skipped, so callers should de-duplicate up front if they want to log it.
func New(machines []domain.Machine) *Registry {
	r := &Registry{
		machines: make([]domain.Machine, 0, len(machines)),
		index:    make(map[string]int, len(machines)),
		states:   make(map[string]domain.MachineState, len(machines)),
	}
	for _, m := range machines {
		if _, dup := r.index[m.Name]; dup {
			continue
		}
		r.index[m.Name] = len(r.machines)
		r.machines = append(r.machines, m)
		r.states[m.Name] = domain.NewMachineState()
	}
	return r
}

// Machines returns a copy of the machine list in configuration order.
func (r *Registry) Machines() []domain.Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Machine, len(r.machines))
	copy(out, r.machines)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

func (r *Registry) Lookup(name string) (domain.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return domain.Machine{}, false
	}
	return r.machines[i], true
}

// RecordIP stores ip as the machine's known IP and reports whether it changed.
// Empty ips and unknown machines are ignored.
func (r *Registry) RecordIP(name, ip string) bool {
	if ip == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok || r.machines[i].IP == ip {
		return false
	}
	r.machines[i].IP = ip
	return true
}

// Transition compares nowUp with the last known state, stores nowUp, and
// returns the resulting transition.
func (r *Registry) Transition(name string, nowUp bool, detail string) domain.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(name)
	tr := domain.Compare(st.LastKnownUp, nowUp)
	st.LastKnownUp = nowUp
	st.LastCheckedAt = time.Now().UTC()
	st.LastDetail = detail
	r.states[name] = st
	return tr
}

// MarkStarting forces the machine to "not up" after a start was triggered.
func (r *Registry) MarkStarting(name, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.stateLocked(name)
	st.LastKnownUp = false
	st.LastCheckedAt = time.Now().UTC()
	st.LastDetail = detail
	r.states[name] = st
}

// State returns the machine's state, creating the optimistic default on
// first reference.
func (r *Registry) State(name string) domain.MachineState {
	r.mu.RLock()
	st, ok := r.states[name]
	r.mu.RUnlock()
	if ok {
		return st
	}
	return domain.NewMachineState()
}

func (r *Registry) stateLocked(name string) domain.MachineState {
	st, ok := r.states[name]
	if !ok {
		st = domain.NewMachineState()
	}
	return st
}
