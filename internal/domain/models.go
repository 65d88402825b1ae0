package domain

import "time"

// Machine is one monitored VM as it appears in the config store.
type Machine struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	IP   string `json:"ip,omitempty" yaml:"ip,omitempty"`
}

// MachineState is the in-memory, per-machine observation. It is never persisted.
type MachineState struct {
	LastKnownUp   bool      `json:"last_known_up"`
	LastCheckedAt time.Time `json:"last_checked_at,omitempty"`
	LastDetail    string    `json:"last_detail,omitempty"`
}

// NewMachineState returns the optimistic initial state: a freshly started
// watchdog assumes every machine is up so it never opens with a recovery alert.
func NewMachineState() MachineState {
	return MachineState{LastKnownUp: true}
}

// Transition is the change in up/down classification between two observations.
type Transition int

const (
	Unchanged Transition = iota
	Recovered
	Failed
)

func (t Transition) String() string {
	switch t {
	case Recovered:
		return "recovered"
	case Failed:
		return "failed"
	default:
		return "unchanged"
	}
}

// Compare derives the transition from the previous and current observation.
func Compare(wasUp, nowUp bool) Transition {
	switch {
	case nowUp && !wasUp:
		return Recovered
	case !nowUp && wasUp:
		return Failed
	default:
		return Unchanged
	}
}
