package domain

// StatusLine is the answer to a manual check-and-start request.
type StatusLine struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// String renders "{name}: ✅ message" or "{name}: ❌ message".
func (s StatusLine) String() string {
	mark := "❌"
	if s.OK {
		mark = "✅"
	}
	return s.Name + ": " + mark + " " + s.Message
}

// MachineStatus pairs a machine with what the loop last observed about it.
type MachineStatus struct {
	Machine
	State MachineState `json:"state"`
}
