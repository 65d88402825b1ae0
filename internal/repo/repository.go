package repo

import (
	"context"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

// MachineStore is the durable home of the machine list (config snapshot).
// Only the watchdog loop calls Save.
type MachineStore interface {
	Load(ctx context.Context) ([]domain.Machine, error)
	Save(ctx context.Context, machines []domain.Machine) error
}

// Dedupe drops machines whose name was already seen, keeping the first one,
// and returns the dropped names.
func Dedupe(ms []domain.Machine) ([]domain.Machine, []string) {
	seen := make(map[string]struct{}, len(ms))
	out := make([]domain.Machine, 0, len(ms))
	var dropped []string
	for _, m := range ms {
		if _, ok := seen[m.Name]; ok {
			dropped = append(dropped, m.Name)
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m)
	}
	return out, dropped
}
