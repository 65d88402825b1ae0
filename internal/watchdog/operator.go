package watchdog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

// ErrUnknownMachine is returned by CheckMachine for names not in the registry.
type ErrUnknownMachine struct{ Name string }

func (e *ErrUnknownMachine) Error() string {
	return fmt.Sprintf("unknown machine %q", e.Name)
}

// CheckMachine asks the gateway to start name right now and reports the
// answer. It does not touch the loop's state; the next tick observes the
// effect.
func (w *Watchdog) CheckMachine(ctx context.Context, name string) (domain.StatusLine, error) {
	m, ok := w.Registry.Lookup(name)
	if !ok {
		return domain.StatusLine{}, &ErrUnknownMachine{Name: name}
	}
	out := w.Gateway.RequestStart(ctx, m.URL)
	w.Logger.Info("manual_check",
		zap.String("machine", m.Name),
		zap.String("outcome", out.Kind.String()),
	)
	return statusLine(m.Name, out), nil
}

// CheckAll runs CheckMachine for every machine in configuration order.
func (w *Watchdog) CheckAll(ctx context.Context) []domain.StatusLine {
	ms := w.Registry.Machines()
	out := make([]domain.StatusLine, 0, len(ms))
	for _, m := range ms {
		if ctx.Err() != nil {
			break
		}
		line, err := w.CheckMachine(ctx, m.Name)
		if err != nil {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Status returns every machine with its last observed state.
func (w *Watchdog) Status() []domain.MachineStatus {
	ms := w.Registry.Machines()
	out := make([]domain.MachineStatus, len(ms))
	for i, m := range ms {
		out[i] = domain.MachineStatus{Machine: m, State: w.Registry.State(m.Name)}
	}
	return out
}

func statusLine(name string, out domain.ProbeOutcome) domain.StatusLine {
	switch out.Kind {
	case domain.OutcomeStartTriggered:
		return domain.StatusLine{Name: name, OK: true, Message: "start requested, machine is booting"}
	case domain.OutcomeUp:
		return domain.StatusLine{Name: name, OK: true, Message: "already running"}
	default:
		return domain.StatusLine{Name: name, OK: false, Message: out.Detail}
	}
}
