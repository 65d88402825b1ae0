package watchdog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

func TestCheckMachine_StatusLines(t *testing.T) {
	cases := []struct {
		name string
		out  domain.ProbeOutcome
		want string
	}{
		{"started", domain.StartTriggered("", "1.2.3.4"), "db1: ✅ start requested, machine is booting"},
		{"running", domain.Up(""), "db1: ✅ already running"},
		{"stopped", domain.Down("API error (400): STOPPED"), "db1: ❌ API error (400): STOPPED"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t, Config{}, db1)
			h.gw.on(db1.URL, c.out)

			line, err := h.wd.CheckMachine(context.Background(), "db1")
			require.NoError(t, err)
			assert.Equal(t, c.want, line.String())
		})
	}
}

func TestCheckMachine_NeverWritesState(t *testing.T) {
	h := newHarness(t, Config{}, db1)
	h.gw.on(db1.URL, domain.StartTriggered("", "1.2.3.4"))

	_, err := h.wd.CheckMachine(context.Background(), "db1")
	require.NoError(t, err)

	st := h.wd.Registry.State("db1")
	assert.True(t, st.LastKnownUp)
	assert.True(t, st.LastCheckedAt.IsZero())
	m, _ := h.wd.Registry.Lookup("db1")
	assert.Empty(t, m.IP)
	assert.Empty(t, h.notes.alerts())
	assert.Zero(t, h.store.Saves())
}

func TestCheckMachine_Unknown(t *testing.T) {
	h := newHarness(t, Config{}, db1)
	_, err := h.wd.CheckMachine(context.Background(), "nope")
	var unknown *ErrUnknownMachine
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Name)
	assert.Empty(t, h.gw.startCalls())
}

func TestCheckAll_InConfigOrder(t *testing.T) {
	web := domain.Machine{Name: "web", URL: "https://gw.example/web"}
	h := newHarness(t, Config{}, web, db1)
	h.gw.on(web.URL, domain.Up(""))
	h.gw.on(db1.URL, domain.Down("network error: refused"))

	lines := h.wd.CheckAll(context.Background())
	require.Len(t, lines, 2)
	assert.Equal(t, "web: ✅ already running", lines[0].String())
	assert.Equal(t, "db1: ❌ network error: refused", lines[1].String())
}

func TestStatus_ReflectsLoop(t *testing.T) {
	h := newHarness(t, Config{}, db1)
	h.gw.on(db1.URL, domain.Down("network error: refused"))
	h.wd.RunOnce(context.Background())

	st := h.wd.Status()
	require.Len(t, st, 1)
	assert.Equal(t, "db1", st[0].Name)
	assert.False(t, st[0].State.LastKnownUp)
	assert.Equal(t, "network error: refused", st[0].State.LastDetail)
	assert.False(t, st[0].State.LastCheckedAt.IsZero())
}
