package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

const admin int64 = 42

type fakeOperator struct {
	mu      sync.Mutex
	status  []domain.MachineStatus
	checked []string
}

func (f *fakeOperator) Status() []domain.MachineStatus { return f.status }

func (f *fakeOperator) CheckMachine(_ context.Context, name string) (domain.StatusLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.status {
		if s.Name == name {
			f.checked = append(f.checked, name)
			return domain.StatusLine{Name: name, OK: true, Message: "already running"}, nil
		}
	}
	return domain.StatusLine{}, errors.New("unknown machine " + name)
}

func (f *fakeOperator) CheckAll(ctx context.Context) []domain.StatusLine {
	var out []domain.StatusLine
	for _, s := range f.status {
		l, _ := f.CheckMachine(ctx, s.Name)
		out = append(out, l)
	}
	return out
}

func newTestBot(t *testing.T, op Operator) (*fakeAPI, *Bot, *observer.ObservedLogs) {
	t.Helper()
	api, c := newFakeAPI(t)
	core, logs := observer.New(zapcore.DebugLevel)
	return api, NewBot(c, op, admin, zap.New(core)), logs
}

func twoMachines() *fakeOperator {
	return &fakeOperator{status: []domain.MachineStatus{
		{Machine: domain.Machine{Name: "db1", URL: "http://gw/db1"}, State: domain.NewMachineState()},
		{Machine: domain.Machine{Name: "web", URL: "http://gw/web"}, State: domain.NewMachineState()},
	}}
}

func command(from int64, text string) Update {
	return Update{UpdateID: 1, Message: &Message{From: &User{ID: from}, Chat: Chat{ID: from}, Text: text}}
}

func TestBot_IgnoresStrangers(t *testing.T) {
	op := twoMachines()
	api, bot, logs := newTestBot(t, op)

	bot.HandleUpdate(context.Background(), command(7, "/machines"))
	bot.HandleUpdate(context.Background(), Update{CallbackQuery: &CallbackQuery{ID: "q", From: User{ID: 7}, Data: dataCheckAll}})
	bot.HandleUpdate(context.Background(), Update{Message: &Message{Chat: Chat{ID: 9}, Text: "/status"}})

	assert.Empty(t, api.callsTo("sendMessage"))
	assert.Empty(t, op.checked)
	assert.Equal(t, 3, logs.FilterMessage("bot_unauthorized").Len())
}

func TestBot_HelpForUnknownAndStart(t *testing.T) {
	api, bot, _ := newTestBot(t, twoMachines())
	bot.HandleUpdate(context.Background(), command(admin, "/start"))
	bot.HandleUpdate(context.Background(), command(admin, "hello"))

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, helpText, c.Body["text"])
	}
}

func TestBot_MachinesKeyboard(t *testing.T) {
	for _, cmd := range []string{"/machines", "/vms", "/VMS@watchdog_bot"} {
		t.Run(cmd, func(t *testing.T) {
			api, bot, _ := newTestBot(t, twoMachines())
			bot.HandleUpdate(context.Background(), command(admin, cmd))

			calls := api.callsTo("sendMessage")
			require.Len(t, calls, 1)
			markup := calls[0].Body["reply_markup"].(map[string]any)
			rows := markup["inline_keyboard"].([]any)
			require.Len(t, rows, 3)

			var data []string
			for _, r := range rows {
				btn := r.([]any)[0].(map[string]any)
				data = append(data, btn["callback_data"].(string))
			}
			assert.Equal(t, []string{"check:db1", "check:web", dataCheckAll}, data)
		})
	}
}

func TestBot_CallbackChecksOneMachine(t *testing.T) {
	op := twoMachines()
	api, bot, _ := newTestBot(t, op)

	bot.HandleUpdate(context.Background(), Update{CallbackQuery: &CallbackQuery{
		ID: "q1", From: User{ID: admin}, Message: &Message{Chat: Chat{ID: admin}}, Data: "check:web",
	}})

	assert.Equal(t, []string{"web"}, op.checked)
	require.Len(t, api.callsTo("answerCallbackQuery"), 1)
	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "web: ✅ already running", calls[0].Body["text"])
}

func TestBot_CallbackAll(t *testing.T) {
	op := twoMachines()
	api, bot, _ := newTestBot(t, op)

	bot.HandleUpdate(context.Background(), Update{CallbackQuery: &CallbackQuery{
		ID: "q1", From: User{ID: admin}, Data: dataCheckAll,
	}})

	assert.Equal(t, []string{"db1", "web"}, op.checked)
	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.EqualValues(t, admin, calls[0].Body["chat_id"])
	assert.Equal(t, "db1: ✅ already running\nweb: ✅ already running", calls[0].Body["text"])
}

func TestBot_LongNamesUseIndex(t *testing.T) {
	long := strings.Repeat("m", 70)
	op := &fakeOperator{status: []domain.MachineStatus{{Machine: domain.Machine{Name: long}}}}
	api, bot, _ := newTestBot(t, op)

	data := callbackFor(0, long)
	assert.Equal(t, "check#0", data)

	bot.HandleUpdate(context.Background(), Update{CallbackQuery: &CallbackQuery{ID: "q", From: User{ID: admin}, Data: data}})
	assert.Equal(t, []string{long}, op.checked)

	bot.HandleUpdate(context.Background(), Update{CallbackQuery: &CallbackQuery{ID: "q", From: User{ID: admin}, Data: "check#5"}})
	assert.Len(t, op.checked, 1)
	assert.Len(t, api.callsTo("answerCallbackQuery"), 2)
}

func TestBot_CheckCommand(t *testing.T) {
	op := twoMachines()
	api, bot, _ := newTestBot(t, op)

	bot.HandleUpdate(context.Background(), command(admin, "/check db1"))
	bot.HandleUpdate(context.Background(), command(admin, "/check nope"))
	bot.HandleUpdate(context.Background(), command(admin, "/check"))

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 3)
	assert.Equal(t, "db1: ✅ already running", calls[0].Body["text"])
	assert.Equal(t, "unknown machine nope", calls[1].Body["text"])
	assert.Equal(t, "usage: /check <name>", calls[2].Body["text"])
}

func TestRenderStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	st := []domain.MachineStatus{
		{Machine: domain.Machine{Name: "db1", IP: "1.2.3.4"}, State: domain.MachineState{LastKnownUp: true, LastCheckedAt: now.Add(-30 * time.Second), LastDetail: "ping OK"}},
		{Machine: domain.Machine{Name: "web"}, State: domain.MachineState{LastKnownUp: false, LastCheckedAt: now.Add(-time.Minute), LastDetail: "network error: refused"}},
		{Machine: domain.Machine{Name: "new"}, State: domain.NewMachineState()},
	}
	want := "Last observed state:\n" +
		"🟢 db1: up, 30s ago (ping OK) [1.2.3.4]\n" +
		"🔴 web: down, 1m0s ago (network error: refused)\n" +
		"⚪ new: not checked yet"
	assert.Equal(t, want, renderStatus(st, now))
	assert.Equal(t, "No machines configured.", renderStatus(nil, now))
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	op := twoMachines()
	api, bot, _ := newTestBot(t, op)
	bot.PollTimeout = 0
	api.updates = [][]Update{{
		{UpdateID: 5, Message: &Message{From: &User{ID: admin}, Chat: Chat{ID: admin}, Text: "/check web"}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bot.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(api.callsTo("sendMessage")) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after cancel")
	}

	// the offset after update 5 must be acknowledged on the next poll
	polls := api.callsTo("getUpdates")
	require.GreaterOrEqual(t, len(polls), 2)
	assert.EqualValues(t, 6, polls[1].Body["offset"])
}
