package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

const (
	DefaultPollTimeout = 30 * time.Second
	DefaultRetryWait   = 5 * time.Second

	dataCheckAll     = "check_all"
	dataCheckPrefix  = "check:"
	dataIndexPrefix  = "check#"
	maxCallbackBytes = 64
)

const helpText = `VM watchdog bot.

/machines - pick a machine to check and start
/status - last observed state of every machine
/check <name> - check and start one machine
/help - this message`

// Operator is what the bot needs from the watchdog.
type Operator interface {
	Status() []domain.MachineStatus
	CheckMachine(ctx context.Context, name string) (domain.StatusLine, error)
	CheckAll(ctx context.Context) []domain.StatusLine
}

// Bot answers commands from a single operator account.
type Bot struct {
	client      *Client
	op          Operator
	adminID     int64
	log         *zap.Logger
	PollTimeout time.Duration
	RetryWait   time.Duration
}

func NewBot(client *Client, op Operator, adminID int64, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		client:      client,
		op:          op,
		adminID:     adminID,
		log:         log,
		PollTimeout: DefaultPollTimeout,
		RetryWait:   DefaultRetryWait,
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.log.Info("bot_started", zap.Int64("admin_id", b.adminID))
	var offset int64
	for {
		if ctx.Err() != nil {
			b.log.Info("bot_stopped")
			return
		}
		updates, err := b.client.GetUpdates(ctx, offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.log.Info("bot_stopped")
				return
			}
			b.log.Warn("bot_poll_error", zap.Error(err))
			select {
			case <-ctx.Done():
				b.log.Info("bot_stopped")
				return
			case <-time.After(b.RetryWait):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate dispatches one update. Updates from anyone but the operator
// are dropped.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From.ID != b.adminID {
			b.log.Warn("bot_unauthorized", zap.Int64("user_id", q.From.ID), zap.String("kind", "callback"))
			return
		}
		b.handleCallback(ctx, q)
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.From.ID != b.adminID {
			var uid int64
			if m.From != nil {
				uid = m.From.ID
			}
			b.log.Warn("bot_unauthorized", zap.Int64("user_id", uid), zap.String("kind", "message"))
			return
		}
		b.handleCommand(ctx, m)
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *Message) {
	cmd, arg := parseCommand(m.Text)
	log := b.log.With(zap.String("command", cmd))
	switch cmd {
	case "/machines", "/vms":
		b.reply(ctx, log, m, OutgoingMessage{
			Text:        "Pick a machine to check and start:",
			ReplyMarkup: b.keyboard(),
		})
	case "/status":
		b.reply(ctx, log, m, OutgoingMessage{Text: renderStatus(b.op.Status(), time.Now())})
	case "/check":
		if arg == "" {
			b.reply(ctx, log, m, OutgoingMessage{Text: "usage: /check <name>"})
			return
		}
		line, err := b.op.CheckMachine(ctx, arg)
		if err != nil {
			b.reply(ctx, log, m, OutgoingMessage{Text: err.Error()})
			return
		}
		log.Info("bot_manual_check", zap.String("machine", arg), zap.Bool("ok", line.OK))
		b.reply(ctx, log, m, OutgoingMessage{Text: line.String()})
	default:
		b.reply(ctx, log, m, OutgoingMessage{Text: helpText})
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *CallbackQuery) {
	log := b.log.With(zap.String("callback", q.Data))

	var lines []domain.StatusLine
	switch {
	case q.Data == dataCheckAll:
		b.answer(ctx, log, q, "Checking all machines…")
		lines = b.op.CheckAll(ctx)
	default:
		name, ok := b.resolveCallback(q.Data)
		if !ok {
			b.answer(ctx, log, q, "Unknown machine")
			return
		}
		b.answer(ctx, log, q, "Checking "+name+"…")
		line, err := b.op.CheckMachine(ctx, name)
		if err != nil {
			b.send(ctx, log, chatOf(q), OutgoingMessage{Text: err.Error()})
			return
		}
		lines = []domain.StatusLine{line}
	}
	log.Info("bot_manual_check", zap.Int("machines", len(lines)))

	if len(lines) == 0 {
		b.send(ctx, log, chatOf(q), OutgoingMessage{Text: "No machines configured."})
		return
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	b.send(ctx, log, chatOf(q), OutgoingMessage{Text: strings.Join(out, "\n")})
}

// keyboard lists one button per machine plus "all". Names too long for
// callback_data are addressed by position instead.
func (b *Bot) keyboard() *InlineKeyboardMarkup {
	st := b.op.Status()
	rows := make([][]InlineKeyboardButton, 0, len(st)+1)
	for i, s := range st {
		rows = append(rows, []InlineKeyboardButton{{Text: s.Name, CallbackData: callbackFor(i, s.Name)}})
	}
	rows = append(rows, []InlineKeyboardButton{{Text: "🔄 All machines", CallbackData: dataCheckAll}})
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

func callbackFor(i int, name string) string {
	if d := dataCheckPrefix + name; len(d) <= maxCallbackBytes {
		return d
	}
	return dataIndexPrefix + strconv.Itoa(i)
}

func (b *Bot) resolveCallback(data string) (string, bool) {
	if name, ok := strings.CutPrefix(data, dataCheckPrefix); ok && name != "" {
		return name, true
	}
	if idx, ok := strings.CutPrefix(data, dataIndexPrefix); ok {
		i, err := strconv.Atoi(idx)
		st := b.op.Status()
		if err != nil || i < 0 || i >= len(st) {
			return "", false
		}
		return st[i].Name, true
	}
	return "", false
}

func (b *Bot) reply(ctx context.Context, log *zap.Logger, to *Message, msg OutgoingMessage) {
	msg.MessageThreadID = to.MessageThreadID
	b.send(ctx, log, to.Chat.ID, msg)
}

func (b *Bot) send(ctx context.Context, log *zap.Logger, chatID int64, msg OutgoingMessage) {
	msg.ChatID = chatID
	if err := b.client.SendMessage(ctx, msg); err != nil {
		log.Warn("bot_reply_failed", zap.Error(err))
	}
}

func (b *Bot) answer(ctx context.Context, log *zap.Logger, q *CallbackQuery, text string) {
	if err := b.client.AnswerCallbackQuery(ctx, q.ID, text); err != nil {
		log.Debug("bot_answer_failed", zap.Error(err))
	}
}

func chatOf(q *CallbackQuery) int64 {
	if q.Message != nil {
		return q.Message.Chat.ID
	}
	// private chats share the user's id
	return q.From.ID
}

// parseCommand splits "/check@my_bot db1" into "/check" and "db1".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd, arg, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func renderStatus(st []domain.MachineStatus, now time.Time) string {
	if len(st) == 0 {
		return "No machines configured."
	}
	var sb strings.Builder
	sb.WriteString("Last observed state:\n")
	for _, s := range st {
		switch {
		case s.State.LastCheckedAt.IsZero():
			fmt.Fprintf(&sb, "⚪ %s: not checked yet", s.Name)
		case s.State.LastKnownUp:
			fmt.Fprintf(&sb, "🟢 %s: up, %s ago", s.Name, since(now, s.State.LastCheckedAt))
		default:
			fmt.Fprintf(&sb, "🔴 %s: down, %s ago", s.Name, since(now, s.State.LastCheckedAt))
		}
		if s.State.LastDetail != "" {
			sb.WriteString(" (" + s.State.LastDetail + ")")
		}
		if s.IP != "" {
			sb.WriteString(" [" + s.IP + "]")
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func since(now, t time.Time) time.Duration {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second)
}
