package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hamed0406/vmwatchdog/internal/notify"
)

// Notifier posts alerts to a chat, optionally inside a forum topic.
type Notifier struct {
	Client  *Client
	ChatID  int64
	TopicID int
}

func NewNotifier(c *Client, chatID int64, topicID int) *Notifier {
	return &Notifier{Client: c, ChatID: chatID, TopicID: topicID}
}

// Send uses Markdown so machine names render bold. If Telegram rejects the
// markup (a detail with a stray '_' or '*'), the alert is re-sent as plain text.
func (n *Notifier) Send(ctx context.Context, title, text string) error {
	msg := OutgoingMessage{
		ChatID:          n.ChatID,
		Text:            notify.Join(title, text),
		ParseMode:       "Markdown",
		MessageThreadID: n.TopicID,
	}
	err := n.Client.SendMessage(ctx, msg)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Description, "can't parse entities") {
		msg.ParseMode = ""
		return n.Client.SendMessage(ctx, msg)
	}
	return err
}
