package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS publishes every alert as a JSON event on one subject, for whatever
// downstream tooling wants to consume them.
type NATS struct {
	nc      *nats.Conn
	subject string
}

type natsEvent struct {
	Title  string    `json:"title"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

func NewNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("vmwatchdog"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{nc: nc, subject: subject}, nil
}

func (n *NATS) Send(ctx context.Context, title, text string) error {
	if n == nil || n.nc == nil || n.nc.IsClosed() {
		return errors.New("nats not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(natsEvent{Title: title, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, b)
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() {
	if n == nil || n.nc == nil {
		return
	}
	_ = n.nc.Drain()
	n.nc.Close()
}
