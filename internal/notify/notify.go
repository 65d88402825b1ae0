// Package notify delivers alert text to operators.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Notifier sends one alert. Render title and text however the channel likes;
// text may be empty.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans an alert out to every sink and combines their failures.
// One failing sink never stops the others.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for i, n := range m {
		if n == nil {
			continue
		}
		if e := n.Send(ctx, title, text); e != nil {
			err = multierr.Append(err, fmt.Errorf("sink %d (%T): %w", i, n, e))
		}
	}
	return err
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, title, text string) error

func (f Func) Send(ctx context.Context, title, text string) error {
	return f(ctx, title, text)
}

// Join renders title and text the way chat sinks show them.
func Join(title, text string) string {
	if text == "" {
		return title
	}
	return title + "\n\n" + text
}
