// internal/probe/retry.go
package probe

import (
	"context"
	"time"
)

// RetryProber re-runs Inner up to Attempts times, stopping at the first success.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if r.Inner.Probe(ctx, ip, port, timeout) {
			return true
		}
		if i == attempts-1 || ctx.Err() != nil {
			break
		}
		if r.Backoff > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.Backoff):
			}
		}
	}
	return false
}
