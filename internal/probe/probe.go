package probe

import (
	"context"
	"time"
)

// DefaultPort is the port the watchdog connects to when checking a known IP.
const DefaultPort = 22

// DefaultTimeout bounds a single reachability probe.
const DefaultTimeout = 3 * time.Second

// Prober reports whether ip:port accepts a TCP connection within timeout.
// Implementations never return an error; every failure mode means "down".
type Prober interface {
	Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(ctx context.Context, ip string, port int, timeout time.Duration) bool

func (f ProberFunc) Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	return f(ctx, ip, port, timeout)
}
