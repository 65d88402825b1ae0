package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

// fakeGateway replays queued outcomes per base URL; the last one repeats.
type fakeGateway struct {
	mu       sync.Mutex
	starts   map[string][]domain.ProbeOutcome
	ips      map[string]string
	ipErr    error
	panicOn  string
	startLog []string
	infoLog  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{starts: map[string][]domain.ProbeOutcome{}, ips: map[string]string{}}
}

func (g *fakeGateway) on(url string, outs ...domain.ProbeOutcome) *fakeGateway {
	g.starts[url] = outs
	return g
}

func (g *fakeGateway) RequestStart(_ context.Context, url string) domain.ProbeOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	if url == g.panicOn {
		panic("gateway exploded for " + url)
	}
	g.startLog = append(g.startLog, url)
	q := g.starts[url]
	if len(q) == 0 {
		return domain.Down("network error: no route")
	}
	out := q[0]
	if len(q) > 1 {
		g.starts[url] = q[1:]
	}
	return out
}

func (g *fakeGateway) FetchIP(_ context.Context, url string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.infoLog = append(g.infoLog, url)
	if g.ipErr != nil {
		return "", g.ipErr
	}
	return g.ips[url], nil
}

func (g *fakeGateway) startCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.startLog...)
}

func (g *fakeGateway) infos() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.infoLog...)
}

// fakeProber answers per IP and counts attempts.
type fakeProber struct {
	mu    sync.Mutex
	up    map[string]bool
	calls map[string]int
}

func newFakeProber(up map[string]bool) *fakeProber {
	return &fakeProber{up: up, calls: map[string]int{}}
}

func (p *fakeProber) Probe(_ context.Context, ip string, _ int, _ time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[ip]++
	return p.up[ip]
}

func (p *fakeProber) set(ip string, up bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.up[ip] = up
}

func (p *fakeProber) count(ip string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ip]
}

type sentAlert struct {
	Title, Text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, title, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentAlert{title, text})
	return n.err
}

func (n *fakeNotifier) alerts() []sentAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentAlert(nil), n.sent...)
}
