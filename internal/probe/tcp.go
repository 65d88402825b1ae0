package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

type TCPProber struct {
	Dialer *net.Dialer
}

func NewTCPProber() *TCPProber {
	return &TCPProber{Dialer: &net.Dialer{}}
}

func (p *TCPProber) Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	if ip == "" {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := p.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
