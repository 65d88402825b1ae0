package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
)

const (
	StartTimeout = 10 * time.Second
	InfoTimeout  = 5 * time.Second

	// codeAlreadyRunning is what the gateway returns (with a non-200 status)
	// when a start is requested for a machine that is already running.
	codeAlreadyRunning = 9

	maxBodyBytes   = 64 << 10
	maxRawDetail   = 100
	maxMessageSize = 200
)

// Client talks to the per-machine serverless gateway.
type Client struct {
	HTTP         *http.Client
	Limiter      *rate.Limiter
	StartTimeout time.Duration
	InfoTimeout  time.Duration
}

func NewClient() *Client {
	return &Client{
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// 10 requests per second with burst of 20
		Limiter:      rate.NewLimiter(rate.Limit(10), 20),
		StartTimeout: StartTimeout,
		InfoTimeout:  InfoTimeout,
	}
}

// startReply is the body of POST /start. Every field is optional and read
// on its own, so a field of an unexpected type is ignored rather than
// failing the whole reply.
type startReply struct {
	code    *float64
	message string
	ip      string
}

func parseStartReply(body []byte) (startReply, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return startReply{}, err
	}
	var r startReply
	if v, ok := raw["code"]; ok {
		var n float64
		if json.Unmarshal(v, &n) == nil {
			r.code = &n
		}
	}
	if v, ok := raw["message"]; ok {
		var m string
		switch {
		case json.Unmarshal(v, &m) == nil:
			r.message = m
		case string(v) != "null":
			r.message = string(v)
		}
	}
	if v, ok := raw["ip"]; ok {
		var ip string
		if json.Unmarshal(v, &ip) == nil {
			r.ip = strings.TrimSpace(ip)
		}
	}
	return r, nil
}

func (r startReply) alreadyRunning() bool {
	return r.code != nil && *r.code == codeAlreadyRunning && strings.Contains(r.message, "RUNNING")
}

// RequestStart asks the gateway to start the machine and classifies the answer.
// It never returns an error: transport and protocol failures become Down.
func (c *Client) RequestStart(ctx context.Context, baseURL string) domain.ProbeOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.startTimeout())
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, endpoint(baseURL, "start"))
	if err != nil {
		return domain.Down(fmt.Sprintf("network error: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Down(fmt.Sprintf("network error: %v", err))
	}

	// 200 means the machine was off and is now starting. The body has no
	// contract, but an ip is picked up when one is present.
	if resp.StatusCode == http.StatusOK {
		r, _ := parseStartReply(body)
		return domain.StartTriggered("", r.ip)
	}

	r, err := parseStartReply(body)
	if err != nil {
		return domain.Down("gateway error: " + truncate(string(body), maxRawDetail))
	}
	if r.alreadyRunning() {
		out := domain.Up("")
		out.DiscoveredIP = r.ip
		return out
	}
	return domain.Down(fmt.Sprintf("API error (%d): %s", resp.StatusCode, truncate(r.message, maxMessageSize)))
}

type infoReply struct {
	NetworkInterfaces []struct {
		PrimaryV4Address *struct {
			Address     string `json:"address"`
			OneToOneNat *struct {
				Address string `json:"address"`
			} `json:"oneToOneNat"`
		} `json:"primaryV4Address"`
	} `json:"networkInterfaces"`
}

// FetchIP reads the machine's primary IPv4 address from GET /info, preferring
// the public one-to-one NAT address over the internal one.
func (c *Client) FetchIP(ctx context.Context, baseURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.infoTimeout())
	defer cancel()

	url := endpoint(baseURL, "info")
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return "", wderr.NewTransportError("get info", err).WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", wderr.NewProtocolError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).WithContext("url", url)
	}

	var info infoReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&info); err != nil {
		return "", wderr.NewProtocolError("decode info", err).WithContext("url", url)
	}
	if len(info.NetworkInterfaces) == 0 || info.NetworkInterfaces[0].PrimaryV4Address == nil {
		return "", wderr.NewProtocolError("no primary v4 address", nil).WithContext("url", url)
	}
	addr := info.NetworkInterfaces[0].PrimaryV4Address
	if addr.OneToOneNat != nil && addr.OneToOneNat.Address != "" {
		return addr.OneToOneNat.Address, nil
	}
	if addr.Address != "" {
		return addr.Address, nil
	}
	return "", wderr.NewProtocolError("empty primary v4 address", nil).WithContext("url", url)
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	return hc.Do(req)
}

func (c *Client) startTimeout() time.Duration {
	if c.StartTimeout > 0 {
		return c.StartTimeout
	}
	return StartTimeout
}

func (c *Client) infoTimeout() time.Duration {
	if c.InfoTimeout > 0 {
		return c.InfoTimeout
	}
	return InfoTimeout
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + path
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
