package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/vmwatchdog/internal/domain"
)

type apiClient struct {
	base    string
	key     string
	timeout time.Duration
	http    *http.Client
}

type statusReply struct {
	Line string `json:"line"`
}

func (c *apiClient) machines(ctx context.Context) ([]domain.MachineStatus, error) {
	var out []domain.MachineStatus
	return out, c.do(ctx, http.MethodGet, "/api/machines", &out)
}

func (c *apiClient) check(ctx context.Context, name string) (string, error) {
	var out statusReply
	if err := c.do(ctx, http.MethodPost, "/api/machines/"+url.PathEscape(name)+"/check", &out); err != nil {
		return "", err
	}
	return out.Line, nil
}

func (c *apiClient) checkAll(ctx context.Context) ([]string, error) {
	var out []statusReply
	if err := c.do(ctx, http.MethodPost, "/api/check", &out); err != nil {
		return nil, err
	}
	lines := make([]string, len(out))
	for i, r := range out {
		lines[i] = r.Line
	}
	return lines, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	hc := c.http
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("contact API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("API returned %s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
