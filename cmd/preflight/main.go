// cmd/preflight/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/config"
	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
	"github.com/hamed0406/vmwatchdog/internal/repo/yamlfile"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	if err := godotenv.Load(); err == nil {
		ok(".env loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		var de *wderr.DomainError
		if errors.As(err, &de) && de.Cause != nil {
			for _, e := range multierr.Errors(de.Cause) {
				fmt.Fprintln(os.Stderr, "✖", e)
			}
			os.Exit(1)
		}
		fail(err.Error())
	}
	ok(fmt.Sprintf("operator ADMIN_ID=%d, alerts to chat %d", cfg.AdminID, cfg.GroupChatID))
	if cfg.TopicID != 0 {
		ok(fmt.Sprintf("alerts go to topic %d", cfg.TopicID))
	}
	ok("CHECK_INTERVAL=" + cfg.CheckInterval.String())

	if _, err := os.Stat(cfg.VMsConfig); err != nil {
		warn(cfg.VMsConfig + " not readable; the watchdog will start with no machines: " + err.Error())
	} else {
		machines, _ := yamlfile.New(cfg.VMsConfig, zap.NewNop()).Load(context.Background())
		if len(machines) == 0 {
			warn(cfg.VMsConfig + " has no usable vms entries")
		} else {
			ok(fmt.Sprintf("%s: %d machines", cfg.VMsConfig, len(machines)))
		}
	}

	if cfg.APIAddr == "" {
		warn("API_ADDR is empty; the admin HTTP API is disabled.")
	} else {
		ok("API_ADDR=" + cfg.APIAddr)
		if len(cfg.AdminAPIKeys) == 0 {
			warn("ADMIN_API_KEYS is empty; /api routes are open to anyone who can reach API_ADDR.")
		}
	}
	if v := os.Getenv("ADMIN_API_KEYS"); strings.Contains(v, " ") {
		warn("ADMIN_API_KEYS contains spaces; use comma-separated with no spaces, e.g. key1,key2")
	}

	if cfg.SlackWebhookURL != "" {
		ok("Slack alerts enabled")
	}
	if cfg.NATSURL != "" {
		ok("NATS alerts on " + cfg.NATSSubject)
	}

	ok("preflight passed")
}
