package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
)

const (
	DefaultCheckInterval = 60 * time.Second
	DefaultVMsConfig     = "vms.yaml"
	DefaultLogDir        = "logs"
	DefaultNATSSubject   = "vmwatchdog.alerts"
)

type Config struct {
	BotToken      string        // Telegram bot token
	AdminID       int64         // the only Telegram user the bot answers
	GroupChatID   int64         // alert destination, defaults to AdminID
	TopicID       int           // forum topic for alerts, 0 for none
	CheckInterval time.Duration // pause between ticks
	VMsConfig     string        // YAML file with the vms list
	LogDir        string        // logs directory
	LogLevel      string

	APIAddr      string   // admin HTTP API bind address, empty disables it
	AdminAPIKeys []string // keys accepted by /api/*, empty means open

	SlackWebhookURL string
	NATSURL         string
	NATSSubject     string
}

// Load reads the environment, applies defaults and reports every invalid
// or missing variable at once.
func Load() (Config, error) {
	cfg := Config{
		BotToken:        strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		CheckInterval:   DefaultCheckInterval,
		VMsConfig:       envOr("VMS_CONFIG", DefaultVMsConfig),
		LogDir:          envOr("LOG_DIR", DefaultLogDir),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		APIAddr:         strings.TrimSpace(os.Getenv("API_ADDR")),
		AdminAPIKeys:    splitList(os.Getenv("ADMIN_API_KEYS")),
		SlackWebhookURL: strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL")),
		NATSURL:         strings.TrimSpace(os.Getenv("NATS_URL")),
		NATSSubject:     envOr("NATS_SUBJECT", DefaultNATSSubject),
	}

	var errs error
	if cfg.BotToken == "" {
		errs = multierr.Append(errs, fmt.Errorf("BOT_TOKEN is required"))
	}

	switch v := strings.TrimSpace(os.Getenv("ADMIN_ID")); {
	case v == "":
		errs = multierr.Append(errs, fmt.Errorf("ADMIN_ID is required"))
	default:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ADMIN_ID %q is not an integer", v))
		}
		cfg.AdminID = id
	}

	cfg.GroupChatID = cfg.AdminID
	if v := strings.TrimSpace(os.Getenv("GROUP_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("GROUP_CHAT_ID %q is not an integer", v))
		} else {
			cfg.GroupChatID = id
		}
	}

	if v := strings.TrimSpace(os.Getenv("TOPIC_ID")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = multierr.Append(errs, fmt.Errorf("TOPIC_ID %q is not a thread id", v))
		} else {
			cfg.TopicID = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("CHECK_INTERVAL")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("CHECK_INTERVAL %q must be a positive number of seconds", v))
		} else {
			cfg.CheckInterval = time.Duration(secs) * time.Second
		}
	}

	if errs != nil {
		return cfg, wderr.NewConfigError("invalid environment", errs)
	}
	return cfg, nil
}

// APIUnauthenticated reports whether the admin API is enabled with no keys,
// which leaves every /api route open.
func (c Config) APIUnauthenticated() bool {
	return c.APIAddr != "" && len(c.AdminAPIKeys) == 0
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
