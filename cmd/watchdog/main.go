package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/config"
	"github.com/hamed0406/vmwatchdog/internal/gateway"
	"github.com/hamed0406/vmwatchdog/internal/httpapi"
	"github.com/hamed0406/vmwatchdog/internal/logging"
	"github.com/hamed0406/vmwatchdog/internal/metrics"
	"github.com/hamed0406/vmwatchdog/internal/notify"
	"github.com/hamed0406/vmwatchdog/internal/probe"
	"github.com/hamed0406/vmwatchdog/internal/registry"
	"github.com/hamed0406/vmwatchdog/internal/repo"
	"github.com/hamed0406/vmwatchdog/internal/repo/memory"
	"github.com/hamed0406/vmwatchdog/internal/repo/yamlfile"
	"github.com/hamed0406/vmwatchdog/internal/telegram"
	"github.com/hamed0406/vmwatchdog/internal/watchdog"
)

const shutdownWait = 10 * time.Second

type flagOptions struct {
	Config  string `long:"config" description:"path to the vms YAML file (overrides VMS_CONFIG)"`
	LogDir  string `long:"log-dir" description:"log directory (overrides LOG_DIR)"`
	EnvFile string `long:"env-file" default:".env" description:"dotenv file loaded before reading the environment"`
	Once    bool   `long:"once" description:"run a single check pass and exit"`
	NoSave  bool   `long:"no-save" description:"keep discovered IPs in memory instead of rewriting the config file"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(err)
			return 0
		}
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		return 1
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", opts.EnvFile, err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if opts.Config != "" {
		cfg.VMsConfig = opts.Config
	}
	if opts.LogDir != "" {
		cfg.LogDir = opts.LogDir
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := yamlfile.New(cfg.VMsConfig, logger)
	machines, err := store.Load(ctx)
	if err != nil {
		logger.Error("config_load_failed", zap.Error(err))
		return 1
	}
	reg := registry.New(machines)
	logger.Info("config_loaded", zap.String("path", store.Path()), zap.Int("machines", reg.Len()))

	var saver repo.MachineStore = store
	if opts.NoSave {
		saver = memory.New(machines...)
		logger.Info("config_writes_disabled")
	}

	tg := telegram.NewClient(cfg.BotToken)
	sinks := notify.Multi{telegram.NewNotifier(tg, cfg.GroupChatID, cfg.TopicID)}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		sinks = append(sinks, s)
	}
	if cfg.NATSURL != "" {
		nc, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("nats_unavailable", zap.String("url", cfg.NATSURL), zap.Error(err))
		} else {
			defer nc.Close()
			sinks = append(sinks, nc)
		}
	}

	alerts := notify.NewQueue(sinks, notify.DefaultQueueSize, 1, notify.DefaultSendTimeout, logger)
	drainAlerts := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := alerts.Close(drainCtx); err != nil {
			logger.Warn("alert_queue_drain_incomplete", zap.Int("pending", alerts.Len()), zap.Error(err))
		}
	}

	met := metrics.New()
	wd := watchdog.New(logger, reg, saver, probe.NewTCPProber(), gateway.NewClient(), alerts, watchdog.Config{
		Interval:     cfg.CheckInterval,
		ExtraAttempt: true,
	})
	wd.Metrics = met

	if opts.Once {
		rep := wd.RunOnce(ctx)
		logger.Info("single_pass_done",
			zap.String("tick_id", rep.ID),
			zap.Int("checked", rep.Checked),
			zap.Int("alerts", rep.Alerts),
			zap.Bool("saved", rep.Saved),
		)
		drainAlerts()
		return 0
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		wd.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		telegram.NewBot(tg, wd, cfg.AdminID, logger).Run(ctx)
	}()

	var srv *http.Server
	if cfg.APIAddr != "" {
		if cfg.APIUnauthenticated() {
			logger.Warn("api_open_without_keys",
				zap.String("addr", cfg.APIAddr),
				zap.String("hint", "set ADMIN_API_KEYS to require X-API-Key on /api"),
			)
		}
		api := httpapi.NewServer(logger, wd, met.Handler())
		srv = &http.Server{
			Addr:              cfg.APIAddr,
			Handler:           api.Router(cfg.AdminAPIKeys, 60, 20),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("api_listen", zap.String("addr", cfg.APIAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api_listen_failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown_requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api_shutdown_error", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown_timeout", zap.Duration("waited", shutdownWait))
	}
	drainAlerts()
	logger.Info("shutdown_complete")
	return 0
}
