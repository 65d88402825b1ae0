// Package watchdog runs the reconciliation loop: probe every machine, start
// the ones that are down, alert on transitions and persist discovered IPs.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
	"github.com/hamed0406/vmwatchdog/internal/metrics"
	"github.com/hamed0406/vmwatchdog/internal/notify"
	"github.com/hamed0406/vmwatchdog/internal/probe"
	"github.com/hamed0406/vmwatchdog/internal/registry"
	"github.com/hamed0406/vmwatchdog/internal/repo"
)

const DefaultInterval = 60 * time.Second

// Gateway is the part of the serverless gateway client the loop needs.
type Gateway interface {
	RequestStart(ctx context.Context, baseURL string) domain.ProbeOutcome
	FetchIP(ctx context.Context, baseURL string) (string, error)
}

type Config struct {
	Interval     time.Duration
	ProbePort    int
	ProbeTimeout time.Duration
	// ExtraAttempt re-probes once right away when a machine that was up
	// fails its ping, before falling back to the gateway.
	ExtraAttempt bool
}

type Watchdog struct {
	Logger   *zap.Logger
	Registry *registry.Registry
	Store    repo.MachineStore
	Prober   probe.Prober
	Gateway  Gateway
	Notifier notify.Notifier
	Metrics  *metrics.Metrics

	cfg Config
}

func New(
	logger *zap.Logger,
	reg *registry.Registry,
	store repo.MachineStore,
	prober probe.Prober,
	gw Gateway,
	notifier notify.Notifier,
	cfg Config,
) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ProbePort == 0 {
		cfg.ProbePort = probe.DefaultPort
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = probe.DefaultTimeout
	}
	return &Watchdog{
		Logger:   logger,
		Registry: reg,
		Store:    store,
		Prober:   prober,
		Gateway:  gw,
		Notifier: notifier,
		cfg:      cfg,
	}
}

// TickReport summarizes one pass over the machines.
type TickReport struct {
	ID        string
	Checked   int
	Panicked  int
	Alerts    int
	IPChanged bool
	Saved     bool
	Aborted   bool
}

// Run does an immediate pass, then one per interval. Stops when ctx is
// cancelled, including in the middle of a tick between two machines.
func (w *Watchdog) Run(ctx context.Context) {
	if w.Registry.Len() == 0 {
		w.Logger.Warn("watchdog_no_machines")
		return
	}
	w.Logger.Info("watchdog_started",
		zap.Int("machines", w.Registry.Len()),
		zap.Duration("interval", w.cfg.Interval),
	)

	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("watchdog_stopped")
			return
		case <-t.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce checks every machine in configuration order and saves the config
// once if any IP changed.
func (w *Watchdog) RunOnce(ctx context.Context) (rep TickReport) {
	rep.ID = uuid.NewString()
	log := w.Logger.With(zap.String("tick_id", rep.ID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("watchdog_tick_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
		w.Metrics.ObserveTick(time.Since(start))
		log.Debug("watchdog_tick",
			zap.Int("checked", rep.Checked),
			zap.Int("alerts", rep.Alerts),
			zap.Bool("saved", rep.Saved),
			zap.Duration("took", time.Since(start)),
		)
	}()

	for _, m := range w.Registry.Machines() {
		if ctx.Err() != nil {
			rep.Aborted = true
			log.Info("watchdog_tick_aborted", zap.Int("checked", rep.Checked))
			break
		}
		res := w.safeCheck(ctx, log, m)
		rep.Checked++
		rep.Alerts += res.alerts
		rep.IPChanged = rep.IPChanged || res.ipChanged
		if res.panicked {
			rep.Panicked++
		}
	}

	if rep.IPChanged {
		// a shutdown mid-tick must not lose an IP that was already discovered
		rep.Saved = w.persist(context.WithoutCancel(ctx), log)
	}
	return rep
}

type machineResult struct {
	alerts    int
	ipChanged bool
	panicked  bool
}

func (w *Watchdog) safeCheck(ctx context.Context, log *zap.Logger, m domain.Machine) (res machineResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("machine_check_panic",
				zap.String("machine", m.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res.panicked = true
		}
	}()
	w.checkMachine(ctx, log.With(zap.String("machine", m.Name)), m, &res)
	return res
}

func (w *Watchdog) checkMachine(ctx context.Context, log *zap.Logger, m domain.Machine, res *machineResult) {
	wasUp := w.Registry.State(m.Name).LastKnownUp

	var nowUp bool
	var detail, state string

	if m.IP != "" && w.ping(ctx, m.IP, wasUp) {
		w.Metrics.ObserveOutcome("ping")
		nowUp = true
		state = "ping OK"
		if !wasUp {
			detail = fmt.Sprintf(detailPingOK, m.IP)
		}
	} else {
		if m.IP != "" {
			log.Debug("machine_ping_failed", zap.String("ip", m.IP))
		}
		out := w.Gateway.RequestStart(ctx, m.URL)
		w.Metrics.ObserveOutcome(out.Kind.String())
		w.backfillIP(ctx, log, m, out, res)

		switch out.Kind {
		case domain.OutcomeStartTriggered:
			log.Info("machine_autostart", zap.Bool("was_up", wasUp))
			w.alert(ctx, log, res, AlertAutostart, autostartTitle(m.Name), out.Detail)
			w.Registry.MarkStarting(m.Name, "start requested")
			w.Metrics.SetMachineUp(m.Name, false)
			return
		case domain.OutcomeUp:
			nowUp = true
			state = "API: running"
			if !wasUp {
				detail = detailAPIRunning
			}
		default:
			detail = out.Detail
			state = out.Detail
		}
	}

	tr := w.Registry.Transition(m.Name, nowUp, state)
	w.Metrics.SetMachineUp(m.Name, nowUp)

	switch tr {
	case domain.Recovered:
		log.Info("machine_recovered", zap.String("detail", detail))
		w.alert(ctx, log, res, AlertRecovery, recoveryTitle(m.Name), detail)
	case domain.Failed:
		log.Error("machine_failed", zap.String("detail", detail))
		w.alert(ctx, log, res, AlertFailure, failureTitle(m.Name), detail)
	default:
		if !nowUp {
			log.Debug("machine_still_down", zap.String("detail", detail))
		}
	}
}

func (w *Watchdog) ping(ctx context.Context, ip string, wasUp bool) bool {
	var p probe.Prober = w.Prober
	if w.cfg.ExtraAttempt && wasUp {
		p = &probe.RetryProber{Inner: w.Prober, Attempts: 2}
	}
	return p.Probe(ctx, ip, w.cfg.ProbePort, w.cfg.ProbeTimeout)
}

// backfillIP records an IP learned from the gateway. /info is only asked
// when the start reply carried none and no IP is known yet.
func (w *Watchdog) backfillIP(ctx context.Context, log *zap.Logger, m domain.Machine, out domain.ProbeOutcome, res *machineResult) {
	ip := out.DiscoveredIP
	if ip == "" && m.IP == "" && out.Succeeded() {
		fetched, err := w.Gateway.FetchIP(ctx, m.URL)
		if err != nil {
			log.Warn("machine_ip_lookup_failed", errFields(err)...)
			return
		}
		ip = fetched
	}
	if w.Registry.RecordIP(m.Name, ip) {
		res.ipChanged = true
		log.Info("machine_ip_discovered", zap.String("old_ip", m.IP), zap.String("ip", ip))
	}
}

func (w *Watchdog) alert(ctx context.Context, log *zap.Logger, res *machineResult, kind, title, text string) {
	if w.Notifier == nil {
		return
	}
	res.alerts++
	if err := w.Notifier.Send(ctx, title, text); err != nil {
		log.Error("alert_delivery_failed",
			zap.String("kind", kind),
			zap.Error(wderr.NewDeliveryError("send "+kind+" alert", err)),
		)
		w.Metrics.ObserveAlert(kind, false)
		return
	}
	w.Metrics.ObserveAlert(kind, true)
}

func (w *Watchdog) persist(ctx context.Context, log *zap.Logger) bool {
	if w.Store == nil {
		return false
	}
	if err := w.Store.Save(ctx, w.Registry.Machines()); err != nil {
		if wderr.TypeOf(err) == "" {
			err = wderr.NewPersistenceError("save config", err)
		}
		log.Error("config_save_failed", errFields(err)...)
		w.Metrics.ObserveConfigSave(false)
		return false
	}
	log.Info("config_saved", zap.Int("machines", w.Registry.Len()))
	w.Metrics.ObserveConfigSave(true)
	return true
}

// errFields logs err together with the context entries of its DomainError,
// which Error() leaves out.
func errFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var de *wderr.DomainError
	if !errors.As(err, &de) || len(de.Context) == 0 {
		return fields
	}
	keys := make([]string, 0, len(de.Context))
	for k := range de.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, de.Context[k]))
	}
	return fields
}
