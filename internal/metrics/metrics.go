// Package metrics exposes the watchdog's Prometheus counters.
//
// A nil *Metrics is valid and records nothing, so tests and the --once mode
// can skip wiring it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vmwatchdog"

type Metrics struct {
	reg *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	outcomes     *prometheus.CounterVec
	alerts       *prometheus.CounterVec
	configSaves  *prometheus.CounterVec
	machineUp    *prometheus.GaugeVec
}

// New registers every collector on a private registry along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed watchdog ticks.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one pass over every machine.",
			Buckets:   []float64{0.1, 0.5, 1, 3, 5, 10, 30, 60},
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_outcomes_total",
			Help:      "Machine check outcomes by kind (ping, up, down, start_triggered).",
		}, []string{"kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts by kind and delivery result.",
		}, []string{"kind", "result"}),
		configSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_saves_total",
			Help:      "Config rewrites after IP discovery by result.",
		}, []string{"result"}),
		machineUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "machine_up",
			Help:      "1 if the machine was reachable on its last check.",
		}, []string{"machine"}),
	}
	m.reg.MustRegister(
		m.ticks, m.tickDuration, m.outcomes, m.alerts, m.configSaves, m.machineUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAlert(kind string, delivered bool) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind, result(delivered)).Inc()
}

func (m *Metrics) ObserveConfigSave(ok bool) {
	if m == nil {
		return
	}
	m.configSaves.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetMachineUp(name string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.machineUp.WithLabelValues(name).Set(v)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
