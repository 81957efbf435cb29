// Package metrics exports relay sequencer activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ssrpwm/core"
	"ssrpwm/protocol"
)

// Metrics is a core.Observer that records into its own registry
type Metrics struct {
	registry *prometheus.Registry

	rejected     *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	pwmRunning   *prometheus.GaugeVec
	patterns     prometheus.Gauge
	lineFailures *prometheus.CounterVec
}

// New creates the metric set and registers it, with Go runtime and
// process collectors, on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ssrpwm",
			Name:      "commands_rejected_total",
			Help:      "Commands dropped without effect",
		}, []string{"command", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ssrpwm",
			Name:      "relay_transitions_total",
			Help:      "Relay state changes",
		}, []string{"relay", "state"}),
		pwmRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ssrpwm",
			Name:      "pwm_running",
			Help:      "1 while the relay is inside an active PWM cycle",
		}, []string{"relay"}),
		patterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ssrpwm",
			Name:      "patterns_active",
			Help:      "Occupied pattern slots",
		}),
		lineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ssrpwm",
			Name:      "lines_failed_total",
			Help:      "Command lines that could not be parsed or dispatched",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.rejected,
		m.transitions,
		m.pwmRunning,
		m.patterns,
		m.lineFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every metric
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InitRelays publishes a zero for every relay so series exist before the
// first transition
func (m *Metrics) InitRelays(count int) {
	for relay := 0; relay < count; relay++ {
		label := strconv.Itoa(relay)
		m.pwmRunning.WithLabelValues(label).Set(0)
		m.transitions.WithLabelValues(label, "open")
		m.transitions.WithLabelValues(label, "closed")
	}
}

func (m *Metrics) RelayChanged(relay int, status core.RelayStatus) {
	m.transitions.WithLabelValues(strconv.Itoa(relay), RelayStateName(status)).Inc()
}

func (m *Metrics) PwmStatusChanged(relay int, status core.PwmStatus) {
	m.pwmRunning.WithLabelValues(strconv.Itoa(relay)).Set(float64(status))
}

func (m *Metrics) PatternsChanged(active int) {
	m.patterns.Set(float64(active))
}

func (m *Metrics) CommandRejected(command string, relay int, err error) {
	m.rejected.WithLabelValues(command, Reason(err)).Inc()
}

// LineFailed counts a line the transport could not handle. Sequencer
// rejections are counted separately by CommandRejected.
func (m *Metrics) LineFailed(_ string, err error) {
	m.lineFailures.WithLabelValues(Reason(err)).Inc()
}

// RelayStateName is the label value for a relay state
func RelayStateName(status core.RelayStatus) string {
	if status == core.RelayClosed {
		return "closed"
	}
	return "open"
}

// Reason maps a rejection error to a bounded label value
func Reason(err error) string {
	switch {
	case errors.Is(err, core.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, core.ErrUnsupportedRelay):
		return "unsupported_relay"
	case errors.Is(err, core.ErrInvalidRelay):
		return "invalid_relay"
	case errors.Is(err, core.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, protocol.ErrMissingArg), errors.Is(err, protocol.ErrBadArg):
		return "bad_args"
	default:
		return "parse"
	}
}
