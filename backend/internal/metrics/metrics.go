// Package metrics exposes ingestion counters and link gauges for Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mimamori"

// Channel labels for received messages.
const (
	ChannelData    = "data"
	ChannelControl = "control"
	ChannelOther   = "other"
)

// Drop reasons.
const (
	DropUnrecognized = "unrecognized"
	DropQueueFull    = "queue_full"
	DropLagging      = "subscriber_lagging"
	DropNotConnected = "not_connected"
)

// History write results.
const (
	WriteOK     = "ok"
	WriteFailed = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesReceived  *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	readingsAccepted  prometheus.Counter
	historyWrites     *prometheus.CounterVec
	commandsPublished *prometheus.CounterVec
	connectivity      prometheus.Gauge
	reachable         prometheus.Gauge
	lastReading       prometheus.Gauge
}

// New builds a Metrics with its own registry, including Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Broker messages received, by channel.",
		}, []string{"channel"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages or writes discarded, by reason.",
		}, []string{"reason"}),
		readingsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_accepted_total",
			Help:      "Readings that became the current reading.",
		}),
		historyWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History store writes, by result.",
		}, []string{"result"}),
		commandsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_published_total",
			Help:      "Fan commands handed to the broker session, by command.",
		}, []string{"command"}),
		connectivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connectivity_state",
			Help:      "Broker link state (0 disconnected, 1 connecting, 2 connected).",
		}),
		reachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_reachable",
			Help:      "1 when the device is connected and recently heard from.",
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_reading_timestamp_seconds",
			Help:      "Device timestamp of the current reading.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesReceived,
		m.messagesDropped,
		m.readingsAccepted,
		m.historyWrites,
		m.commandsPublished,
		m.connectivity,
		m.reachable,
		m.lastReading,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) MessageReceived(channel string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(channel).Inc()
}

func (m *Metrics) MessageDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) ReadingAccepted(deviceTime time.Time) {
	if m == nil {
		return
	}
	m.readingsAccepted.Inc()
	m.lastReading.Set(float64(deviceTime.UnixMilli()) / 1000)
}

func (m *Metrics) HistoryWrite(result string) {
	if m == nil {
		return
	}
	m.historyWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) CommandPublished(command string) {
	if m == nil {
		return
	}
	m.commandsPublished.WithLabelValues(command).Inc()
}

// SetConnectivity records a broker link state given as its numeric value.
func (m *Metrics) SetConnectivity(state int) {
	if m == nil {
		return
	}
	m.connectivity.Set(float64(state))
}

func (m *Metrics) SetReachable(ok bool) {
	if m == nil {
		return
	}

	if ok {
		m.reachable.Set(1)
		return
	}
	m.reachable.Set(0)
}
