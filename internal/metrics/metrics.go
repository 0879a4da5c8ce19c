package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "room_relay"

// Drop reasons for inbound messages that never reach a room.
const (
	DropReasonMalformed   = "malformed"
	DropReasonMissingRoom = "missing_room"
	DropReasonRateLimited = "rate_limited"
	DropReasonUnknownPeer = "unknown_peer"
)

// Send failure reasons for outbound messages that were not queued.
const (
	SendFailurePeerClosed = "peer_closed"
	SendFailureQueueFull  = "queue_full"
	SendFailureOther      = "other"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
//
// All methods are safe to call on a nil *Metrics so components can be
// constructed without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	roomsActive       prometheus.Gauge

	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	sendFailures     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently open signaling connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Signaling connections accepted since start.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one member.",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages accepted into a room, by message kind.",
		}, []string{"kind"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages discarded before reaching a room, by reason.",
		}, []string{"reason"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages queued to peers, by path (fanout, replay, disconnect).",
		}, []string{"path"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages skipped because the peer could not take them, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.roomsActive,
		m.messagesReceived,
		m.messagesDropped,
		m.messagesSent,
		m.sendFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (tests, additional collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.roomsActive.Set(float64(n))
}

func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageSent(path string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(path).Inc()
}

func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in Prometheus' exposition format.
func Handler(m *Metrics) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
