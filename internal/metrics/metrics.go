// Package metrics exposes signaling activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/meet-signaling/internal/signaling"
)

const namespace = "signaling"

// Metrics is a signaling.Observer backed by its own registry.
type Metrics struct {
	reg *prometheus.Registry

	roomsActive    prometheus.Gauge
	peersConnected prometheus.Gauge
	evictions      *prometheus.CounterVec
	messages       *prometheus.CounterVec
	relayDropped   *prometheus.CounterVec
}

// New registers the signaling collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one connected peer.",
		}),
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_connected",
			Help:      "Peers currently registered in a room.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Peers removed from rooms, by reason.",
		}, []string{"reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound frames handled, by message type.",
		}, []string{"type"}),
		relayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Relay frames not delivered to their target, by message type.",
		}, []string{"type"}),
	}
	m.reg.MustRegister(
		m.roomsActive,
		m.peersConnected,
		m.evictions,
		m.messages,
		m.relayDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// PeerJoined counts the peer and, for a new room, the room.
func (m *Metrics) PeerJoined(_ context.Context, _, _ string, roomCreated bool) {
	m.peersConnected.Inc()
	if roomCreated {
		m.roomsActive.Inc()
	}
}

// PeerLeft records the eviction by reason.
func (m *Metrics) PeerLeft(_ context.Context, _, _ string, reason signaling.EvictReason, roomClosed bool) {
	m.peersConnected.Dec()
	m.evictions.WithLabelValues(string(reason)).Inc()
	if roomClosed {
		m.roomsActive.Dec()
	}
}

// MessageRouted counts an inbound frame by type.
func (m *Metrics) MessageRouted(msgType string) {
	m.messages.WithLabelValues(msgType).Inc()
}

// RelayDropped counts a relay that reached no target.
func (m *Metrics) RelayDropped(msgType string) {
	m.relayDropped.WithLabelValues(msgType).Inc()
}
