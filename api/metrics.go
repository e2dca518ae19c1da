// Package api provides Prometheus metrics and the HTTP status endpoints of the relay hub.
package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// resolution outcomes
const (
	OutcomeComplete      = "complete"
	OutcomeTimeout       = "timeout"
	OutcomeAlone         = "alone"
	OutcomeRequesterLeft = "requester_left"
)

// drop reasons
const (
	DropMalformed   = "malformed"
	DropUnknownType = "unknown_type"
	DropRateLimited = "rate_limited"
)

// Metrics holds all Prometheus metrics for the hub.
type Metrics struct {
	registry *prometheus.Registry

	// Message metrics
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	MessagesRelayed  prometheus.Counter
	SendFailures     prometheus.Counter

	// Chain query metrics
	ChainRequests     prometheus.Counter
	DuplicateRequests prometheus.Counter
	ChainResolutions  *prometheus.CounterVec
	ResolutionLatency prometheus.Histogram

	// System metrics
	LivePeers       prometheus.Gauge
	PendingRequests prometheus.Gauge

	// gRPC metrics
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with the given namespace,
// registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total messages received from peers by kind",
		}, []string{"kind"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total inbound messages dropped by reason",
		}, []string{"reason"}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Total messages forwarded to peers",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total direct sends that failed",
		}),

		ChainRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_requests_total",
			Help:      "Total longest chain requests accepted",
		}),
		DuplicateRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_requests_duplicate_total",
			Help:      "Total longest chain requests rejected for a correlation id already pending",
		}),
		ChainResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_resolutions_total",
			Help:      "Total longest chain requests answered by outcome",
		}, []string{"outcome"}),
		ResolutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_resolution_latency_seconds",
			Help:      "Time from fan-out to answer in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		LivePeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_peers",
			Help:      "Current number of connected peers",
		}),
		PendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Current number of longest chain requests awaiting replies",
		}),

		GRPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests by method and status",
		}, []string{"method", "status"}),
		GRPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReceived records an inbound message of the given kind.
func (m *Metrics) RecordReceived(kind string) {
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// RecordDropped records an inbound message that was not processed.
func (m *Metrics) RecordDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordRelayed records n forwarded copies of a message.
func (m *Metrics) RecordRelayed(n int) {
	m.MessagesRelayed.Add(float64(n))
}

// RecordResolution records a longest chain request being answered.
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	m.ChainResolutions.WithLabelValues(outcome).Inc()
	m.ResolutionLatency.Observe(duration.Seconds())
}

// RecordGRPCRequest records a gRPC request.
func (m *Metrics) RecordGRPCRequest(method, status string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// UpdatePeers updates the live peer gauge.
func (m *Metrics) UpdatePeers(n int) {
	m.LivePeers.Set(float64(n))
}

// UpdatePending updates the pending request gauge.
func (m *Metrics) UpdatePending(n int) {
	m.PendingRequests.Set(float64(n))
}
