// Package metrics defines the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/browser-bridge/bridge/internal/model"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_connections_active",
			Help: "Currently registered browser connections",
		},
	)

	ConnectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_connections_opened_total",
			Help: "Total browser connections registered",
		},
	)

	ConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_connections_closed_total",
			Help: "Total browser connections torn down",
		},
		[]string{"reason"}, // "peer", "error", "superseded", "shutdown"
	)

	ConnectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_connections_rejected_total",
			Help: "Handshakes refused because the connection limit was reached",
		},
	)

	// Message metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_received_total",
			Help: "Inbound envelopes appended to connection history",
		},
		[]string{"type"},
	)

	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_decode_errors_total",
			Help: "Inbound messages dropped because they could not be decoded",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_sent_total",
			Help: "Outbound messages written to a connection",
		},
		[]string{"mode"}, // "direct" or "broadcast"
	)

	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_send_errors_total",
			Help: "Outbound messages that failed",
		},
		[]string{"reason"}, // "encode" or "write"
	)

	// Correlator metrics
	CorrelatedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_correlated_requests_total",
			Help: "Blocking command/reply exchanges by outcome",
		},
		[]string{"outcome"}, // "reply", "timeout", "no_target", "error"
	)

	CorrelationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_correlation_duration_seconds",
			Help:    "Time from command send to matched reply",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Mirror metrics
	MirrorPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_mirror_publish_errors_total",
			Help: "Envelopes that could not be published to the mirror",
		},
	)
)

var knownTypes = map[string]struct{}{
	model.TypeExecuteScript:         {},
	model.TypeInspectElement:        {},
	model.TypeTakeScreenshot:        {},
	model.TypeScriptResult:          {},
	model.TypeInspectResult:         {},
	model.TypeScreenshotResult:      {},
	model.TypeConnectionEstablished: {},
	model.TypePageLoad:              {},
	model.TypeConsole:               {},
	model.TypeError:                 {},
	model.TypeTabUpdated:            {},
	model.TypeTabActivated:          {},
	model.TypeDOMMutation:           {},
	model.TypeNetworkRequest:        {},
}

// TypeLabel maps an envelope type to a bounded label value.
// Peers choose types freely, so unknown ones collapse into "other".
func TypeLabel(typ string) string {
	if _, ok := knownTypes[typ]; ok {
		return typ
	}
	return "other"
}
