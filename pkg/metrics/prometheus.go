package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the call service
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	presenceChannels prometheus.Gauge
	roomChannels     prometheus.Gauge

	// Signaling Metrics
	signalsRelayedTotal *prometheus.CounterVec
	signalsDroppedTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal        *prometheus.CounterVec
	callsActive       prometheus.Gauge
	callDuration      prometheus.Histogram
	ringTimeoutsTotal prometheus.Counter

	// Presence Metrics
	usersOnline prometheus.Gauge

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		presenceChannels: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ws_presence_channels",
				Help:        "Number of open presence WebSocket channels",
				ConstLabels: labels,
			},
		),
		roomChannels: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ws_room_channels",
				Help:        "Number of open call room WebSocket channels",
				ConstLabels: labels,
			},
		),
		signalsRelayedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_relayed_total",
				Help:        "Total signaling messages relayed between call participants",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		signalsDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_dropped_total",
				Help:        "Signaling messages dropped because the peer was absent",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Calls reaching a terminal status",
				ConstLabels: labels,
			},
			[]string{"kind", "status"},
		),
		callsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Calls currently in a non-terminal status",
				ConstLabels: labels,
			},
		),
		callDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of accepted calls",
				ConstLabels: labels,
				Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		ringTimeoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "ring_timeouts_total",
				Help:        "Calls marked missed by the ring timer",
				ConstLabels: labels,
			},
		),
		usersOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "users_online",
				Help:        "Users with at least one open presence channel",
				ConstLabels: labels,
			},
		),
		pushNotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Mobile push notifications sent",
				ConstLabels: labels,
			},
			[]string{"provider"},
		),
		pushNotificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Mobile push notifications that failed to send",
				ConstLabels: labels,
			},
			[]string{"provider"},
		),
	}
}

// RecordHTTPRequest records one completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Inc() }

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Dec() }

// PresenceChannelOpened tracks one presence channel opening
func (m *Metrics) PresenceChannelOpened() { m.presenceChannels.Inc() }

// PresenceChannelClosed tracks one presence channel closing
func (m *Metrics) PresenceChannelClosed() { m.presenceChannels.Dec() }

// RoomChannelOpened tracks one room channel opening
func (m *Metrics) RoomChannelOpened() { m.roomChannels.Inc() }

// RoomChannelClosed tracks one room channel closing
func (m *Metrics) RoomChannelClosed() { m.roomChannels.Dec() }

// RecordSignalRelayed records a signaling message delivered to the peer
func (m *Metrics) RecordSignalRelayed(signalType string) {
	m.signalsRelayedTotal.WithLabelValues(signalType).Inc()
}

// RecordSignalDropped records a signaling message dropped for lack of a peer
func (m *Metrics) RecordSignalDropped(signalType string) {
	m.signalsDroppedTotal.WithLabelValues(signalType).Inc()
}

// CallStarted tracks a newly initiated call
func (m *Metrics) CallStarted() { m.callsActive.Inc() }

// CallFinished tracks a call reaching a terminal status
func (m *Metrics) CallFinished(kind, status string) {
	m.callsActive.Dec()
	m.callsTotal.WithLabelValues(kind, status).Inc()
}

// RecordCallDuration records the duration of an accepted call
func (m *Metrics) RecordCallDuration(seconds float64) {
	m.callDuration.Observe(seconds)
}

// RecordRingTimeout tracks a ring timer firing into a missed call
func (m *Metrics) RecordRingTimeout() { m.ringTimeoutsTotal.Inc() }

// SetUsersOnline updates the online-users gauge
func (m *Metrics) SetUsersOnline(n int) { m.usersOnline.Set(float64(n)) }

// RecordPushSent tracks a mobile push notification send attempt
func (m *Metrics) RecordPushSent(provider string) {
	m.pushNotificationsTotal.WithLabelValues(provider).Inc()
}

// RecordPushFailed tracks a failed mobile push notification
func (m *Metrics) RecordPushFailed(provider string) {
	m.pushNotificationsFailed.WithLabelValues(provider).Inc()
}
