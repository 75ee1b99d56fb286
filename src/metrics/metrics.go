package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "market_pulse"

// Metrics holds every prometheus collector of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	InboundMessages   *prometheus.CounterVec
	ClientErrors      *prometheus.CounterVec

	// Broadcast metrics
	FramesSent      *prometheus.CounterVec
	SendFailures    *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	MirrorFailures  *prometheus.CounterVec

	// Scheduler metrics
	CadenceTicks    *prometheus.CounterVec
	CadenceDuration *prometheus.HistogramVec

	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// Cache metrics
	CacheWrites *prometheus.CounterVec
}

var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// -----------------------------------------------------------------------------

// NewMetrics registers all collectors on reg (the default registerer when nil)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections_active",
			Help: "Number of registered websocket connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "connections_total",
			Help: "Total number of accepted websocket connections",
		}),
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "inbound_messages_total",
			Help: "Inbound client frames by type",
		}, []string{"type"}),
		ClientErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ws", Name: "error_frames_total",
			Help: "Error frames sent to clients by code",
		}, []string{"code"}),

		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "frames_sent_total",
			Help: "Frames queued to connections by event",
		}, []string{"event"}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "send_failures_total",
			Help: "Failed sends (connection deregistered) by event",
		}, []string{"event"}),
		PublishDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "publish_duration_seconds",
			Help: "Time spent in one publish call", Buckets: defaultBuckets,
		}, []string{"event"}),
		MirrorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "broadcast", Name: "mirror_failures_total",
			Help: "Frames the bus mirror failed to forward",
		}, []string{"event"}),

		CadenceTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "ticks_total",
			Help: "Scheduler ticks by cadence and outcome",
		}, []string{"cadence", "status"}),
		CadenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "tick_duration_seconds",
			Help: "Duration of one scheduler tick", Buckets: defaultBuckets,
		}, []string{"cadence"}),

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "upstream", Name: "requests_total",
			Help: "Upstream provider calls by operation and outcome",
		}, []string{"operation", "status"}),
		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "upstream", Name: "duration_seconds",
			Help: "Upstream provider call latency", Buckets: defaultBuckets,
		}, []string{"operation"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "upstream", Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),

		CacheWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "writes_total",
			Help: "Cache writes by backend and outcome",
		}, []string{"backend", "status"}),
	}
}

// -----------------------------------------------------------------------------

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) RecordInbound(msgType string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordErrorFrame(code string) {
	if m == nil {
		return
	}
	m.ClientErrors.WithLabelValues(code).Inc()
}

// -----------------------------------------------------------------------------

// RecordPublish records one publish call: sent frames, failed sends and latency
func (m *Metrics) RecordPublish(event string, sent, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(event).Add(float64(sent))
	if failed > 0 {
		m.SendFailures.WithLabelValues(event).Add(float64(failed))
	}
	m.PublishDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (m *Metrics) RecordMirrorFailure(event string) {
	if m == nil {
		return
	}
	m.MirrorFailures.WithLabelValues(event).Inc()
}

// -----------------------------------------------------------------------------

func (m *Metrics) RecordTick(cadence, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CadenceTicks.WithLabelValues(cadence, status).Inc()
	m.CadenceDuration.WithLabelValues(cadence).Observe(d.Seconds())
}

func (m *Metrics) RecordUpstream(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamRequests.WithLabelValues(operation, status).Inc()
	m.UpstreamDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RecordCacheWrite(backend, status string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(backend, status).Inc()
}
