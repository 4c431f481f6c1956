package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "meetingmind"

// Metrics holds the streamer's Prometheus collectors.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsFailed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	ChunksSent        prometheus.Counter
	BytesSent         prometheus.Counter
	ChunksDropped     prometheus.Counter
	MalformedMessages prometheus.Counter
	Heartbeats        prometheus.Counter
	InputLevel        prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_started_total",
			Help:      "Sessions that reached the active state",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_failed_total",
			Help:      "Session failures by kind",
		}, []string{"kind"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock length of active sessions",
			Buckets:   []float64{5, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audio_chunks_sent_total",
			Help:      "PCM chunks written to the stream",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audio_bytes_sent_total",
			Help:      "PCM bytes written to the stream",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "PCM chunks dropped because the stream was not open",
		}),
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound messages that could not be decoded",
		}),
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "heartbeats_answered_total",
			Help:      "Server pings answered with a pong",
		}),
		InputLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "input_level_rms",
			Help:      "RMS of the most recent captured frame",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) SessionFailed(kind string) {
	if m == nil {
		return
	}
	m.SessionsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSessionDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.SessionDuration.Observe(d.Seconds())
}

func (m *Metrics) ChunkSent(bytes int) {
	if m == nil {
		return
	}
	m.ChunksSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

func (m *Metrics) ChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

func (m *Metrics) MalformedMessage() {
	if m == nil {
		return
	}
	m.MalformedMessages.Inc()
}

func (m *Metrics) HeartbeatAnswered() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

func (m *Metrics) SetInputLevel(rms float64) {
	if m == nil {
		return
	}
	m.InputLevel.Set(rms)
}
