// ABOUTME: Prometheus collectors for chat-service requests, joint sessions and relay traffic
// ABOUTME: One Metrics value implements omegle.Recorder, relay.Observer and relay.TrafficRecorder

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/2389/stranger-relay/internal/envelope"
	"github.com/2389/stranger-relay/internal/relay"
)

const namespace = "stranger_relay"

// Metrics holds every collector. Create it with New; the zero value is not
// usable.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	sessionActive   prometheus.Gauge
	sessionDuration prometheus.Histogram
	topics          prometheus.Gauge

	envelopesReceived *prometheus.CounterVec
	envelopesSent     *prometheus.CounterVec
	notices           *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// New registers all collectors on a fresh registry, including the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_requests_total",
			Help: "Chat service requests by endpoint and result",
		}, []string{"endpoint", "result"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "service_request_duration_seconds",
			Help:    "Chat service request duration seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_started_total",
			Help: "Joint sessions started",
		}),
		sessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_ended_total",
			Help: "Joint sessions ended by reason",
		}, []string{"reason"}),
		sessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_active",
			Help: "1 from the first stranger connecting until the session ends, else 0",
		}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "session_duration_seconds",
			Help:    "Joint session duration seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		topics: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "topics",
			Help: "Number of topics used for the next connect",
		}),

		envelopesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "envelopes_received_total",
			Help: "Envelopes received from session hosts",
		}, []string{"side", "kind"}),
		envelopesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "envelopes_sent_total",
			Help: "Envelopes sent to session hosts",
		}, []string{"side", "kind"}),
		notices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notices_total",
			Help: "Moderator notices by persona and result",
		}, []string{"persona", "result"}),

		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRequest implements omegle.Recorder.
func (m *Metrics) ObserveRequest(endpoint string, d time.Duration, err error) {
	m.requests.WithLabelValues(endpoint, result(err)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SessionStarted implements relay.Observer.
func (m *Metrics) SessionStarted(_ context.Context, sessionID string, _ []string) {
	m.mu.Lock()
	m.started[sessionID] = m.now()
	m.mu.Unlock()

	m.sessionsStarted.Inc()
	m.sessionActive.Set(1)
}

// SessionEnded implements relay.Observer.
func (m *Metrics) SessionEnded(_ context.Context, sessionID string, reason relay.EndReason, _ relay.Side) {
	m.mu.Lock()
	start, ok := m.started[sessionID]
	delete(m.started, sessionID)
	m.mu.Unlock()

	if ok {
		m.sessionDuration.Observe(m.now().Sub(start).Seconds())
	}
	m.sessionsEnded.WithLabelValues(string(reason)).Inc()
	m.sessionActive.Set(0)
}

// TopicsChanged implements relay.Observer.
func (m *Metrics) TopicsChanged(_ context.Context, topics []string) {
	m.topics.Set(float64(len(topics)))
}

// EnvelopeReceived implements relay.TrafficRecorder.
func (m *Metrics) EnvelopeReceived(from relay.Side, kind envelope.Kind) {
	m.envelopesReceived.WithLabelValues(from.String(), string(kind)).Inc()
}

// EnvelopeSent implements relay.TrafficRecorder.
func (m *Metrics) EnvelopeSent(to relay.Side, kind envelope.Kind) {
	m.envelopesSent.WithLabelValues(to.String(), string(kind)).Inc()
}

// NoticePosted implements relay.TrafficRecorder.
func (m *Metrics) NoticePosted(persona relay.Persona, err error) {
	m.notices.WithLabelValues(persona.String(), result(err)).Inc()
}
