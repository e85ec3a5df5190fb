package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	OpenConversations  prometheus.Gauge
	ConversationEvents *prometheus.CounterVec
	TurnLatency        prometheus.Histogram
	SafetyBlocks       *prometheus.CounterVec
	ContextSources     *prometheus.CounterVec
	ContextLatency     prometheus.Histogram
	ExtractionJobs     *prometheus.CounterVec
	ExtractionLatency  prometheus.Histogram
	AdapterErrors      *prometheus.CounterVec
	WSMessages         *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OpenConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_conversations",
			Help:      "Number of conversations currently in the open state.",
		}),
		ConversationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_events_total",
			Help:      "Conversation lifecycle events by type.",
		}, []string{"event"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Wall-clock latency of a full reply turn in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 12000},
		}),
		SafetyBlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_blocks_total",
			Help:      "Safety filter blocks by category and direction.",
		}, []string{"category", "direction"}),
		ContextSources: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_sources_total",
			Help:      "Context assembly source outcomes by source and status.",
		}, []string{"source", "status"}),
		ContextLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_assembly_latency_ms",
			Help:      "Latency of context bundle assembly in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 350, 500, 750, 1000},
		}),
		ExtractionJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_jobs_total",
			Help:      "Background extraction job outcomes by status.",
		}, []string{"status"}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_latency_ms",
			Help:      "Latency of completed extraction jobs in milliseconds.",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 20000, 30000},
		}),
		AdapterErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "External adapter errors by adapter and code.",
		}, []string{"adapter", "code"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveContextLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ContextLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveExtraction(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionJobs.WithLabelValues(status).Inc()
	if status == "completed" {
		m.ExtractionLatency.Observe(float64(d.Milliseconds()))
	}
}

func (m *Metrics) IncOpenConversations() {
	if m == nil {
		return
	}
	m.OpenConversations.Inc()
}

func (m *Metrics) DecOpenConversations() {
	if m == nil {
		return
	}
	m.OpenConversations.Dec()
}

func (m *Metrics) ObserveContextSource(source, status string) {
	if m == nil {
		return
	}
	m.ContextSources.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ObserveSafetyBlock(category, direction string) {
	if m == nil {
		return
	}
	m.SafetyBlocks.WithLabelValues(category, direction).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveConversationEvent(event string) {
	if m == nil {
		return
	}
	m.ConversationEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveAdapterError(adapter, code string) {
	if m == nil {
		return
	}
	m.AdapterErrors.WithLabelValues(adapter, code).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
