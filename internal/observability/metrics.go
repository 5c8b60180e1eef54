package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	ParamUpdates    *prometheus.CounterVec
	ChunksIngested  prometheus.Counter
	IngestRejected  prometheus.Counter
	BatchesDrained  prometheus.Counter
	RecordingsSaved *prometheus.CounterVec
	RecordingBytes  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently negotiating or streaming.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ParamUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "param_updates_total",
			Help:      "Parameter update attempts by result.",
		}, []string{"result"}),
		ChunksIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Audio chunks accepted into session buffers.",
		}),
		IngestRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Audio chunks rejected because the session was not streaming.",
		}),
		BatchesDrained: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_drained_total",
			Help:      "Completed batches cut from pending buffers.",
		}),
		RecordingsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_saved_total",
			Help:      "Recordings persisted, by source mode.",
		}, []string{"mode"}),
		RecordingBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_bytes",
			Help:      "Encoded artifact size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
