package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StableVault.
type Metrics struct {
	// --- Position operations ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	Liquidations prometheus.Counter
	EventSequence prometheus.Gauge

	// --- Oracle ---
	PriceUpdates    *prometheus.CounterVec
	StaleQuotes     *prometheus.CounterVec
	PriceUpdateLag  *prometheus.HistogramVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Publishing ---
	EventsPublished prometheus.Counter
	PublishErrors   prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Position operations
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Position operations committed",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Position operations rejected (validation, solvency, collaborator)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "End-to-end duration of a position operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		Liquidations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_liquidations_total",
			Help: "Completed liquidations",
		}),

		EventSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_event_sequence",
			Help: "Sequence number of the last emitted event",
		}),

		// Oracle
		PriceUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_price_updates_total",
			Help: "Price reports accepted into the feed cache",
		}, []string{"feed_id"}),

		StaleQuotes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_stale_quotes_total",
			Help: "Quote lookups rejected for staleness",
		}, []string{"feed_id"}),

		PriceUpdateLag: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_price_update_lag_seconds",
			Help:    "Report timestamp to cache update",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"feed_id"}),

		// Persistence
		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Last persisted event sequence",
		}),

		// Publishing
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_events_published_total",
			Help: "Events published to NATS",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "NATS publish failures",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		// HTTP API
		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_api_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_api_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
