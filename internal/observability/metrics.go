// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TransactionsApplied  *prometheus.CounterVec
	DuplicatesDropped    *prometheus.CounterVec
	ValidationFailures   *prometheus.CounterVec
	ApplyFailures        prometheus.Counter
	BackfillTransactions prometheus.Counter
	QueueDepth           prometheus.Gauge
	ApplyLatency         prometheus.Histogram

	// Ledger metrics
	Oversells        prometheus.Counter
	LotsCreated      prometheus.Counter
	LotsCleanedUp    prometheus.Counter
	RealizedPnLTotal prometheus.Counter

	// Feed metrics
	FeedEvents          *prometheus.CounterVec
	FeedConnectionState *prometheus.GaugeVec
	FeedReconnects      prometheus.Counter
	HistoryRequests     *prometheus.CounterVec

	// Analytics metrics
	SnapshotsCaptured prometheus.Counter
	QueryDuration     *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "holder_ledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TransactionsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_applied_total",
			Help:      "Total number of transactions committed to the ledger by type",
		}, []string{"type"}),
		DuplicatesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of already committed or pending signatures dropped by stage",
		}, []string{"stage"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "validation_failures_total",
			Help:      "Total number of malformed events dropped by field",
		}, []string{"field"}),
		ApplyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "apply_failures_total",
			Help:      "Total number of transactions rolled back by a store failure",
		}),
		BackfillTransactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "backfill_transactions_total",
			Help:      "Total number of historical transactions applied by backfill",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of events waiting in the ingestion queue",
		}),
		ApplyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "apply_latency_seconds",
			Help:      "Latency of one atomic transaction application in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		Oversells: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "oversells_total",
			Help:      "Total number of sales that exceeded the holder's open lots",
		}),
		LotsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lots_created_total",
			Help:      "Total number of purchase lots created",
		}),
		LotsCleanedUp: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lots_cleaned_up_total",
			Help:      "Total number of exhausted lots deleted",
		}),
		RealizedPnLTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "realized_pnl_abs_usd_total",
			Help:      "Sum of absolute realized PnL in USD",
		}),

		FeedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Total number of feed events received by kind",
		}, []string{"kind"}),
		FeedConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connection_state",
			Help:      "1 for the current feed connection state, 0 otherwise",
		}, []string{"state"}),
		FeedReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		HistoryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "history_requests_total",
			Help:      "Total number of history page requests by status",
		}, []string{"status"}),

		SnapshotsCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "snapshots_captured_total",
			Help:      "Total number of zone snapshots persisted",
		}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "query_duration_seconds",
			Help:      "Analytics query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTransactionApplied records a committed transaction and its apply latency.
func RecordTransactionApplied(txType string, seconds float64, unixNow int64) {
	DefaultMetrics.TransactionsApplied.WithLabelValues(txType).Inc()
	DefaultMetrics.ApplyLatency.Observe(seconds)
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(unixNow))
}

// RecordDuplicate records a dropped duplicate. stage is cache, store, pending or commit.
func RecordDuplicate(stage string) {
	DefaultMetrics.DuplicatesDropped.WithLabelValues(stage).Inc()
}

// RecordValidationFailure records a malformed event.
func RecordValidationFailure(field string) {
	DefaultMetrics.ValidationFailures.WithLabelValues(field).Inc()
}

// RecordApplyFailure records a rolled back transaction.
func RecordApplyFailure() {
	DefaultMetrics.ApplyFailures.Inc()
}

// RecordBackfillTransaction records one historical transaction applied.
func RecordBackfillTransaction() {
	DefaultMetrics.BackfillTransactions.Inc()
}

// UpdateQueueDepth sets the queue depth gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordOversell records a sale larger than the open lots.
func RecordOversell() {
	DefaultMetrics.Oversells.Inc()
}

// RecordLotCreated records a new purchase lot.
func RecordLotCreated() {
	DefaultMetrics.LotsCreated.Inc()
}

// RecordLotsCleanedUp records deleted exhausted lots.
func RecordLotsCleanedUp(n int64) {
	DefaultMetrics.LotsCleanedUp.Add(float64(n))
}

// RecordRealizedPnL adds the absolute value of a realized PnL.
func RecordRealizedPnL(pnl float64) {
	if pnl < 0 {
		pnl = -pnl
	}
	DefaultMetrics.RealizedPnLTotal.Add(pnl)
}

// RecordFeedEvent records a received feed event.
func RecordFeedEvent(kind string) {
	DefaultMetrics.FeedEvents.WithLabelValues(kind).Inc()
}

// SetFeedConnectionState marks state as the current feed state.
func SetFeedConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		DefaultMetrics.FeedConnectionState.WithLabelValues(s).Set(v)
	}
}

// RecordFeedReconnect records a reconnect attempt.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordHistoryRequest records a history page request.
func RecordHistoryRequest(status string) {
	DefaultMetrics.HistoryRequests.WithLabelValues(status).Inc()
}

// RecordSnapshotsCaptured records persisted zone snapshots.
func RecordSnapshotsCaptured(n int) {
	DefaultMetrics.SnapshotsCaptured.Add(float64(n))
}

// RecordQuery records analytics query latency.
func RecordQuery(query string, seconds float64) {
	DefaultMetrics.QueryDuration.WithLabelValues(query).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
