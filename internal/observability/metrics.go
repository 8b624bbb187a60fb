package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PerpTrade.
type Metrics struct {
	// --- Engine operations ---
	EngineOpsApplied  *prometheus.CounterVec
	EngineOpsRejected *prometheus.CounterVec
	EngineOpDuration  *prometheus.HistogramVec
	EngineSequence    *prometheus.GaugeVec
	OpenPositions     *prometheus.GaugeVec
	IndexPriceLevels  *prometheus.GaugeVec

	// --- Liquidation ---
	LiquidationsTotal *prometheus.CounterVec
	LiquidationReward *prometheus.CounterVec
	ForfeitedTotal    *prometheus.CounterVec

	// --- Price feed ---
	FeedUpdatesApplied *prometheus.CounterVec
	FeedUpdatesStale   *prometheus.CounterVec
	FeedLagSeconds     *prometheus.GaugeVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		EngineOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_engine_ops_applied_total",
			Help: "Position operations successfully applied",
		}, []string{"market", "op"}),

		EngineOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_engine_ops_rejected_total",
			Help: "Position operations rejected (validation, access, settlement)",
		}, []string{"market", "op", "reason"}),

		EngineOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perptrade_engine_op_duration_seconds",
			Help:    "Time to apply a position operation",
			Buckets: opBuckets,
		}, []string{"market", "op"}),

		EngineSequence: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perptrade_engine_sequence",
			Help: "Current engine event sequence",
		}, []string{"market"}),

		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perptrade_open_positions",
			Help: "Open positions per market and side",
		}, []string{"market", "side"}),

		IndexPriceLevels: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perptrade_index_price_levels",
			Help: "Distinct liquidation-price buckets per market and side",
		}, []string{"market", "side"}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_liquidations_total",
			Help: "Completed liquidations",
		}, []string{"market"}),

		LiquidationReward: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_liquidation_reward_total",
			Help: "Collateral paid to liquidators (quote units)",
		}, []string{"market"}),

		ForfeitedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_forfeited_total",
			Help: "Collateral forfeited to the insurance fund (quote units)",
		}, []string{"market"}),

		FeedUpdatesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_feed_updates_applied_total",
			Help: "Mark price updates accepted",
		}, []string{"feed"}),

		FeedUpdatesStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_feed_updates_stale_total",
			Help: "Mark price updates dropped as stale or invalid",
		}, []string{"feed"}),

		FeedLagSeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perptrade_feed_lag_seconds",
			Help: "Age of the latest accepted mark price",
		}, []string{"feed"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perptrade_persist_events_written_total",
			Help: "Event envelopes written to the event log",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perptrade_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perptrade_persist_batch_duration_seconds",
			Help:    "Time to persist a batch",
			Buckets: httpBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_persist_errors_total",
			Help: "Persistence failures by kind",
		}, []string{"kind"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perptrade_persist_retries_total",
			Help: "Batch write retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perptrade_persist_last_sequence",
			Help: "Highest sequence durably persisted",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perptrade_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "method", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perptrade_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: httpBuckets,
		}, []string{"route", "method"}),
	}
}
