// Package metrics exposes Prometheus metrics and a health endpoint for the
// analyzer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Loop iteration outcomes.
const (
	OutcomeRun      = "run"
	OutcomeStopped  = "stopped"
	OutcomeNotReady = "not_ready"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
)

// Metrics holds all Prometheus metrics of the analyzer.
type Metrics struct {
	TicksTotal    prometheus.Counter
	TicksRejected prometheus.Counter
	BarsTotal     *prometheus.CounterVec // labels: type
	RatesTotal    prometheus.Counter
	StaleTicks    prometheus.Counter

	// Loop orchestration
	LoopIterations  *prometheus.CounterVec   // labels: loop, outcome
	LoopDuration    *prometheus.HistogramVec // labels: loop
	ConfirmTimeouts *prometheus.CounterVec   // labels: loop

	// Orders and collaborators
	OrdersTotal        *prometheus.CounterVec // labels: type, retcode
	CollaboratorErrors *prometheus.CounterVec // labels: op, status
	AuctionWarnings    prometheus.Counter
	FeedReconnects     prometheus.Counter

	// Storage
	CacheOpDur               *prometheus.HistogramVec // labels: op
	RedisCircuitBreakerState prometheus.Gauge         // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	JournalCommitDur         prometheus.Histogram

	// Trading
	MarketState   prometheus.Gauge // 0=closed, 1=open
	LedgerVolume  prometheus.Gauge
	LedgerProfit  prometheus.Gauge
	BacktestSteps prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ticks_total",
			Help: "Ticks accepted into the tick store",
		}),
		TicksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ticks_rejected_total",
			Help: "Ticks rejected as duplicate or out of order",
		}),
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_bars_total",
			Help: "Completed range bars (by direction)",
		}, []string{"type"}),
		RatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_rates_total",
			Help: "Finalized timeframe rates",
		}),
		StaleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_stale_ticks_total",
			Help: "Trades rejected by the rate builder as stale",
		}),

		LoopIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_loop_iterations_total",
			Help: "Loop iterations by outcome",
		}, []string{"loop", "outcome"}),
		LoopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_loop_run_duration_seconds",
			Help:    "Duration of a loop run body",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"loop"}),
		ConfirmTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_confirm_timeouts_total",
			Help: "Order confirmation waits that ended by timeout",
		}, []string{"loop"}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_orders_total",
			Help: "Orders sent (by type and retcode)",
		}, []string{"type", "retcode"}),
		CollaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_collaborator_errors_total",
			Help: "Non-OK statuses recorded into the error log",
		}, []string{"op", "status"}),
		AuctionWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_auction_warnings_total",
			Help: "Strategy iterations skipped on a crossed quote",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),

		CacheOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analyzer_cache_op_duration_seconds",
			Help:    "Redis cache operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		JournalCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_journal_commit_duration_seconds",
			Help:    "SQLite journal commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		LedgerVolume: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_ledger_open_volume",
			Help: "Open volume of the backtest ledger",
		}),
		LedgerProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_ledger_profit",
			Help: "Profit of the backtest ledger at the last balance",
		}),
		BacktestSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_backtest_steps_total",
			Help: "Virtual clock steps taken",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TicksRejected,
		m.BarsTotal,
		m.RatesTotal,
		m.StaleTicks,
		m.LoopIterations,
		m.LoopDuration,
		m.ConfirmTimeouts,
		m.OrdersTotal,
		m.CollaboratorErrors,
		m.AuctionWarnings,
		m.FeedReconnects,
		m.CacheOpDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.JournalCommitDur,
		m.MarketState,
		m.LedgerVolume,
		m.LedgerProfit,
		m.BacktestSteps,
	)

	return m
}
