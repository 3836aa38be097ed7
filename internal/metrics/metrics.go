// Package metrics exposes the Prometheus instrumentation shared by
// every component of the engine. Metrics are registered once at
// package init via promauto, matching the teacher's pattern of a
// single global registry rather than per-component registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedIngestLatency observes the gap between two consecutive
	// snapshots on one (venue, instrument) subscription — the same
	// signal the stale-data watchdog uses to force a reconnect.
	FeedIngestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_feed_ingest_latency_seconds",
		Help:    "Gap between consecutive order book snapshots per venue/instrument.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"venue", "instrument"})

	SnapshotsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_feed_snapshots_dropped_total",
		Help: "Snapshots dropped by FeedIngestor or FeedAggregator (empty book, insufficient depth).",
	}, []string{"venue", "instrument", "reason"})

	FeedReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_feed_reconnects_total",
		Help: "Forced reconnects triggered by the staleness watchdog or a transport error.",
	}, []string{"venue", "instrument"})

	VWAPLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_vwap_compute_latency_seconds",
		Help:    "Time to derive a VWAP quote from a book snapshot.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})

	SpreadObserved = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_spread_net_pct",
		Help:    "Net spread percentage observed per ordered venue pair/instrument.",
		Buckets: []float64{-1, -0.5, -0.2, -0.1, 0, 0.05, 0.1, 0.2, 0.5, 1, 2},
	}, []string{"instrument", "buy_venue", "sell_venue"})

	OpportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_opportunities_detected_total",
		Help: "Spreads that cleared the open-position net spread threshold.",
	}, []string{"instrument"})

	OrderExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_order_execution_latency_seconds",
		Help:    "Wall time to place both legs of an open or close.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"}) // "open" | "close"

	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_positions_opened_total",
		Help: "Positions successfully opened.",
	}, []string{"instrument"})

	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_positions_closed_total",
		Help: "Positions closed, labeled by close reason.",
	}, []string{"instrument", "reason"})

	OrphanedLegs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_orphaned_legs_total",
		Help: "Opens where one leg filled and the other failed; no automatic rollback is attempted (spec open question).",
	}, []string{"instrument", "venue"})

	PnlTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_realized_pnl_pct_total",
		Help: "Cumulative realized PnL percent across closed positions.",
	}, []string{"instrument"})

	BalanceGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_venue_balance",
		Help: "Last-known free balance per venue.",
	}, []string{"venue"})

	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arb_active_positions",
		Help: "Current number of open positions.",
	})

	ChannelBlockedSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_channel_blocked_seconds",
		Help:    "Time a producer spent blocked on a full bounded channel (backpressure, not drop).",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
	}, []string{"channel"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_venue_breaker_state",
		Help: "Circuit breaker state per venue call: 0=closed,1=half-open,2=open.",
	}, []string{"venue", "operation"})
)
