// Package metrics exposes the seeker's Prometheus collectors and the ops
// HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oev_seeker"

// Bid outcome labels
const (
	BidPlaced  = "placed"
	BidAwarded = "awarded"
	BidLost    = "lost"
	BidExpired = "expired"
)

// Liquidation outcome labels
const (
	LiquidationExecuted = "executed"
	LiquidationStale    = "stale"
	LiquidationFailed   = "failed"
)

// Metrics groups every collector the seeker updates
type Metrics struct {
	ScanCycles        prometheus.Counter
	ScanDuration      prometheus.Histogram
	SimulationReverts prometheus.Counter
	Opportunities     prometheus.Counter
	Bids              *prometheus.CounterVec
	Liquidations      *prometheus.CounterVec
	Fulfillments      *prometheus.CounterVec
	LoopErrors        *prometheus.CounterVec
	WatchedAccounts   prometheus.Gauge
	AuctionLogEvents  prometheus.Gauge
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Opportunity scan cycles run",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of one opportunity scan",
			Buckets:   prometheus.DefBuckets,
		}),
		SimulationReverts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_reverts_total",
			Help:      "Scan cycles abandoned because a simulation reverted",
		}),
		Opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Scan cycles that found a profitable liquidation",
		}),
		Bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bids by lifecycle outcome",
		}, []string{"status"}),
		Liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Awarded liquidations by result",
		}, []string{"result"}),
		Fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_reports_total",
			Help:      "Fulfillment reports sent to the auction house",
		}, []string{"result"}),
		LoopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Loop iterations that failed after retries",
		}, []string{"loop"}),
		WatchedAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_accounts",
			Help:      "Accounts in the watch list",
		}),
		AuctionLogEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auction_log_events",
			Help:      "Events held in the auction log cache",
		}),
	}
	reg.MustRegister(
		m.ScanCycles,
		m.ScanDuration,
		m.SimulationReverts,
		m.Opportunities,
		m.Bids,
		m.Liquidations,
		m.Fulfillments,
		m.LoopErrors,
		m.WatchedAccounts,
		m.AuctionLogEvents,
	)
	return m
}

// ObserveFulfillment matches the executor's report hook
func (m *Metrics) ObserveFulfillment(err error) {
	if err != nil {
		m.Fulfillments.WithLabelValues("error").Inc()
		return
	}
	m.Fulfillments.WithLabelValues("ok").Inc()
}
