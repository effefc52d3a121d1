// Package metrics exposes the venue's Prometheus collectors, grounded on
// the pack's own exchange metrics collector: one struct of CounterVec /
// GaugeVec / HistogramVec fields and a single registration pass. Callers
// such as dispatch.MetricsListener use the exported fields directly; there
// are no Record* helpers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the matching core publishes.
type Collector struct {
	OrdersTotal    *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	OrderLatency   *prometheus.HistogramVec

	MatchingLatencyNanos *prometheus.HistogramVec
	MatchingThroughput   *prometheus.GaugeVec
	OrderbookDepth       *prometheus.GaugeVec
	BestBid              *prometheus.GaugeVec
	BestAsk              *prometheus.GaugeVec

	FillsTotal    *prometheus.CounterVec
	TradeVolume   *prometheus.CounterVec
	TradeNotional *prometheus.CounterVec

	IngressQueueDepth prometheus.Gauge
	AdmissionCeiling  prometheus.Gauge
	AdmissionBraked   prometheus.Counter

	SessionFramesTotal    *prometheus.CounterVec
	SessionResyncsTotal   prometheus.Counter
	SessionChecksumErrors prometheus.Counter
}

// New constructs and registers every collector against reg. Passing a
// fresh *prometheus.Registry rather than using the global default registry
// lets tests construct independent collectors without colliding.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted, by symbol, side and type.",
		}, []string{"symbol", "side", "type"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total number of orders rejected, by reason.",
		}, []string{"symbol", "reason"}),

		OrderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "venue",
			Subsystem: "orders",
			Name:      "processing_latency_seconds",
			Help:      "End-to-end order processing latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 20),
		}, []string{"symbol"}),

		MatchingLatencyNanos: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "venue",
			Subsystem: "matching",
			Name:      "latency_seconds",
			Help:      "Matching engine per-command latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 2, 20),
		}, []string{"symbol"}),

		MatchingThroughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "matching",
			Name:      "throughput_ops",
			Help:      "Matching engine operations per second, sampled.",
		}, []string{"symbol"}),

		OrderbookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "orderbook",
			Name:      "depth",
			Help:      "Resting order count on one side of the book.",
		}, []string{"symbol", "side"}),

		BestBid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "orderbook",
			Name:      "best_bid",
			Help:      "Best bid price, scaled units.",
		}, []string{"symbol"}),

		BestAsk: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "orderbook",
			Name:      "best_ask",
			Help:      "Best ask price, scaled units.",
		}, []string{"symbol"}),

		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "trades",
			Name:      "fills_total",
			Help:      "Total number of fills.",
		}, []string{"symbol"}),

		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "trades",
			Name:      "volume_total",
			Help:      "Total traded base quantity.",
		}, []string{"symbol"}),

		TradeNotional: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "trades",
			Name:      "notional_total",
			Help:      "Total traded notional, scaled units.",
		}, []string{"symbol"}),

		IngressQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "ingress",
			Name:      "queue_depth",
			Help:      "Current ingress ring buffer depth.",
		}),

		AdmissionCeiling: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "venue",
			Subsystem: "admission",
			Name:      "ceiling_ops",
			Help:      "Current admission controller throughput ceiling.",
		}),

		AdmissionBraked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "admission",
			Name:      "emergency_brake_total",
			Help:      "Total number of times the emergency brake engaged.",
		}),

		SessionFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "session",
			Name:      "frames_total",
			Help:      "Total session frames decoded, by message type.",
		}, []string{"msg_type"}),

		SessionResyncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "session",
			Name:      "resyncs_total",
			Help:      "Total number of decoder resync events.",
		}),

		SessionChecksumErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "venue",
			Subsystem: "session",
			Name:      "checksum_errors_total",
			Help:      "Total number of frame checksum mismatches.",
		}),
	}
	c.registerAll(reg)
	return c
}

func (c *Collector) registerAll(reg prometheus.Registerer) {
	reg.MustRegister(
		c.OrdersTotal, c.OrdersRejected, c.OrderLatency,
		c.MatchingLatencyNanos, c.MatchingThroughput, c.OrderbookDepth, c.BestBid, c.BestAsk,
		c.FillsTotal, c.TradeVolume, c.TradeNotional,
		c.IngressQueueDepth, c.AdmissionCeiling, c.AdmissionBraked,
		c.SessionFramesTotal, c.SessionResyncsTotal, c.SessionChecksumErrors,
	)
}

// Handler returns the Prometheus scrape handler for the given registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
