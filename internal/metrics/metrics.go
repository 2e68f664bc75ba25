// Package metrics registers the engine's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesConsumed counts applied broker messages per queue.
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "ingest",
		Name:      "messages_consumed_total",
		Help:      "Broker messages decoded and applied, per queue.",
	}, []string{"queue"})

	// DecodeFailures counts dead-lettered messages per queue.
	DecodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "ingest",
		Name:      "decode_failures_total",
		Help:      "Messages that failed decoding and were dead-lettered, per queue.",
	}, []string{"queue"})

	// InstructionsEmitted counts outbound instructions by kind.
	InstructionsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "replace",
		Name:      "instructions_emitted_total",
		Help:      "Replace/cancel/new instructions emitted, by kind.",
	}, []string{"kind"})

	// CrossedMarketCancels counts stale/crossed-market protective cancels.
	CrossedMarketCancels = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "replace",
		Name:      "crossed_market_cancels_total",
		Help:      "Orders canceled after a persistently crossed reference market.",
	})

	// PricingSkips counts per-order pricing failures that skipped a cycle.
	PricingSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "replace",
		Name:      "pricing_skips_total",
		Help:      "Orders skipped for a cycle because pricing could not complete.",
	}, []string{"reason"})

	// PairTransitions counts leg-sequencer state transitions.
	PairTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "almengine",
		Subsystem: "pairs",
		Name:      "transitions_total",
		Help:      "Pair-order state transitions, by target state.",
	}, []string{"state"})

	// TrackedSecurities gauges the price store population.
	TrackedSecurities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "almengine",
		Subsystem: "pricestore",
		Name:      "tracked_securities",
		Help:      "Securities tracked in the live price store.",
	})
)
