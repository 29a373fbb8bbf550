// Package metrics instruments the sync core itself: events exchanged per
// round, exchange duration, and signal observations. This is ambient
// infrastructure-level observability, distinct from the simulation's own
// domain statistics engine, which spec.md §1 treats as an external
// collaborator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsExchanged counts events moved across a rank boundary by
	// direction, per rank.
	EventsExchanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex_sync",
		Subsystem: "ranksync",
		Name:      "events_exchanged_total",
		Help:      "Events moved across a rank boundary, by direction.",
	}, []string{"rank", "direction"})

	// ExchangeDuration observes how long one rank-sync round's transport
	// phase (sends, receives, allreduce) takes.
	ExchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vortex_sync",
		Subsystem: "ranksync",
		Name:      "exchange_duration_seconds",
		Help:      "Wall-clock duration of one rank-sync round's transport phase.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"rank", "variant"})

	// SignalsObserved counts each RealTimeAction invocation by kind.
	SignalsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vortex_sync",
		Subsystem: "syncmanager",
		Name:      "signals_observed_total",
		Help:      "RealTimeAction invocations, by kind.",
	}, []string{"kind"})
)
