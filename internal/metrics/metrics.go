// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatches counts composer submissions by outcome
	// (rejected_empty, rejected_in_flight, succeeded, failed, discarded).
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudespark",
		Name:      "dispatches_total",
		Help:      "Composer submissions by outcome.",
	}, []string{"outcome"})

	ReplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "claudespark",
		Name:      "reply_latency_seconds",
		Help:      "Time spent waiting on the reply generator.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	// TranscriptEvents counts reducer events by kind and effect
	// (appended, reconciled, duplicate, foreign, rejected).
	TranscriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudespark",
		Name:      "transcript_events_total",
		Help:      "Transcript state machine events by kind and effect.",
	}, []string{"kind", "effect"})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "claudespark",
		Name:      "sessions_active",
		Help:      "Open chat views.",
	})

	ConfirmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudespark",
		Name:      "identity_confirm_total",
		Help:      "Identity confirmation requests by method and result.",
	}, []string{"method", "result"})

	FeedPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claudespark",
		Name:      "feed_publish_total",
		Help:      "Insert notifications published by result.",
	}, []string{"result"})
)
