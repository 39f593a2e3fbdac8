package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StreamFrames counts decoded SSE payloads by result: ok, malformed, ignored.
	StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_stream_frames_total",
			Help: "Stream frames seen by the decoder.",
		},
		[]string{"result"},
	)

	StreamTransportErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatstream_stream_transport_errors_total",
			Help: "Streams that ended with a transport failure.",
		},
	)

	// Directives counts directive outcomes: resolved, unresolved, dropped.
	Directives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_directives_total",
			Help: "Inline action directives by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// Merges counts snapshot merges by whether anything visible changed.
	Merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_reconcile_merges_total",
			Help: "Remote snapshots merged into local conversation state.",
		},
		[]string{"changed"},
	)

	LocalFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatstream_local_fallbacks_total",
			Help: "Conversations that fell back to a local-only identity.",
		},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatstream_store_subscribers",
			Help: "Active conversation subscriptions.",
		},
	)

	// Turns counts finished turns by outcome: committed, aborted, failed.
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_turns_total",
			Help: "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatstream_turn_duration_seconds",
			Help:    "Time from send to final message.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	Tickets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_tickets_total",
			Help: "Ticket sink calls by result.",
		},
		[]string{"result"},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatstream_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(
		StreamFrames,
		StreamTransportErrors,
		Directives,
		Merges,
		LocalFallbacks,
		Subscribers,
		Turns,
		TurnDuration,
		Tickets,
		heapAlloc,
	)
}
