package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics.
var (
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okxstream_reconnects_total",
		Help: "Reconnection attempts per connection.",
	}, []string{"conn"})

	StaleConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okxstream_stale_connections_total",
		Help: "Connections declared dead after a missed heartbeat.",
	}, []string{"conn"})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okxstream_messages_received_total",
		Help: "Raw frames received per connection.",
	}, []string{"conn"})

	ConnectionUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "okxstream_connection_up",
		Help: "1 while the connection is established, 0 otherwise.",
	}, []string{"conn"})
)

// Router metrics.
var (
	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_parse_errors_total",
		Help: "Inbound frames dropped because they could not be parsed.",
	})

	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "okxstream_dropped_frames_total",
		Help: "Inbound frames dropped after parsing, by reason.",
	}, []string{"reason"})

	ServerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_server_errors_total",
		Help: "Error control frames received from the server.",
	})
)

// Subscription metrics.
var (
	SubscriptionRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_subscription_rejections_total",
		Help: "Subscribe requests rejected by the server.",
	})

	SubscriptionReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_subscription_replays_total",
		Help: "Desired subscriptions replayed after a reconnect.",
	})
)

// Auth metrics.
var AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "okxstream_auth_failures_total",
	Help: "Login acks carrying a failure code.",
})

// Order book metrics.
var (
	ChecksumMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_book_checksum_mismatches_total",
		Help: "Order books discarded after a checksum mismatch.",
	})

	BookResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_book_resyncs_total",
		Help: "Resync requests emitted for diverged order books.",
	})

	BookSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_book_snapshots_total",
		Help: "Full order-book snapshots applied.",
	})

	BookDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "okxstream_book_deltas_total",
		Help: "Order-book deltas applied.",
	})
)

// Event stream metrics.
var EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "okxstream_events_dropped_total",
	Help: "Events dropped because the consumer fell behind.",
})
