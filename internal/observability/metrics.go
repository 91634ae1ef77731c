package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	feedRequestsTotal *prometheus.CounterVec
	feedRankLatency   prometheus.Histogram

	chatConnectionsTotal prometheus.Counter
	chatMessagesSent     prometheus.Counter

	notificationsPublishedTotal *prometheus.CounterVec
	subscribersActive           prometheus.Gauge

	unreadRecomputeTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		feedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Feed page requests by tab and outcome.",
		}, []string{"tab", "outcome"})

		feedRankLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feed_rank_latency_seconds",
			Help:    "Time spent fetching and ranking one feed batch.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})

		chatConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_connections_total",
			Help: "Total websocket chat connections accepted.",
		})

		chatMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total chat messages delivered to the local hub.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications recorded, by type.",
		}, []string{"type"})

		subscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_subscribers_active",
			Help: "Currently connected notification stream subscribers.",
		})

		unreadRecomputeTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unread_recompute_total",
			Help: "Full unread summary recomputation passes.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			feedRequestsTotal, feedRankLatency,
			chatConnectionsTotal, chatMessagesSent,
			notificationsPublishedTotal, subscribersActive,
			unreadRecomputeTotal,
		)
	})
}

// APIRequests exposes the counter for served requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for served requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// FeedRequestsTotal exposes the feed request counter.
func FeedRequestsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return feedRequestsTotal
}

// FeedRankLatency exposes the feed ranking latency histogram.
func FeedRankLatency() prometheus.Histogram {
	RegisterMetrics()
	return feedRankLatency
}

// ChatConnectionsTotal exposes the chat connection counter.
func ChatConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return chatConnectionsTotal
}

// ChatMessagesSent exposes the chat delivery counter.
func ChatMessagesSent() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesSent
}

// NotificationsPublishedTotal exposes the notification counter.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// SubscribersActive exposes the subscriber gauge.
func SubscribersActive() prometheus.Gauge {
	RegisterMetrics()
	return subscribersActive
}

// UnreadRecomputeTotal exposes the unread recomputation counter.
func UnreadRecomputeTotal() prometheus.Counter {
	RegisterMetrics()
	return unreadRecomputeTotal
}
