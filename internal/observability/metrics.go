package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "rides_created_total", Help: "Total rides created (offers and aggregations)"})
	SearchesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "searches_total", Help: "Total ride searches"})

	JoinRequestsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "join_requests_total", Help: "Total join requests submitted"})
	RequestsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "requests_approved_total", Help: "Total join requests approved"})
	RequestsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "requests_rejected_total", Help: "Total join requests rejected"})
	OverbookRefusedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "overbook_refused_total", Help: "Approvals refused because the ride was at capacity"})

	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "uniride", Name: "chat_messages_total", Help: "Total chat messages accepted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "uniride", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uniride",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
