// README: Prometheus metrics for the carpool service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesReturned = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "candidates_returned_total", Help: "Candidates returned by matching calls"})
	SimilarityFallback = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "similarity_fallback_total", Help: "Path similarity lookups that fell back to the text heuristic"})

	InvitesCreated    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "invites_created_total", Help: "Invites issued"})
	InviteResponses   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "carpool", Name: "invite_responses_total", Help: "Invite responses by resulting consent status"}, []string{"status"})
	MergeAttempts     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "carpool", Name: "merge_attempts_total", Help: "Merge attempts by outcome"}, []string{"result"})
	Unmerges          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "unmerges_total", Help: "Groups reverted"})
	CostAllocations   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "carpool", Name: "cost_allocations_total", Help: "Cost allocations by mode"}, []string{"mode"})
	RouteCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "carpool", Name: "route_cache_lookups_total", Help: "Route cache lookups by result"}, []string{"result"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
