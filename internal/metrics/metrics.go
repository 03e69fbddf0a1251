package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientevip_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientevip_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	MembershipsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientevip_memberships_created_total",
			Help: "Total number of memberships created",
		},
		[]string{"store_id"},
	)

	MembershipTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientevip_membership_transitions_total",
			Help: "Total number of explicit membership transitions",
		},
		[]string{"transition"},
	)

	CodeCollisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientevip_code_collisions_total",
			Help: "Total number of VIP code collisions on issuance",
		},
		[]string{"kind"},
	)

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientevip_redemption_attempts_total",
			Help: "Redemption authorizations by outcome",
		},
		[]string{"outcome", "variant"},
	)

	AuthorizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clientevip_authorize_duration_seconds",
			Help:    "Redemption authorization latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatusCacheBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clientevip_status_cache_buffered",
			Help: "Status cache writes waiting in the local buffer",
		},
	)
)

func RecordHTTPRequest(method, route, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

func RecordMembershipCreated(storeID string) {
	MembershipsCreatedTotal.WithLabelValues(storeID).Inc()
}

func RecordTransition(transition string) {
	MembershipTransitionsTotal.WithLabelValues(transition).Inc()
}

func RecordCodeCollision(kind string) {
	CodeCollisionsTotal.WithLabelValues(kind).Inc()
}

// RecordRedemption counts an authorization. outcome is "granted" or the rejection kind.
func RecordRedemption(outcome, variant string, seconds float64) {
	if variant == "" {
		variant = "unknown"
	}
	RedemptionsTotal.WithLabelValues(outcome, variant).Inc()
	AuthorizeDuration.Observe(seconds)
}

func SetStatusCacheBuffered(n int) {
	StatusCacheBuffered.Set(float64(n))
}
