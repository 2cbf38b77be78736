package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded by the discovery pipeline.
const (
	DropDietary    = "dietary"
	DropIngredient = "ingredient"
	DropSeller     = "seller_missing"
	DropDistance   = "distance"
)

var (
	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meal_discovery_duration_seconds",
			Help:    "Duration of discover/recommend pipeline runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DiscoveryCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meal_discovery_candidates",
			Help:    "Candidates fetched from storage per pipeline run",
			Buckets: []float64{0, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"operation"},
	)

	DiscoveryDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meal_discovery_dropped_total",
			Help: "Candidates removed after the storage query, by reason",
		},
		[]string{"operation", "reason"},
	)

	ListingViews = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meal_listing_views_total",
			Help: "Single listing fetches that incremented a view counter",
		},
	)

	SellerCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meal_seller_cache_lookups_total",
			Help: "Seller cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObservePipeline records one pipeline run.
func ObservePipeline(operation string, start time.Time, candidates int) {
	DiscoveryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	DiscoveryCandidates.WithLabelValues(operation).Observe(float64(candidates))
}

// Dropped adds n dropped candidates for reason. n == 0 is a no-op.
func Dropped(operation, reason string, n int) {
	if n > 0 {
		DiscoveryDropped.WithLabelValues(operation, reason).Add(float64(n))
	}
}

// ObserveRequest records an API request.
func ObserveRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
