package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "requests_submitted_total", Help: "Ride requests created"})
	OffersFannedOut   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_fanned_out_total", Help: "Offer notifications emitted to candidate drivers"})
	RequestsAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "requests_accepted_total", Help: "Requests won by a driver"})
	AcceptConflicts   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_conflicts_total", Help: "Accept attempts that lost the race or hit a state guard"})
	RequestsCanceled  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "requests_canceled_total", Help: "Requests canceled by their rider"})
	RequestsExpired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "requests_expired_total", Help: "Requests reaped by the expiry sweeper"})
	RidesCompleted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_completed_total", Help: "Rides driven to completion"})
	RidesCanceled     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_canceled_total", Help: "Accepted rides canceled before start"})

	RiderSockets  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "rider_sockets", Help: "Live rider connections"})
	DriverSockets = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "driver_sockets", Help: "Live driver connections"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch",
		Name:      "sweep_duration_seconds",
		Help:      "Expiry sweep duration",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
