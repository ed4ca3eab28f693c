// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	AvailabilityQueries prometheus.Counter
	BookingsCommitted   prometheus.Counter
	BookingsRejected    *prometheus.CounterVec
	CommitDuration      prometheus.Histogram

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		AvailabilityQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "bookd_availability_queries_total",
			Help: "Availability queries served.",
		}),
		BookingsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bookd_bookings_committed_total",
			Help: "Bookings committed successfully.",
		}),
		BookingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bookd_bookings_rejected_total",
			Help: "Booking commits rejected, by reason.",
		}, []string{"reason"}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookd_booking_commit_seconds",
			Help:    "Wall time of the transactional booking commit path.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
