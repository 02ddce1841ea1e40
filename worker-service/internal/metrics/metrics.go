// Package metrics holds the worker's Prometheus collectors.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

type Collectors struct {
	Registry      *prometheus.Registry
	Events        *prometheus.CounterVec
	Batches       prometheus.Counter
	BatchDuration prometheus.Histogram
	FeedPolls     *prometheus.CounterVec
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker_worker",
			Name:      "events_total",
			Help:      "Tracker events seen by the worker, by outcome.",
		}, []string{"source", "outcome"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracker_worker",
			Name:      "batches_total",
			Help:      "Batches persisted to Postgres.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracker_worker",
			Name:      "batch_duration_seconds",
			Help:      "Time spent persisting one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker_worker",
			Name:      "feed_polls_total",
			Help:      "Feed fetches, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Events,
		c.Batches,
		c.BatchDuration,
		c.FeedPolls,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
}
