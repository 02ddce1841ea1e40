package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	Registry       *prometheus.Registry
	Reports        *prometheus.CounterVec
	ReportDuration prometheus.Histogram
	SourceErrors   prometheus.Counter
	BotVisitors    prometheus.Gauge
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker_query",
			Name:      "reports_total",
			Help:      "Dashboard reports served, by cache result.",
		}, []string{"cache"}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracker_query",
			Name:      "report_build_seconds",
			Help:      "Time spent computing a report on a cache miss.",
			Buckets:   prometheus.DefBuckets,
		}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracker_query",
			Name:      "source_errors_total",
			Help:      "Failed loads from the event source.",
		}),
		BotVisitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tracker_query",
			Name:      "excluded_bot_visitors",
			Help:      "Visitors excluded as bots in the current snapshot.",
		}),
	}
	reg.MustRegister(collectors.NewGoCollector(), c.Reports, c.ReportDuration, c.SourceErrors, c.BotVisitors)
	return c
}

func (c *Collectors) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
}
