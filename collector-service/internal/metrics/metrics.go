package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	Registry *prometheus.Registry
	Events   *prometheus.CounterVec
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker_collector",
			Name:      "events_total",
			Help:      "Tracker events received, by result (queued, rejected, failed).",
		}, []string{"result"}),
	}
	reg.MustRegister(collectors.NewGoCollector(), c.Events)
	return c
}

func (c *Collectors) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
}
