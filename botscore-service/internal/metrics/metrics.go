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
	Scores   *prometheus.HistogramVec
	Errors   prometheus.Counter
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		Scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tracker_botscore",
			Name:      "risk_score",
			Help:      "Risk scores returned, by verdict (human, bot).",
			Buckets:   []float64{0, 10, 25, 50, 75, 90, 100},
		}, []string{"verdict"}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracker_botscore",
			Name:      "errors_total",
			Help:      "Score requests that failed.",
		}),
	}
	reg.MustRegister(collectors.NewGoCollector(), c.Scores, c.Errors)
	return c
}

func (c *Collectors) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
}
