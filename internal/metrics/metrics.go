// Package metrics exposes navigator activity as Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jask/dexnav/internal/navigator"
)

const namespace = "dexnav"

// Collector implements navigator.Metrics.
type Collector struct {
	registry *prometheus.Registry

	commands      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	staleDiscards prometheus.Counter
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
}

var _ navigator.Metrics = (*Collector)(nil)

// New registers the collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Navigation commands by name and whether they were accepted.",
		}, []string{"command", "accepted"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Resolved fetches by outcome.",
		}, []string{"outcome"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_discards_total",
			Help:      "Fetch results dropped because a newer fetch had started.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time from fetch start to resolution.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetches_in_flight",
			Help:      "Fetches that have not returned, superseded ones included.",
		}),
	}
	reg.MustRegister(
		c.commands,
		c.fetches,
		c.staleDiscards,
		c.duration,
		c.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) CommandIssued(cmd navigator.Command, accepted bool) {
	c.commands.WithLabelValues(string(cmd), strconv.FormatBool(accepted)).Inc()
}

func (c *Collector) FetchStarted() { c.inFlight.Inc() }

func (c *Collector) FetchResolved(r navigator.Resolution) {
	outcome := string(r.Outcome)
	c.fetches.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	if r.Outcome == navigator.OutcomeStale {
		c.staleDiscards.Inc()
	}
	c.inFlight.Dec()
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
