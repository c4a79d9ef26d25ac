// Package metrics exports broker activity as Prometheus metrics.
package metrics

import (
	"github.com/casualjim/strix"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "strix"

// Collector is a strix.Observer that counts publishes, deliveries, drops and
// removed registrations. Install it with strix.WithObserver.
type Collector struct {
	published *prometheus.CounterVec
	handlers  prometheus.Histogram
	delivered *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	dropped   *prometheus.CounterVec
	removed   *prometheus.CounterVec
}

var _ strix.Observer = (*Collector)(nil)

// New registers the broker metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "events_published_total",
				Help:      "Events published, by topic and delivery mode",
			},
			[]string{"topic", "mode"},
		),
		handlers: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "event_handlers",
				Help:      "Handlers resolved per published event",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),
		delivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "deliveries_total",
				Help:      "Handler deliveries, by subscriber and outcome",
			},
			[]string{"subscriber", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Time spent in handlers",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"subscriber"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "deliveries_dropped_total",
				Help:      "Deliveries the stage executor refused",
			},
			[]string{"subscriber"},
		),
		removed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "registrations_removed_total",
				Help:      "Registrations the broker removed on its own",
			},
			[]string{"subscriber"},
		),
	}
}

func (c *Collector) EventPublished(topic string, handlers int, async bool) {
	mode := "sync"
	if async {
		mode = "async"
	}
	c.published.WithLabelValues(topic, mode).Inc()
	c.handlers.Observe(float64(handlers))
}

func (c *Collector) EventDelivered(_ string, subscriber string, res strix.Result) {
	c.delivered.WithLabelValues(subscriber, res.Outcome.String()).Inc()
	if res.Outcome != strix.Filtered {
		c.duration.WithLabelValues(subscriber).Observe(res.Duration.Seconds())
	}
}

func (c *Collector) EventDropped(_ string, subscriber string, _ error) {
	c.dropped.WithLabelValues(subscriber).Inc()
}

func (c *Collector) RegistrationRemoved(subscriber string, _ error) {
	c.removed.WithLabelValues(subscriber).Inc()
}
