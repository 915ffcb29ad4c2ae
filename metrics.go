package mediate

import (
	"context"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports dispatch counts and latencies to Prometheus. Wire it into
// a mediator with WithMetrics.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds the dispatch metric set on the given registerer, which
// is usually prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediate",
			Name:      "requests_total",
			Help:      "Requests dispatched, by request type and outcome.",
		}, []string{"request", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediate",
			Name:      "request_duration_seconds",
			Help:      "Request dispatch latency, by request type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request"}),
	}
}

// WithMetrics registers a behavior that observes every dispatch into the
// metric set.
func WithMetrics(mx *Metrics) Option {
	return func(m *Mediator) {
		if mx != nil {
			m.registry.add(entryKey{kind: kindBehavior}, mx.behaviorFactory())
		}
	}
}

func (mx *Metrics) behaviorFactory() BehaviorFactory {
	return func(requestType, responseType reflect.Type) AnyBehavior {
		name := requestType.String()
		return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
			start := time.Now()
			res, err := next(ctx)
			mx.duration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			mx.requests.WithLabelValues(name, outcome).Inc()
			return res, err
		})
	}
}

// ContextCollector exposes one pipeline context's aggregates as Prometheus
// metrics, for hosts that keep a long-lived scope (a worker loop, a batch
// run) and want its counters scraped.
type ContextCollector struct {
	pc *PipelineContext

	metricDesc *prometheus.Desc
	timingDesc *prometheus.Desc
}

// NewContextCollector wraps a pipeline context for registration with a
// prometheus.Registerer.
func NewContextCollector(pc *PipelineContext) *ContextCollector {
	return &ContextCollector{
		pc: pc,
		metricDesc: prometheus.NewDesc(
			"mediate_context_metric_total",
			"Totals of pipeline context metric aggregates.",
			[]string{"name"}, prometheus.Labels{"context_id": pc.ID()},
		),
		timingDesc: prometheus.NewDesc(
			"mediate_context_timing_seconds",
			"Summed durations of pipeline context timings.",
			[]string{"name"}, prometheus.Labels{"context_id": pc.ID()},
		),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *ContextCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.metricDesc
	ch <- c.timingDesc
}

// Collect implements the prometheus.Collector interface.
func (c *ContextCollector) Collect(ch chan<- prometheus.Metric) {
	for name, m := range c.pc.Metrics() {
		ch <- prometheus.MustNewConstMetric(c.metricDesc, prometheus.CounterValue, m.Total, name)
	}
	sums := make(map[string]float64)
	for _, t := range c.pc.Timings() {
		sums[t.Name] += t.Duration.Seconds()
	}
	for name, total := range sums {
		ch <- prometheus.MustNewConstMetric(c.timingDesc, prometheus.CounterValue, total, name)
	}
}
