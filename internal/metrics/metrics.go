// Package metrics holds the Prometheus collectors for chat turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adminchat"

// Recorder records turn lifecycle metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry  *prometheus.Registry
	active    prometheus.Gauge
	turns     *prometheus.CounterVec
	fragments prometheus.Counter
	bytes     prometheus.Counter
	duration  *prometheus.HistogramVec
	firstByte prometheus.Histogram
}

// New builds a Recorder on its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turns_active",
			Help:      "Chat turns currently streaming.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finished chat turns by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Text fragments delivered to consumers.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Reply bytes read from the backend.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		firstByte: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_first_fragment_seconds",
			Help:      "Time from turn start to the first fragment.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		r.active, r.turns, r.fragments, r.bytes, r.duration, r.firstByte,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) TurnStarted() {
	if r == nil {
		return
	}
	r.active.Inc()
}

func (r *Recorder) FirstFragment(elapsed time.Duration) {
	if r == nil {
		return
	}
	r.firstByte.Observe(elapsed.Seconds())
}

// TurnFinished records one terminal outcome.
func (r *Recorder) TurnFinished(outcome, kind string, fragments int, bytes int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.active.Dec()
	r.turns.WithLabelValues(outcome, kind).Inc()
	r.fragments.Add(float64(fragments))
	r.bytes.Add(float64(bytes))
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
