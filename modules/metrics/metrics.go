// Package metrics records pipeline activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/webmod"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements webmod.RequestRecorder on its own registry, so
// several applications in one process do not collide.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	running         prometheus.GaugeFunc
}

var _ webmod.RequestRecorder = (*Recorder)(nil)

// Options configures a Recorder.
type Options struct {
	Namespace string
	Buckets   []float64
	// Lifecycle, when set, exports the number of running units of work,
	// including timed-out handlers that have not returned yet.
	Lifecycle *webmod.Lifecycle
	// ProcessCollectors adds the Go runtime and process collectors.
	ProcessCollectors bool
}

// New creates a Recorder and registers its collectors.
func New(opts Options) *Recorder {
	if opts.Namespace == "" {
		opts.Namespace = "webmod"
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: opts.Namespace,
				Name:      "requests_total",
				Help:      "Total number of requests handled by the pipeline",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: opts.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Pipeline latency in seconds",
				Buckets:   opts.Buckets,
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently inside the pipeline",
		}),
	}
	r.registry.MustRegister(r.requestsTotal, r.requestDuration, r.inFlight)

	if opts.Lifecycle != nil {
		lifecycle := opts.Lifecycle
		r.running = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "work_running",
			Help:      "Units of work still running, including abandoned timed-out handlers",
		}, func() float64 { return float64(lifecycle.Running()) })
		r.registry.MustRegister(r.running)
	}
	if opts.ProcessCollectors {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// ObserveRequest implements webmod.RequestRecorder.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AddInFlight implements webmod.RequestRecorder.
func (r *Recorder) AddInFlight(delta int) {
	r.inFlight.Add(float64(delta))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
