package prometheus

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-wallet-provisioning/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var labelNames = []string{"operation", "status", "status_tag", "error_kind"}

// Recorder exports service metrics as two families keyed by operation:
// a call counter and a duration histogram in seconds.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

type Option func(*recorderOptions)

type recorderOptions struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
}

func WithNamespace(namespace string) Option {
	return func(o *recorderOptions) {
		o.namespace = strings.TrimSpace(namespace)
	}
}

func WithBuckets(buckets []float64) Option {
	return func(o *recorderOptions) {
		if len(buckets) > 0 {
			o.buckets = append([]float64(nil), buckets...)
		}
	}
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *recorderOptions) {
		o.registry = registry
	}
}

func NewRecorder(opts ...Option) (*Recorder, error) {
	cfg := recorderOptions{
		namespace: "provisioning",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "operations_total",
			Help:      "Total number of wallet operations by outcome",
		},
		labelNames,
	)
	durations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of wallet operations until settlement",
			Buckets:   cfg.buckets,
		},
		labelNames,
	)
	if err := cfg.registry.Register(operations); err != nil {
		return nil, err
	}
	if err := cfg.registry.Register(durations); err != nil {
		cfg.registry.Unregister(operations)
		return nil, err
	}
	return &Recorder{
		registry:   cfg.registry,
		operations: operations,
		durations:  durations,
	}, nil
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	r.operations.With(labelsFor(name, tags)).Add(float64(value))
}

// ObserveHistogram takes milliseconds, as reported by the service.
func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	r.durations.With(labelsFor(name, tags)).Observe(value / 1000)
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func labelsFor(name string, tags map[string]string) prometheus.Labels {
	labels := prometheus.Labels{}
	for _, key := range labelNames {
		labels[key] = strings.TrimSpace(tags[key])
	}
	if labels["operation"] == "" {
		labels["operation"] = operationFromName(name)
	}
	return labels
}

// operationFromName turns "provisioning.get_token_status.total" into
// "get_token_status".
func operationFromName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "provisioning.")
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		return "unknown"
	}
	return name
}

var _ core.MetricsRecorder = (*Recorder)(nil)
