// Package prometheus exposes engine metrics through client_golang.
package prometheus

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-deliveries/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "deliveries"

// DefaultLabels are the tag keys kept as labels. Other tags are dropped.
var DefaultLabels = []string{"operation", "status", "account_key", "trigger", "provider_id"}

// DefaultBuckets fit operation durations in milliseconds.
var DefaultBuckets = []float64{5, 25, 100, 250, 1000, 2500, 10000, 30000, 120000}

type Options struct {
	Namespace string
	Labels    []string
	Buckets   []float64
	Registry  *prom.Registry
}

// Recorder implements core.MetricsRecorder. Vectors are created on first use
// per metric name and registered with the configured registry.
type Recorder struct {
	namespace string
	labels    []string
	buckets   []float64
	registry  *prom.Registry

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

func NewRecorder(opts Options) *Recorder {
	namespace := sanitizeName(opts.Namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	registry := opts.Registry
	if registry == nil {
		registry = prom.NewRegistry()
	}
	return &Recorder{
		namespace:  namespace,
		labels:     append([]string(nil), labels...),
		buckets:    append([]float64(nil), buckets...),
		registry:   registry,
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
}

func (r *Recorder) Registry() *prom.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(name)
	if vec == nil {
		return
	}
	vec.With(r.labelValues(tags)).Observe(value)
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	metric := r.metricName(name, "_total")
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: metric,
		Help: "Counter for " + strings.TrimSpace(name),
	}, r.labels)
	if err := r.registry.Register(vec); err != nil {
		if existing, ok := err.(prom.AlreadyRegisteredError); ok {
			if registered, ok := existing.ExistingCollector.(*prom.CounterVec); ok {
				vec = registered
			}
		} else {
			return nil
		}
	}
	r.counters[metric] = vec
	return vec
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	metric := r.metricName(name, "")
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    metric,
		Help:    "Histogram for " + strings.TrimSpace(name),
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registry.Register(vec); err != nil {
		if existing, ok := err.(prom.AlreadyRegisteredError); ok {
			if registered, ok := existing.ExistingCollector.(*prom.HistogramVec); ok {
				vec = registered
			}
		} else {
			return nil
		}
	}
	r.histograms[metric] = vec
	return vec
}

func (r *Recorder) labelValues(tags map[string]string) prom.Labels {
	labels := make(prom.Labels, len(r.labels))
	for _, key := range r.labels {
		labels[key] = strings.TrimSpace(tags[key])
	}
	return labels
}

// metricName turns "deliveries.reconcile.total" into
// "deliveries_reconcile_total", prefixing the namespace when missing.
func (r *Recorder) metricName(name string, suffix string) string {
	metric := sanitizeName(name)
	if metric == "" {
		return ""
	}
	if !strings.HasPrefix(metric, r.namespace+"_") {
		metric = r.namespace + "_" + metric
	}
	if suffix != "" && !strings.HasSuffix(metric, suffix) {
		metric += suffix
	}
	return metric
}

func sanitizeName(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
