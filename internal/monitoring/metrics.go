// Package monitoring exposes Prometheus metrics and the OpenTelemetry tracer
// provider used by the token service and the cache accessor.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/trustkit/pkg/cache"
	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/token"
)

var (
	_ token.Recorder = (*Metrics)(nil)
	_ cache.Recorder = (*Metrics)(nil)
)

// Metrics holds the toolkit counters.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheLoads     *prometheus.CounterVec
	TokensCreated  *prometheus.CounterVec
	TokensVerified *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the counters and registers them on reg. A nil reg uses a
// fresh registry; an empty namespace uses the default.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = constants.DefaultMetricsNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache reads served from the store.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache reads that found no value.",
		}),
		CacheLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_loads_total",
			Help:      "Total number of supplier calls by outcome.",
		}, []string{"result"}),
		TokensCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_created_total",
			Help:      "Total number of token creations by outcome.",
		}, []string{"result"}),
		TokensVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_verified_total",
			Help:      "Total number of token verifications by outcome.",
		}, []string{"result"}),
		gatherer: reg,
	}
}

func (m *Metrics) CacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

func (m *Metrics) CacheLoad(result string) {
	m.CacheLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenCreated(result string) {
	m.TokensCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenVerified(result string) {
	m.TokensVerified.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
