package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/graphrag/helper"
)

// Fallback reasons used as metric label
const (
	FallbackUnsupported = "unsupported"
	FallbackFailed      = "failed"
	FallbackNoCID       = "no_cid"
)

// Metrics holds the Prometheus metrics of the optimizer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	earlyStops     prometheus.Counter
	fallbacks      *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	strategyTotal  *prometheus.CounterVec
}

// NewMetrics creates the optimizer metrics and registers them on registerer
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_optimizer_cache_hits_total",
			Help: "Total number of query cache hits",
		}, []string{"graph_type"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_optimizer_cache_misses_total",
			Help: "Total number of query cache misses",
		}, []string{"graph_type"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_optimizer_cache_evictions_total",
			Help: "Total number of query cache entries evicted or expired",
		}, []string{"graph_type"}),
		earlyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphrag_optimizer_early_stops_total",
			Help: "Total number of queries stopped after graph traversal",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_optimizer_traversal_fallbacks_total",
			Help: "Total number of graph traversal fallbacks by reason",
		}, []string{"reason"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphrag_optimizer_query_duration_seconds",
			Help:    "Query execution time in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"graph_type"}),
		strategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphrag_optimizer_strategy_total",
			Help: "Total number of graph traversals by strategy",
		}, []string{"strategy"}),
	}

	collectors := []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.cacheEvictions, m.earlyStops,
		m.fallbacks, m.queryDuration, m.strategyTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, helper.NewError("register optimizer metrics", err)
		}
	}

	return m, nil
}

func (m *Metrics) cacheHit(graphType string) {
	if m != nil {
		m.cacheHits.WithLabelValues(graphType).Inc()
	}
}

func (m *Metrics) cacheMiss(graphType string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(graphType).Inc()
	}
}

func (m *Metrics) cacheEviction(graphType string) {
	if m != nil {
		m.cacheEvictions.WithLabelValues(graphType).Inc()
	}
}

func (m *Metrics) earlyStop() {
	if m != nil {
		m.earlyStops.Inc()
	}
}

func (m *Metrics) fallback(reason string) {
	if m != nil {
		m.fallbacks.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeQuery(graphType string, seconds float64) {
	if m != nil {
		m.queryDuration.WithLabelValues(graphType).Observe(seconds)
	}
}

func (m *Metrics) strategyUsed(strategy string) {
	if m != nil {
		m.strategyTotal.WithLabelValues(strategy).Inc()
	}
}
