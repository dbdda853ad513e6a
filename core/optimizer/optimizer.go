package optimizer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/graphrag/core/stats"
	"github.com/siherrmann/graphrag/model"
)

const (
	// adaptAfterQueries is the number of queries needed before parameters are tuned
	adaptAfterQueries  = 10
	minVectorResults   = 3
	maxVectorResults   = 10
	minSimilarityFloor = 0.3
	// keyVectorPrefix is the number of vector components used in cache keys
	keyVectorPrefix = 5
)

// OptimizedParams are the numeric search parameters chosen for a query
type OptimizedParams struct {
	MaxVectorResults  int
	MaxTraversalDepth int
	EdgeTypes         []string
	MinSimilarity     float64
	Weights           model.Weights
}

// Optimizer tunes search parameters from query statistics and caches query
// results. There is one Optimizer per graph type.
type Optimizer struct {
	graphType    model.GraphType
	vectorWeight float64
	graphWeight  float64

	cacheEnabled   bool
	cacheTTL       time.Duration
	cacheSizeLimit int
	cache          *queryCache

	stats   *stats.QueryStats
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithGraphType sets the graph type the optimizer serves, used in logs and metrics
func WithGraphType(graphType model.GraphType) Option {
	return func(o *Optimizer) {
		o.graphType = graphType
	}
}

// WithWeights sets the vector and graph weights used for ranking
func WithWeights(vector, graph float64) Option {
	return func(o *Optimizer) {
		o.vectorWeight = vector
		o.graphWeight = graph
	}
}

// WithCache configures the query result cache
func WithCache(enabled bool, ttl time.Duration, sizeLimit int) Option {
	return func(o *Optimizer) {
		o.cacheEnabled = enabled
		o.cacheTTL = ttl
		o.cacheSizeLimit = sizeLimit
	}
}

// WithConfig applies weights and cache settings from a config section
func WithConfig(config *model.GraphOptimizerConfig) Option {
	return func(o *Optimizer) {
		o.vectorWeight = config.GetVectorWeight()
		o.graphWeight = config.GetGraphWeight()
		o.cacheEnabled = config.GetCacheEnabled()
		o.cacheTTL = config.GetCacheTTL()
		o.cacheSizeLimit = config.GetCacheSizeLimit()
	}
}

// WithQueryStats shares query statistics between optimizers
func WithQueryStats(s *stats.QueryStats) Option {
	return func(o *Optimizer) {
		o.stats = s
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		o.log = logger
	}
}

// WithMetrics sets the Prometheus metrics, nil disables them
func WithMetrics(m *Metrics) Option {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

// WithClock replaces the time source of the cache
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		o.now = now
	}
}

// NewOptimizer creates an optimizer for general graphs:
// weights 0.7/0.3, cache enabled with a 300s TTL and 100 entries.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{
		graphType:      model.GraphTypeGeneral,
		vectorWeight:   0.7,
		graphWeight:    0.3,
		cacheEnabled:   true,
		cacheTTL:       300 * time.Second,
		cacheSizeLimit: 100,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stats == nil {
		o.stats = stats.NewQueryStats()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.cache = newQueryCache(o.cacheTTL, o.cacheSizeLimit, o.now)
	return o
}

// GraphType returns the graph type the optimizer serves
func (o *Optimizer) GraphType() model.GraphType { return o.graphType }

// Weights returns the configured ranking weights
func (o *Optimizer) Weights() model.Weights {
	return model.Weights{Vector: o.vectorWeight, Graph: o.graphWeight}
}

// CacheEnabled reports whether results are cached
func (o *Optimizer) CacheEnabled() bool { return o.cacheEnabled }

// Stats returns the query statistics the optimizer reads and writes
func (o *Optimizer) Stats() *stats.QueryStats { return o.stats }

// OptimizeQuery tunes the search parameters of a query.
//
// Parameters are only adapted once ten queries have been recorded. Slow queries
// get fewer vector results (not below 3), fast ones more (not above 10). The
// traversal depth becomes the most common depth of the recorded patterns and a
// low cache hit rate lowers the similarity threshold (not below 0.3).
//
// The chosen parameters are recorded as a pattern, so they feed back into the
// statistics that drive the next decision.
func (o *Optimizer) OptimizeQuery(vector []float32, maxVectorResults, maxTraversalDepth int, edgeTypes []string, minSimilarity float64) *OptimizedParams {
	params := &OptimizedParams{
		MaxVectorResults:  maxVectorResults,
		MaxTraversalDepth: maxTraversalDepth,
		EdgeTypes:         append([]string(nil), edgeTypes...),
		MinSimilarity:     minSimilarity,
		Weights:           o.Weights(),
	}

	if o.stats.QueryCount() >= adaptAfterQueries {
		avg := o.stats.AvgQueryTime()
		if avg > 1.0 && params.MaxVectorResults > minVectorResults {
			params.MaxVectorResults = max(minVectorResults, params.MaxVectorResults-2)
		} else if avg < 0.1 && params.MaxVectorResults < maxVectorResults {
			params.MaxVectorResults = min(maxVectorResults, params.MaxVectorResults+2)
		}

		if depth, ok := o.commonDepth(); ok {
			params.MaxTraversalDepth = depth
		}

		if o.stats.CacheHitRate() < 0.3 {
			params.MinSimilarity = max(minSimilarityFloor, params.MinSimilarity-0.1)
		}
	}

	o.stats.RecordQueryPattern(stats.QueryPattern{
		MaxVectorResults:  params.MaxVectorResults,
		MaxTraversalDepth: params.MaxTraversalDepth,
		EdgeTypes:         params.EdgeTypes,
		MinSimilarity:     params.MinSimilarity,
	})

	return params
}

// commonDepth returns the most frequent traversal depth among the common
// patterns, weighted by how often each pattern was seen. Ties go to the
// depth of the more common pattern.
func (o *Optimizer) commonDepth() (int, bool) {
	patterns := o.stats.CommonPatterns(5)
	if len(patterns) == 0 {
		return 0, false
	}

	counts := map[int]int{}
	best, bestCount := 0, 0
	for _, p := range patterns {
		depth := p.Pattern.MaxTraversalDepth
		counts[depth] += p.Count
		if counts[depth] > bestCount {
			best, bestCount = depth, counts[depth]
		}
	}
	return best, true
}

// QueryKey builds the cache key of a query from the first components of its
// vector and the search parameters.
func (o *Optimizer) QueryKey(vector []float32, maxVectorResults, maxTraversalDepth int, edgeTypes []string, minSimilarity float64) string {
	prefix := vector
	if len(prefix) > keyVectorPrefix {
		prefix = prefix[:keyVectorPrefix]
	}
	return fmt.Sprintf("%v/%d|%d|%d|%q|%g", prefix, len(vector), maxVectorResults, maxTraversalDepth, edgeTypes, minSimilarity)
}

// IsInCache reports whether a live entry exists for key. Expired entries are removed.
func (o *Optimizer) IsInCache(key string) bool {
	ok, expired := o.cache.contains(key)
	if expired {
		o.metrics.cacheEviction(string(o.graphType))
	}
	return ok
}

// GetFromCache returns the cached results for key or ErrCacheMiss.
// A hit is counted in the query statistics.
func (o *Optimizer) GetFromCache(key string) ([]model.Result, error) {
	results, ok := o.cache.get(key)
	if !ok {
		o.metrics.cacheMiss(string(o.graphType))
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}

	o.stats.RecordCacheHit()
	o.metrics.cacheHit(string(o.graphType))
	return results, nil
}

// AddToCache stores results under key. When the cache is full the oldest entry is evicted.
func (o *Optimizer) AddToCache(key string, results []model.Result) {
	if evicted := o.cache.add(key, results); evicted != "" {
		o.metrics.cacheEviction(string(o.graphType))
		o.log.Debug("Evicted query cache entry", slog.String("graph_type", string(o.graphType)))
	}
}

// CacheLen returns the number of cached entries, expired ones included
func (o *Optimizer) CacheLen() int {
	return o.cache.len()
}
