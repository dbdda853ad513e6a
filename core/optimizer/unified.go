package optimizer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/siherrmann/graphrag/core/budget"
	"github.com/siherrmann/graphrag/core/rewriter"
	"github.com/siherrmann/graphrag/core/stats"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/siherrmann/graphrag/core/optimizer"

// Defaults used when a query does not set a search parameter
const (
	defaultMaxVectorResults = 5
	defaultTraversalDepth   = 2
	defaultMinSimilarity    = 0.5
)

var (
	wikipediaKeywords = []string{"wikipedia", "wikidata", "dbpedia"}
	ipldKeywords      = []string{"ipld", "content-addressed", "cid", "dag", "ipfs"}
)

// UnifiedConfig configures a Unified optimizer. The zero value is valid.
type UnifiedConfig struct {
	// Optimizers holds the per graph type settings, nil uses the defaults
	Optimizers *model.OptimizerConfig
	Logger     *slog.Logger
	// Metrics is optional, nil disables metrics
	Metrics *Metrics
	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider
	// Now replaces the time source of the query caches
	Now func() time.Time
}

// Unified plans and executes queries over general, Wikipedia style and IPLD graphs.
// It owns the statistics, caches and budget shared by all queries and is safe for
// concurrent use. Budget consumption is tracked per instance, so reports are only
// exact when queries run one at a time.
type Unified struct {
	queryStats     *stats.QueryStats
	traversalStats *stats.TraversalStats
	strategies     *stats.StrategyPerformance
	rewriter       *rewriter.Rewriter
	budget         *budget.Manager

	base       *Optimizer
	optimizers map[model.GraphType]*Optimizer

	graphInfoMu sync.RWMutex
	graphInfo   *model.GraphInfo

	importanceMu sync.RWMutex
	importance   map[string]float64

	metrics *Metrics
	tracer  trace.Tracer
	log     *slog.Logger
}

// NewUnified creates a unified optimizer with one specialised optimizer per graph type
func NewUnified(config UnifiedConfig) *Unified {
	optimizerConfig := model.DefaultOptimizerConfig()
	if config.Optimizers != nil {
		optimizerConfig = *config.Optimizers
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracerProvider := config.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	u := &Unified{
		queryStats:     stats.NewQueryStats(),
		traversalStats: stats.NewTraversalStats(),
		strategies:     stats.NewStrategyPerformance(),
		budget:         budget.NewManager(logger),
		optimizers:     map[model.GraphType]*Optimizer{},
		importance:     map[string]float64{},
		metrics:        config.Metrics,
		tracer:         tracerProvider.Tracer(tracerName),
		log:            logger,
	}
	u.rewriter = rewriter.NewRewriter(u.traversalStats, logger)

	for _, graphType := range []model.GraphType{model.GraphTypeGeneral, model.GraphTypeWikipedia, model.GraphTypeIPLD} {
		opts := []Option{
			WithGraphType(graphType),
			WithConfig(optimizerConfig.For(graphType)),
			WithQueryStats(u.queryStats),
			WithLogger(logger.With(slog.String("graph_type", string(graphType)))),
			WithMetrics(config.Metrics),
		}
		if config.Now != nil {
			opts = append(opts, WithClock(config.Now))
		}
		u.optimizers[graphType] = NewOptimizer(opts...)
	}
	u.base = u.optimizers[model.GraphTypeGeneral]

	if optimizerConfig.GraphInfo != nil {
		u.graphInfo = optimizerConfig.GraphInfo.Clone()
	} else {
		u.graphInfo = &model.GraphInfo{GraphType: model.GraphTypeGeneral, GraphDensity: 0.5}
	}

	return u
}

// QueryStats returns the statistics shared by all specialised optimizers
func (u *Unified) QueryStats() *stats.QueryStats { return u.queryStats }

// TraversalStats returns the traversal statistics shared with the rewriter
func (u *Unified) TraversalStats() *stats.TraversalStats { return u.traversalStats }

// StrategyPerformance returns the per strategy performance tracker
func (u *Unified) StrategyPerformance() *stats.StrategyPerformance { return u.strategies }

// Budget returns the budget manager
func (u *Unified) Budget() *budget.Manager { return u.budget }

// Optimizer returns the specialised optimizer of a graph type, the general one for unknown types
func (u *Unified) Optimizer(graphType model.GraphType) *Optimizer {
	if o, ok := u.optimizers[graphType]; ok {
		return o
	}
	return u.base
}

// DetectGraphType returns the explicit graph type of a query or guesses it from
// keywords in the query. Unknown queries are general.
func (u *Unified) DetectGraphType(q *model.Query) model.GraphType {
	if q == nil {
		return model.GraphTypeGeneral
	}
	if q.GraphType.Valid() {
		return q.GraphType
	}

	s := q.String()
	if containsAny(s, wikipediaKeywords) {
		return model.GraphTypeWikipedia
	}
	if containsAny(s, ipldKeywords) {
		return model.GraphTypeIPLD
	}
	return model.GraphTypeGeneral
}

// SetGraphInfo replaces the graph metadata used by the rewriter, e.g. with
// edge selectivities measured on the store. Nil is ignored.
func (u *Unified) SetGraphInfo(info *model.GraphInfo) {
	if info == nil {
		return
	}
	u.graphInfoMu.Lock()
	defer u.graphInfoMu.Unlock()
	u.graphInfo = info.Clone()
}

// graphInfoFor returns the graph metadata used for a graph type
func (u *Unified) graphInfoFor(graphType model.GraphType) *model.GraphInfo {
	u.graphInfoMu.RLock()
	info := u.graphInfo.Clone()
	configured := u.graphInfo.GraphType
	u.graphInfoMu.RUnlock()

	if graphType == model.GraphTypeIPLD && configured != model.GraphTypeIPLD {
		info.GraphDensity = model.DefaultIPLDGraphDensity
	}
	info.GraphType = graphType
	return info
}

// EstimateQueryComplexity classifies a query as low (<5), medium (<10) or high.
// The rewriter (<5/<12) and the budget manager (<5/<10/<20) classify the same
// score with their own thresholds.
func (u *Unified) EstimateQueryComplexity(q *model.Query) model.Complexity {
	score := q.ComplexityScore()
	switch {
	case score < 5:
		return model.ComplexityLow
	case score < 10:
		return model.ComplexityMedium
	default:
		return model.ComplexityHigh
	}
}

// OptimizeQuery builds the execution plan of a query.
//
// The query is shaped for its graph type, rewritten, numerically tuned by the
// specialised optimizer when it carries a vector and given a budget. The
// processor is only used to score the importance of the query's entity ids
// and may be nil.
func (u *Unified) OptimizeQuery(ctx context.Context, q *model.Query, priority model.Priority, processor GraphProcessor) (*model.QueryPlan, error) {
	if q == nil {
		return nil, helper.NewError("optimize query", ErrNilQuery)
	}

	ctx, span := u.tracer.Start(ctx, "Unified.OptimizeQuery",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("priority", string(priority))),
	)
	defer span.End()

	graphType := u.DetectGraphType(q)
	info := u.graphInfoFor(graphType)
	opt := u.Optimizer(graphType)

	var entityScores map[string]float64
	if processor != nil && len(q.EntityIDs) > 0 {
		entityScores = make(map[string]float64, len(q.EntityIDs))
		for _, id := range q.EntityIDs {
			entityScores[id] = u.CalculateEntityImportance(ctx, id, processor)
		}
	}

	shaped := q
	switch graphType {
	case model.GraphTypeIPLD:
		shaped = u.OptimizeIPLDTraversal(q, entityScores)
	case model.GraphTypeWikipedia:
		shaped = u.OptimizeWikipediaTraversal(q, entityScores)
	}

	rewritten := u.rewriter.RewriteQuery(shaped, info, entityScores)
	if graphType == model.GraphTypeIPLD {
		t := rewritten.EnsureTraversal()
		t.UseCIDPathOptimization = true
		t.EnablePathCaching = true
		t.Strategy = model.StrategyDAGTraversal
	}

	// The plan query is a copy of the rewritten query, so the traversal
	// settings survive numeric tuning.
	planQuery := rewritten.Clone()
	weights := model.Weights{Vector: 0.7, Graph: 0.3}
	if rewritten.HasVector() {
		params := opt.OptimizeQuery(
			rewritten.QueryVector,
			searchTopK(rewritten),
			traversalDepth(rewritten),
			edgeTypes(rewritten),
			minSimilarity(rewritten),
		)
		planQuery.MaxVectorResults = params.MaxVectorResults
		planQuery.MaxTraversalDepth = params.MaxTraversalDepth
		planQuery.EdgeTypes = params.EdgeTypes
		planQuery.MinSimilarity = model.Float64(params.MinSimilarity)
		weights = params.Weights
	}

	allocated := u.budget.AllocateBudget(rewritten, priority)

	strategy := model.StrategyBreadthFirst
	if planQuery.Traversal != nil && planQuery.Traversal.Strategy != "" {
		strategy = planQuery.Traversal.Strategy
	}

	plan := &model.QueryPlan{
		Query:     planQuery,
		Weights:   weights,
		Budget:    allocated,
		GraphType: graphType,
		Statistics: model.PlanStatistics{
			AvgQueryTime: opt.Stats().AvgQueryTime(),
			CacheHitRate: opt.Stats().CacheHitRate(),
		},
		Caching:           model.Caching{Enabled: opt.CacheEnabled()},
		TraversalStrategy: strategy,
	}
	if opt.CacheEnabled() && planQuery.HasVector() {
		plan.Caching.Key = opt.QueryKey(
			planQuery.QueryVector,
			planQuery.MaxVectorResults,
			planQuery.MaxTraversalDepth,
			planQuery.EdgeTypes,
			*planQuery.MinSimilarity,
		)
	}

	span.SetAttributes(
		attribute.String("graph_type", string(graphType)),
		attribute.String("strategy", string(strategy)),
	)
	u.log.Debug(
		"Planned query",
		slog.String("graph_type", string(graphType)),
		slog.String("strategy", string(strategy)),
		slog.String("priority", string(priority)),
	)

	return plan, nil
}

func searchTopK(q *model.Query) int {
	if q.MaxVectorResults > 0 {
		return q.MaxVectorResults
	}
	if q.VectorParams != nil && q.VectorParams.TopK > 0 {
		return q.VectorParams.TopK
	}
	return defaultMaxVectorResults
}

func traversalDepth(q *model.Query) int {
	if q.MaxTraversalDepth > 0 {
		return q.MaxTraversalDepth
	}
	if q.Traversal != nil && q.Traversal.MaxDepth > 0 {
		return q.Traversal.MaxDepth
	}
	return defaultTraversalDepth
}

func edgeTypes(q *model.Query) []string {
	if q.EdgeTypes != nil {
		return q.EdgeTypes
	}
	if q.Traversal != nil {
		return q.Traversal.EdgeTypes
	}
	return nil
}

func minSimilarity(q *model.Query) float64 {
	if q.MinSimilarity != nil {
		return *q.MinSimilarity
	}
	if q.VectorParams != nil && q.VectorParams.MinScore != nil {
		return *q.VectorParams.MinScore
	}
	return defaultMinSimilarity
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
