package optimizer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/siherrmann/graphrag/core/budget"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteQuery plans a query and runs it against processor.
//
// Vector queries run a vector search, a graph expansion and a ranking phase,
// each timed into the budget. Traversal may stop before ranking when the budget
// manager suggests it. Queries without a vector are answered by the processor's
// DirectGraphQuery, or with no results when it has none. Cached results are
// returned without touching the processor unless skipCache is set.
//
// Errors of the required processor operations are returned. Errors of optional
// operations make the executor fall back and are only logged.
func (u *Unified) ExecuteQuery(ctx context.Context, processor GraphProcessor, q *model.Query, priority model.Priority, skipCache bool) ([]model.Result, *model.ExecutionInfo, error) {
	if processor == nil {
		return nil, nil, helper.NewError("execute query", ErrNilProcessor)
	}

	start := time.Now()
	ctx, span := u.tracer.Start(ctx, "Unified.ExecuteQuery",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("priority", string(priority)),
			attribute.Bool("skip_cache", skipCache),
		),
	)
	defer span.End()

	plan, err := u.OptimizeQuery(ctx, q, priority, processor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimize query failed")
		return nil, nil, helper.NewError("execute query", err)
	}
	span.SetAttributes(
		attribute.String("graph_type", string(plan.GraphType)),
		attribute.String("strategy", string(plan.TraversalStrategy)),
	)

	opt := u.Optimizer(plan.GraphType)
	cacheKey := plan.Caching.Key
	cacheable := plan.Caching.Enabled && cacheKey != ""

	if cacheable && !skipCache && opt.IsInCache(cacheKey) {
		if results, err := opt.GetFromCache(cacheKey); err == nil {
			span.AddEvent("cache_hit")
			return results, &model.ExecutionInfo{
				FromCache:     true,
				ExecutionTime: time.Since(start),
				Plan:          plan,
			}, nil
		}
	}

	info := &model.ExecutionInfo{Plan: plan}

	var results []model.Result
	cacheResults := cacheable
	if plan.Query.HasVector() {
		var outcome vectorOutcome
		results, outcome, err = u.executeVectorQuery(ctx, processor, plan)
		if err != nil {
			u.budget.RecordCompletion(false)
			span.RecordError(err)
			span.SetStatus(codes.Error, "execute query failed")
			return nil, nil, helper.NewError("execute query", err)
		}
		switch outcome {
		case vectorStoppedEarly:
			info.EarlyStopping = true
			span.AddEvent("early_stopping")
			u.metrics.earlyStop()
		case vectorNoCandidates:
			// An empty vector search ends the query before anything worth caching exists
			cacheResults = false
		}
	} else {
		results, err = u.directQuery(ctx, processor, plan.Query)
		if err != nil {
			u.budget.RecordCompletion(false)
			span.RecordError(err)
			span.SetStatus(codes.Error, "direct graph query failed")
			return nil, nil, helper.NewError("execute query", err)
		}
	}

	elapsed := time.Since(start)
	u.queryStats.RecordQueryTime(elapsed)
	u.metrics.observeQuery(string(plan.GraphType), elapsed.Seconds())
	u.budget.RecordCompletion(true)

	if cacheResults {
		opt.AddToCache(cacheKey, results)
	}

	info.ExecutionTime = elapsed
	info.Consumption = u.budget.ConsumptionReport()
	span.SetAttributes(attribute.Int("results", len(results)))

	return results, info, nil
}

// vectorOutcome tells how the phases of a vector query ended
type vectorOutcome int

const (
	vectorRanked vectorOutcome = iota
	// vectorStoppedEarly results are unranked traversal results
	vectorStoppedEarly
	// vectorNoCandidates means the vector search found nothing
	vectorNoCandidates
)

// executeVectorQuery runs vector search, graph expansion and ranking.
func (u *Unified) executeVectorQuery(ctx context.Context, processor GraphProcessor, plan *model.QueryPlan) ([]model.Result, vectorOutcome, error) {
	q := plan.Query

	minScore := defaultMinSimilarity
	if q.MinSimilarity != nil {
		minScore = *q.MinSimilarity
	}

	phaseStart := time.Now()
	vectorResults, err := processor.SearchByVector(ctx, q.QueryVector, searchTopK(q), minScore)
	if err != nil {
		return nil, vectorRanked, helper.NewError("search by vector", err)
	}
	u.budget.TrackConsumption(model.ResourceVectorSearchMs, milliseconds(time.Since(phaseStart)))
	if len(vectorResults) == 0 {
		return []model.Result{}, vectorNoCandidates, nil
	}

	phaseStart = time.Now()
	graphResults := u.expand(ctx, processor, plan, vectorResults)
	traversalTime := time.Since(phaseStart)
	u.strategies.Record(plan.TraversalStrategy, traversalTime)
	u.metrics.strategyUsed(string(plan.TraversalStrategy))
	u.budget.TrackConsumption(model.ResourceGraphTraversalMs, milliseconds(traversalTime))
	u.budget.TrackConsumption(model.ResourceNodesVisited, float64(len(graphResults)))
	for _, r := range graphResults {
		u.traversalStats.RecordPathExplored(r.Score)
	}

	if budget.SuggestEarlyStopping(graphResults, u.budget.ConsumedRatio()) {
		u.log.Debug("Stopping query after graph traversal", slog.Int("results", len(graphResults)))
		return graphResults, vectorStoppedEarly, nil
	}

	phaseStart = time.Now()
	ranked, err := processor.RankResults(ctx, graphResults, plan.Weights.Vector, plan.Weights.Graph)
	if err != nil {
		return nil, vectorRanked, helper.NewError("rank results", err)
	}
	u.budget.TrackConsumption(model.ResourceRankingMs, milliseconds(time.Since(phaseStart)))

	return ranked, vectorRanked, nil
}

// expand runs the graph traversal phase. DAG traversal is used for the
// dag_traversal strategy and falls back to graph expansion when it fails or
// returns results without a CID. Without any usable expansion the vector
// results are returned unchanged.
func (u *Unified) expand(ctx context.Context, processor GraphProcessor, plan *model.QueryPlan, candidates []model.Result) []model.Result {
	q := plan.Query
	depth := traversalDepth(q)
	edges := edgeTypes(q)
	expander, canExpand := processor.(GraphExpander)

	if plan.TraversalStrategy == model.StrategyDAGTraversal {
		if dag, ok := processor.(DAGTraverser); ok {
			opts := DAGOptions{}
			if q.Traversal != nil {
				opts = DAGOptions{
					VisitNodesOnce: q.Traversal.VisitNodesOnce,
					BatchLoading:   q.Traversal.BatchLoading,
					BatchSize:      q.Traversal.BatchSize,
				}
			}

			results, err := dag.ExpandByDAGTraversal(ctx, candidates, depth, edges, opts)
			switch {
			case err != nil:
				u.recordFallback("expand by dag traversal", err)
			case model.HasCID(results) || !canExpand:
				return results
			default:
				u.metrics.fallback(FallbackNoCID)
				u.log.Debug("DAG traversal returned no CIDs, falling back to graph expansion")
			}
		}
	}

	if !canExpand {
		return candidates
	}

	results, err := expander.ExpandByGraph(ctx, candidates, depth, edges)
	if err != nil {
		u.recordFallback("expand by graph", err)
		return candidates
	}
	return results
}

// directQuery answers a query without a vector
func (u *Unified) directQuery(ctx context.Context, processor GraphProcessor, q *model.Query) ([]model.Result, error) {
	querier, ok := processor.(DirectQuerier)
	if !ok {
		return []model.Result{}, nil
	}

	results, err := querier.DirectGraphQuery(ctx, q)
	if errors.Is(err, ErrUnsupported) {
		return []model.Result{}, nil
	}
	if err != nil {
		return nil, helper.NewError("direct graph query", err)
	}
	if results == nil {
		results = []model.Result{}
	}
	return results, nil
}

// recordFallback logs and counts a failed optional processor operation
func (u *Unified) recordFallback(operation string, err error) {
	if errors.Is(err, ErrUnsupported) {
		u.metrics.fallback(FallbackUnsupported)
		u.log.Debug("Graph processor does not support operation", slog.String("operation", operation))
		return
	}
	u.metrics.fallback(FallbackFailed)
	u.log.Warn("Graph processor operation failed, falling back", slog.String("operation", operation), slog.String("error", err.Error()))
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
