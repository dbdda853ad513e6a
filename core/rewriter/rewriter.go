package rewriter

import (
	"log/slog"
	"sort"

	"github.com/siherrmann/graphrag/core/stats"
	"github.com/siherrmann/graphrag/model"
)

// QueryPattern is the shape a rewriter recognises in a query
type QueryPattern string

const (
	PatternEntityLookup     QueryPattern = "entity_lookup"
	PatternFactVerification QueryPattern = "fact_verification"
	PatternRelationCentric  QueryPattern = "relation_centric"
	PatternGeneral          QueryPattern = "general"
)

// defaultSelectivity is assumed for edge types missing from the selectivity map
const defaultSelectivity = 0.5

// wikipediaHierarchy are moved to the front of Wikipedia edge types, in this order
var wikipediaHierarchy = []string{"instance_of", "subclass_of", "part_of", "located_in"}

// Rewriter turns a query into an equivalent query that is cheaper to execute
type Rewriter struct {
	traversalStats *stats.TraversalStats
	log            *slog.Logger
}

// NewRewriter creates a rewriter sharing the given traversal statistics
func NewRewriter(traversalStats *stats.TraversalStats, logger *slog.Logger) *Rewriter {
	if traversalStats == nil {
		traversalStats = stats.NewTraversalStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		traversalStats: traversalStats,
		log:            logger,
	}
}

// RewriteQuery returns an optimized copy of q. The input query is not modified.
//
// Rewrites run in a fixed order: predicate pushdown, selectivity based edge
// reordering, traversal strategy selection, pattern specific tuning and
// domain tuning for Wikipedia graphs.
func (r *Rewriter) RewriteQuery(q *model.Query, info *model.GraphInfo, entityScores map[string]float64) *model.Query {
	out := q.Clone()
	if out == nil {
		out = &model.Query{}
	}
	if info == nil {
		info = &model.GraphInfo{GraphType: model.GraphTypeGeneral}
	}

	pushDownPredicates(out)
	r.reorderBySelectivity(out, info)
	selectTraversalStrategy(out, info)
	applyPatternTuning(out, DetectQueryPattern(out))
	if info.GraphType == model.GraphTypeWikipedia {
		applyWikipediaTuning(out)
	}

	if len(entityScores) > 0 && out.Traversal != nil && out.Traversal.EntityScores == nil {
		out.Traversal.EntityScores = make(map[string]float64, len(entityScores))
		for k, v := range entityScores {
			out.Traversal.EntityScores[k] = v
		}
	}

	return out
}

// pushDownPredicates moves filters into the vector search so they are applied
// before any traversal happens.
func pushDownPredicates(q *model.Query) {
	if q.MinSimilarity != nil {
		q.EnsureVectorParams().MinScore = model.Float64(*q.MinSimilarity)
		q.MinSimilarity = nil
	}

	if q.EntityFilters != nil && q.EntityFilters.EntityTypes != nil {
		q.EnsureVectorParams().EntityTypes = append([]string(nil), q.EntityFilters.EntityTypes...)
		q.EntityFilters = nil
	}
}

// reorderBySelectivity sorts edge types so the most selective ones are followed first.
// The sort is stable, edge types of equal selectivity keep their order.
func (r *Rewriter) reorderBySelectivity(q *model.Query, info *model.GraphInfo) {
	if q.Traversal == nil || len(q.Traversal.EdgeTypes) == 0 || len(info.EdgeSelectivity) == 0 {
		return
	}

	selectivity := func(edgeType string) float64 {
		if s, ok := info.EdgeSelectivity[edgeType]; ok {
			return s
		}
		return defaultSelectivity
	}

	edgeTypes := q.Traversal.EdgeTypes
	sort.SliceStable(edgeTypes, func(i, j int) bool {
		return selectivity(edgeTypes[i]) < selectivity(edgeTypes[j])
	})
	q.Traversal.ReorderedBySelectivity = true

	for _, edgeType := range edgeTypes {
		if s, ok := info.EdgeSelectivity[edgeType]; ok {
			r.traversalStats.RecordRelationUsefulness(edgeType, 1-s)
		}
	}

	r.log.Debug("Reordered edge types by selectivity", slog.Any("edge_types", edgeTypes))
}

// selectTraversalStrategy picks a cheaper strategy for deep or dense traversals.
// The density check runs after the depth check and overrides it.
func selectTraversalStrategy(q *model.Query, info *model.GraphInfo) {
	if q.Traversal == nil {
		return
	}

	if q.Traversal.MaxDepth > 2 {
		q.Traversal.Strategy = model.StrategyBreadthLimited
		q.Traversal.MaxBreadthPerLevel = 5
	}

	if info.GraphDensity > 0.7 {
		q.Traversal.Strategy = model.StrategySampling
		q.Traversal.SampleRatio = 0.3
	}
}

func applyPatternTuning(q *model.Query, pattern QueryPattern) {
	switch pattern {
	case PatternEntityLookup:
		q.SkipVectorSearch = true
	case PatternRelationCentric:
		q.EnsureTraversal().PrioritizeRelationships = true
	case PatternFactVerification:
		t := q.EnsureTraversal()
		t.Strategy = model.StrategyPathFinding
		t.FindShortestPath = true
	}
}

// applyWikipediaTuning moves hierarchical relations to the front of the edge types.
func applyWikipediaTuning(q *model.Query) {
	if q.Traversal == nil || len(q.Traversal.EdgeTypes) == 0 {
		return
	}

	edgeTypes := q.Traversal.EdgeTypes
	for i := len(wikipediaHierarchy) - 1; i >= 0; i-- {
		idx := indexOf(edgeTypes, wikipediaHierarchy[i])
		if idx < 0 {
			continue
		}
		edge := edgeTypes[idx]
		edgeTypes = append(edgeTypes[:idx], edgeTypes[idx+1:]...)
		edgeTypes = append([]string{edge}, edgeTypes...)
	}

	q.Traversal.EdgeTypes = edgeTypes
	q.Traversal.HierarchicalWeight = 1.5
}

// DetectQueryPattern classifies a query.
// Priority order is entity lookup, fact verification, relation centric, general.
func DetectQueryPattern(q *model.Query) QueryPattern {
	switch {
	case q.EntityID != "":
		return PatternEntityLookup
	case q.SourceEntity != "" && q.TargetEntity != "":
		return PatternFactVerification
	case q.RelationType != "" || (q.Traversal != nil && len(q.Traversal.EdgeTypes) == 1):
		return PatternRelationCentric
	default:
		return PatternGeneral
	}
}

// EstimateQueryComplexity classifies a query as low (<5), medium (<12) or high.
// These thresholds differ from the budget manager's estimator (<5/<10/<20) and from
// the unified optimizer's (<5/<10). They are kept apart on purpose until someone
// decides which classification is authoritative.
func EstimateQueryComplexity(q *model.Query) model.Complexity {
	score := q.ComplexityScore()
	switch {
	case score < 5:
		return model.ComplexityLow
	case score < 12:
		return model.ComplexityMedium
	default:
		return model.ComplexityHigh
	}
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}
