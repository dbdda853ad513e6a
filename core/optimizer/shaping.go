package optimizer

import (
	"strings"

	"github.com/siherrmann/graphrag/model"
)

var (
	wikipediaHighValueEdges = map[string]bool{
		"instance_of": true, "subclass_of": true, "part_of": true, "has_part": true,
		"located_in": true, "capital_of": true, "creator": true, "developer": true,
		"follows": true, "followed_by": true, "opposite_of": true,
	}
	wikipediaLowValueEdges = map[string]bool{
		"related_to": true, "see_also": true, "different_from": true, "same_as": true,
		"externally_linked": true, "link": true, "described_by": true,
	}

	// yes/no question openers
	factQuestionStarts = []string{
		"is ", "are ", "was ", "were ", "did ", "does ", "do ",
		"has ", "have ", "had ", "can ", "could ", "will ", "would ",
	}
	factPhrases = []string{
		"is it true", "true or false", "fact check", "verify", "confirm", "is that correct",
	}
)

const (
	ipldBatchSize    = 100
	ipldMaxBatchSize = 200
)

// OptimizeWikipediaTraversal shapes the traversal of a query for Wikipedia style
// knowledge graphs. Hierarchical edges are followed first and generic link edges
// last. The input query is not modified.
func (u *Unified) OptimizeWikipediaTraversal(q *model.Query, entityScores map[string]float64) *model.Query {
	out := q.Clone()
	if out == nil {
		out = &model.Query{}
	}
	t := out.EnsureTraversal()

	if len(t.EdgeTypes) > 0 {
		var high, mid, low []string
		for _, e := range t.EdgeTypes {
			switch {
			case wikipediaHighValueEdges[e]:
				high = append(high, e)
			case wikipediaLowValueEdges[e]:
				low = append(low, e)
			default:
				mid = append(mid, e)
			}
		}
		t.EdgeTypes = append(append(high, mid...), low...)
	}

	switch u.EstimateQueryComplexity(out) {
	case model.ComplexityHigh:
		t.MaxBreadthPerLevel = 5
		t.UseImportancePruning = true
		t.ImportanceThreshold = 0.4
	case model.ComplexityMedium:
		t.MaxBreadthPerLevel = 7
		t.UseImportancePruning = true
		t.ImportanceThreshold = 0.3
	}

	t.Strategy = u.strategies.Best()
	if u.DetectFactVerificationQuery(out) {
		t.Strategy = model.StrategyBidirectional
		t.BidirectionalEntityLimit = 5
	}

	setEntityScores(t, entityScores)
	out.EnsureVectorParams().SemanticMatchFields = []string{"title", "text", "description"}

	return out
}

// OptimizeIPLDTraversal shapes the traversal of a query for content addressed
// DAGs. Multihash verification is only enabled for low complexity queries.
// Batches grow when DAG traversals have been slow without being relevant.
// The input query is not modified.
func (u *Unified) OptimizeIPLDTraversal(q *model.Query, entityScores map[string]float64) *model.Query {
	out := q.Clone()
	if out == nil {
		out = &model.Query{}
	}
	t := out.EnsureTraversal()

	t.Strategy = model.StrategyDAGTraversal
	t.UseCIDPathOptimization = true
	t.EnablePathCaching = true
	t.VisitNodesOnce = true
	t.BatchLoading = true
	t.BatchSize = ipldBatchSize
	t.BatchByPrefix = true

	if u.EstimateQueryComplexity(out) == model.ComplexityLow {
		t.VerifyMultihashes = true
	}

	perf := u.strategies.Get(model.StrategyDAGTraversal)
	if perf.Count > 5 && perf.AvgTime > 1.0 && perf.RelevanceScore < 0.8 {
		t.BatchSize = min(int(float64(t.BatchSize)*1.5), ipldMaxBatchSize)
	}

	vp := out.EnsureVectorParams()
	vp.UseDimensionalityReduction = true
	vp.UseCIDBucketOptimization = true
	vp.EnableBlockBatchLoading = true

	setEntityScores(t, entityScores)

	return out
}

// DetectFactVerificationQuery reports whether a query checks a fact: it names a
// source and a target entity, mentions verification or asks a yes/no question.
func (u *Unified) DetectFactVerificationQuery(q *model.Query) bool {
	if q == nil {
		return false
	}
	if q.SourceEntity != "" && q.TargetEntity != "" {
		return true
	}
	if strings.Contains(q.String(), "verification") {
		return true
	}

	text := strings.ToLower(strings.TrimSpace(q.QueryText))
	if text == "" {
		return false
	}
	for _, start := range factQuestionStarts {
		if strings.HasPrefix(text, start) {
			return true
		}
	}
	return containsAny(text, factPhrases)
}

func setEntityScores(t *model.Traversal, entityScores map[string]float64) {
	if entityScores == nil {
		return
	}
	t.EntityScores = make(map[string]float64, len(entityScores))
	for k, v := range entityScores {
		t.EntityScores[k] = v
	}
}
