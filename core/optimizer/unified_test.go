package optimizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connections(n int, relationTypes int) []model.Connection {
	c := make([]model.Connection, n)
	for i := range c {
		c[i] = model.Connection{EntityID: fmt.Sprintf("e%d", i), RelationType: fmt.Sprintf("r%d", i%relationTypes)}
	}
	return c
}

func TestDetectGraphType(t *testing.T) {
	u := newTestUnified()

	tests := []struct {
		name     string
		query    *model.Query
		expected model.GraphType
	}{
		{"CID edge type is ipld", &model.Query{EdgeTypes: []string{"cid_ref"}}, model.GraphTypeIPLD},
		{"Wikidata source is wikipedia", &model.Query{Extra: model.Metadata{"source": "wikidata:Q1"}}, model.GraphTypeWikipedia},
		{"Empty query is general", &model.Query{}, model.GraphTypeGeneral},
		{"Explicit type wins over keywords", &model.Query{GraphType: model.GraphTypeGeneral, QueryText: "wikipedia articles"}, model.GraphTypeGeneral},
		{"Keywords are case insensitive", &model.Query{QueryText: "Blocks on IPFS"}, model.GraphTypeIPLD},
		{"Wikipedia keywords are checked first", &model.Query{QueryText: "dbpedia dag"}, model.GraphTypeWikipedia},
		{"Unknown explicit type is ignored", &model.Query{GraphType: model.GraphType("social")}, model.GraphTypeGeneral},
		{"Nil query is general", nil, model.GraphTypeGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, u.DetectGraphType(tt.query))
		})
	}
}

func TestCalculateEntityImportance(t *testing.T) {
	ctx := context.Background()

	t.Run("Weighted score of connectivity, diversity, properties and type", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		p.entityInfo["Q1"] = &model.EntityInfo{
			InboundConnections:  connections(10, 5),
			OutboundConnections: connections(10, 5),
			Properties:          model.Metadata{"a": 1, "b": 2, "c": 3},
			Type:                "person",
		}

		score := u.CalculateEntityImportance(ctx, "Q1", p)

		assert.InDelta(t, 1.0*0.4+0.5*0.25+0.2*0.15+0.8*0.2, score, 1e-9)
		c, ok := u.TraversalStats().EntityConnectivity("Q1")
		assert.True(t, ok)
		assert.Equal(t, 20, c)
	})

	t.Run("Unknown type scores 0.5", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		p.entityInfo["x"] = &model.EntityInfo{Type: "gadget"}

		assert.InDelta(t, 0.1, u.CalculateEntityImportance(ctx, "x", p), 1e-9)
	})

	t.Run("Scores are cached and computed once", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		p.entityInfo["Q1"] = &model.EntityInfo{Type: "concept", InboundConnections: connections(3, 2)}

		first := u.CalculateEntityImportance(ctx, "Q1", p)
		second := u.CalculateEntityImportance(ctx, "Q1", p)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, p.CallCount("GetEntityInfo"))
		assert.Equal(t, 1, u.TraversalStats().EntityFrequency("Q1"))
	})

	t.Run("Reset forces a new computation", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()

		u.CalculateEntityImportance(ctx, "Q1", p)
		u.ResetEntityImportance()
		u.CalculateEntityImportance(ctx, "Q1", p)

		assert.Equal(t, 2, p.CallCount("GetEntityInfo"))
		assert.Equal(t, 2, u.TraversalStats().EntityFrequency("Q1"))
	})

	t.Run("Processor errors give the base score", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		p.entityErr = errors.New("store offline")

		assert.Equal(t, 0.5, u.CalculateEntityImportance(ctx, "Q1", p))
		assert.Equal(t, 0, u.TraversalStats().EntityFrequency("Q1"))
	})

	t.Run("Score stays within bounds", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		props := model.Metadata{}
		for i := 0; i < 40; i++ {
			props[fmt.Sprintf("p%d", i)] = i
		}
		p.entityInfo["big"] = &model.EntityInfo{
			InboundConnections:  connections(100, 30),
			OutboundConnections: connections(100, 30),
			Properties:          props,
			Type:                "concept",
		}

		score := u.CalculateEntityImportance(ctx, "big", p)

		assert.LessOrEqual(t, score, 1.0)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.InDelta(t, 0.98, score, 1e-9)
	})
}

func TestUnifiedOptimizeQuery(t *testing.T) {
	ctx := context.Background()
	vector := []float32{0.1, 0.2, 0.3}

	t.Run("Nil query is an error", func(t *testing.T) {
		_, err := newTestUnified().OptimizeQuery(ctx, nil, model.PriorityNormal, nil)

		assert.ErrorIs(t, err, ErrNilQuery)
	})

	t.Run("IPLD flags survive rewriting and tuning", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{
			QueryVector: vector,
			GraphType:   model.GraphTypeIPLD,
			Traversal:   &model.Traversal{MaxDepth: 3},
		}

		plan, err := u.OptimizeQuery(ctx, q, model.PriorityNormal, nil)

		require.NoError(t, err)
		assert.Equal(t, model.GraphTypeIPLD, plan.GraphType)
		assert.Equal(t, model.StrategyDAGTraversal, plan.TraversalStrategy)
		tr := plan.Query.Traversal
		require.NotNil(t, tr)
		assert.Equal(t, model.StrategyDAGTraversal, tr.Strategy, "Breadth limiting of the rewriter is overridden")
		assert.True(t, tr.UseCIDPathOptimization)
		assert.True(t, tr.EnablePathCaching)
		assert.True(t, tr.VisitNodesOnce)
		assert.True(t, tr.BatchLoading)
		assert.Equal(t, 100, tr.BatchSize)
		assert.Equal(t, model.Weights{Vector: 0.75, Graph: 0.25}, plan.Weights)
		assert.NotEmpty(t, plan.Caching.Key)
		assert.Nil(t, q.Traversal.EntityScores, "Input query is not modified")
		assert.Equal(t, model.Strategy(""), q.Traversal.Strategy)
	})

	t.Run("Query without vector passes through with default weights", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{EntityID: "E1"}

		plan, err := u.OptimizeQuery(ctx, q, model.PriorityNormal, nil)

		require.NoError(t, err)
		assert.Equal(t, model.Weights{Vector: 0.7, Graph: 0.3}, plan.Weights)
		assert.True(t, plan.Caching.Enabled)
		assert.Empty(t, plan.Caching.Key)
		assert.Equal(t, "E1", plan.Query.EntityID)
		assert.True(t, plan.Query.SkipVectorSearch)
		assert.Equal(t, model.StrategyBreadthFirst, plan.TraversalStrategy)
		assert.Empty(t, u.QueryStats().CommonPatterns(0), "Numeric tuning is skipped")
	})

	t.Run("Vector query is tuned by the specialised optimizer", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{
			QueryVector:      vector,
			MaxVectorResults: 8,
			MinSimilarity:    model.Float64(0.8),
			Traversal:        &model.Traversal{MaxDepth: 1, EdgeTypes: []string{"knows", "works_at"}},
		}

		plan, err := u.OptimizeQuery(ctx, q, model.PriorityHigh, nil)

		require.NoError(t, err)
		assert.Equal(t, model.GraphTypeGeneral, plan.GraphType)
		assert.Equal(t, 8, plan.Query.MaxVectorResults)
		assert.Equal(t, 1, plan.Query.MaxTraversalDepth)
		assert.Equal(t, []string{"knows", "works_at"}, plan.Query.EdgeTypes)
		require.NotNil(t, plan.Query.MinSimilarity)
		assert.Equal(t, 0.8, *plan.Query.MinSimilarity)
		assert.Equal(t, 0.8, *plan.Query.VectorParams.MinScore)
		assert.Equal(t, u.Budget().CurrentBudget(), plan.Budget)
		assert.Len(t, u.QueryStats().CommonPatterns(0), 1)
	})

	t.Run("Wikipedia traversal is shaped and rewritten", func(t *testing.T) {
		u := newTestUnified()
		p := newMockProcessor()
		q := &model.Query{
			QueryVector: vector,
			QueryText:   "wikidata people",
			EntityIDs:   []string{"Q1"},
			Traversal:   &model.Traversal{EdgeTypes: []string{"related_to", "knows", "part_of", "instance_of"}},
		}

		plan, err := u.OptimizeQuery(ctx, q, model.PriorityNormal, p)

		require.NoError(t, err)
		assert.Equal(t, model.GraphTypeWikipedia, plan.GraphType)
		tr := plan.Query.Traversal
		assert.Equal(t, []string{"instance_of", "part_of", "knows", "related_to"}, tr.EdgeTypes)
		assert.Equal(t, 1.5, tr.HierarchicalWeight)
		assert.Contains(t, tr.EntityScores, "Q1")
		assert.Equal(t, []string{"title", "text", "description"}, plan.Query.VectorParams.SemanticMatchFields)
		assert.Equal(t, model.Weights{Vector: 0.6, Graph: 0.4}, plan.Weights)
		assert.Equal(t, 1, p.CallCount("GetEntityInfo"))
	})

	t.Run("Caching disabled leaves the key empty", func(t *testing.T) {
		config := model.DefaultOptimizerConfig()
		disabled := false
		config.General.CacheEnabled = &disabled
		u := NewUnified(UnifiedConfig{Optimizers: &config, Logger: testLogger()})

		plan, err := u.OptimizeQuery(ctx, &model.Query{QueryVector: vector}, model.PriorityNormal, nil)

		require.NoError(t, err)
		assert.False(t, plan.Caching.Enabled)
		assert.Empty(t, plan.Caching.Key)
	})
}

func TestOptimizeWikipediaTraversal(t *testing.T) {
	t.Run("Edges are ordered in value tiers", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{Traversal: &model.Traversal{EdgeTypes: []string{"see_also", "spouse", "creator", "link", "part_of"}}}

		out := u.OptimizeWikipediaTraversal(q, nil)

		assert.Equal(t, []string{"creator", "part_of", "spouse", "see_also", "link"}, out.Traversal.EdgeTypes)
		assert.Equal(t, []string{"see_also", "spouse", "creator", "link", "part_of"}, q.Traversal.EdgeTypes)
	})

	t.Run("High complexity prunes harder", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{VectorParams: &model.VectorParams{TopK: 10}, Traversal: &model.Traversal{MaxDepth: 4}}

		out := u.OptimizeWikipediaTraversal(q, nil)

		assert.Equal(t, 5, out.Traversal.MaxBreadthPerLevel)
		assert.True(t, out.Traversal.UseImportancePruning)
		assert.Equal(t, 0.4, out.Traversal.ImportanceThreshold)
	})

	t.Run("Medium complexity prunes lighter", func(t *testing.T) {
		out := newTestUnified().OptimizeWikipediaTraversal(&model.Query{}, nil)

		assert.Equal(t, 7, out.Traversal.MaxBreadthPerLevel)
		assert.Equal(t, 0.3, out.Traversal.ImportanceThreshold)
	})

	t.Run("Best strategy defaults to entity importance", func(t *testing.T) {
		out := newTestUnified().OptimizeWikipediaTraversal(&model.Query{}, nil)

		assert.Equal(t, model.StrategyEntityImportance, out.Traversal.Strategy)
	})

	t.Run("Best strategy follows relevance", func(t *testing.T) {
		u := newTestUnified()
		u.StrategyPerformance().Record(model.StrategyDepthFirst, time.Millisecond)
		u.StrategyPerformance().RecordRelevance(model.StrategyDepthFirst, 0.9)

		out := u.OptimizeWikipediaTraversal(&model.Query{}, nil)

		assert.Equal(t, model.StrategyDepthFirst, out.Traversal.Strategy)
	})

	t.Run("Fact verification searches bidirectionally", func(t *testing.T) {
		out := newTestUnified().OptimizeWikipediaTraversal(&model.Query{QueryText: "Is Paris the capital of France?"}, map[string]float64{"Q90": 0.7})

		assert.Equal(t, model.StrategyBidirectional, out.Traversal.Strategy)
		assert.Equal(t, 5, out.Traversal.BidirectionalEntityLimit)
		assert.Equal(t, map[string]float64{"Q90": 0.7}, out.Traversal.EntityScores)
	})
}

func TestOptimizeIPLDTraversal(t *testing.T) {
	t.Run("Low complexity verifies multihashes", func(t *testing.T) {
		u := newTestUnified()
		q := &model.Query{VectorParams: &model.VectorParams{TopK: 2}, Traversal: &model.Traversal{MaxDepth: 1}}

		out := u.OptimizeIPLDTraversal(q, nil)

		assert.True(t, out.Traversal.VerifyMultihashes)
		assert.True(t, out.Traversal.BatchByPrefix)
		assert.True(t, out.VectorParams.UseDimensionalityReduction)
		assert.True(t, out.VectorParams.UseCIDBucketOptimization)
		assert.True(t, out.VectorParams.EnableBlockBatchLoading)
	})

	t.Run("Medium complexity skips verification", func(t *testing.T) {
		out := newTestUnified().OptimizeIPLDTraversal(&model.Query{}, nil)

		assert.False(t, out.Traversal.VerifyMultihashes)
		assert.Equal(t, 100, out.Traversal.BatchSize)
	})

	t.Run("Slow irrelevant DAG traversals grow batches", func(t *testing.T) {
		u := newTestUnified()
		for i := 0; i < 6; i++ {
			u.StrategyPerformance().Record(model.StrategyDAGTraversal, 2*time.Second)
		}

		out := u.OptimizeIPLDTraversal(&model.Query{}, nil)

		assert.Equal(t, 150, out.Traversal.BatchSize)
	})

	t.Run("Relevant DAG traversals keep batches", func(t *testing.T) {
		u := newTestUnified()
		for i := 0; i < 6; i++ {
			u.StrategyPerformance().Record(model.StrategyDAGTraversal, 2*time.Second)
		}
		u.StrategyPerformance().RecordRelevance(model.StrategyDAGTraversal, 0.9)

		out := u.OptimizeIPLDTraversal(&model.Query{}, nil)

		assert.Equal(t, 100, out.Traversal.BatchSize)
	})
}

func TestDetectFactVerificationQuery(t *testing.T) {
	u := newTestUnified()

	tests := []struct {
		name     string
		query    *model.Query
		expected bool
	}{
		{"Source and target", &model.Query{SourceEntity: "a", TargetEntity: "b"}, true},
		{"Verification keyword", &model.Query{Extra: model.Metadata{"mode": "verification"}}, true},
		{"Yes no question", &model.Query{QueryText: "Was Einstein born in Ulm?"}, true},
		{"Fact check phrase", &model.Query{QueryText: "please fact check this claim"}, true},
		{"Open question", &model.Query{QueryText: "Who founded Rome?"}, false},
		{"Source only", &model.Query{SourceEntity: "a"}, false},
		{"Nil query", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, u.DetectFactVerificationQuery(tt.query))
		})
	}
}

func TestUnifiedEstimateQueryComplexity(t *testing.T) {
	u := newTestUnified()

	assert.Equal(t, model.ComplexityLow, u.EstimateQueryComplexity(&model.Query{Traversal: &model.Traversal{MaxDepth: 1}, VectorParams: &model.VectorParams{TopK: 2}}))
	assert.Equal(t, model.ComplexityMedium, u.EstimateQueryComplexity(&model.Query{}))
	assert.Equal(t, model.ComplexityHigh, u.EstimateQueryComplexity(&model.Query{Traversal: &model.Traversal{MaxDepth: 4}}))
}

func TestUnifiedSetGraphInfo(t *testing.T) {
	t.Run("Measured graph info replaces the defaults", func(t *testing.T) {
		u := newTestUnified()
		info := &model.GraphInfo{GraphType: model.GraphTypeGeneral, EdgeSelectivity: map[string]float64{"knows": 0.2}, GraphDensity: 0.1}

		u.SetGraphInfo(info)
		info.EdgeSelectivity["knows"] = 0.9

		got := u.graphInfoFor(model.GraphTypeGeneral)
		assert.Equal(t, 0.2, got.EdgeSelectivity["knows"], "Expected a copy of the graph info to be stored")
		assert.Equal(t, 0.1, got.GraphDensity)
	})

	t.Run("Nil is ignored", func(t *testing.T) {
		u := newTestUnified()
		before := u.graphInfoFor(model.GraphTypeGeneral)

		u.SetGraphInfo(nil)

		assert.Equal(t, before, u.graphInfoFor(model.GraphTypeGeneral))
	})

	t.Run("IPLD density is kept when measured on an IPLD graph", func(t *testing.T) {
		u := newTestUnified()

		u.SetGraphInfo(&model.GraphInfo{GraphType: model.GraphTypeIPLD, EdgeSelectivity: map[string]float64{}, GraphDensity: 0.05})

		assert.Equal(t, 0.05, u.graphInfoFor(model.GraphTypeIPLD).GraphDensity)
		assert.Equal(t, 0.05, u.graphInfoFor(model.GraphTypeGeneral).GraphDensity)
	})

	t.Run("IPLD queries fall back to the IPLD density", func(t *testing.T) {
		u := newTestUnified()

		u.SetGraphInfo(&model.GraphInfo{GraphType: model.GraphTypeGeneral, EdgeSelectivity: map[string]float64{}, GraphDensity: 0.05})

		assert.Equal(t, model.DefaultIPLDGraphDensity, u.graphInfoFor(model.GraphTypeIPLD).GraphDensity)
	})
}

func TestEntityImportanceFailureLog(t *testing.T) {
	newLoggedUnified := func(buf *bytes.Buffer) *Unified {
		logger := slog.New(helper.NewPrettyHandler(buf, helper.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn},
		}))
		return NewUnified(UnifiedConfig{Logger: logger})
	}

	t.Run("Processor error is logged with its cause", func(t *testing.T) {
		var buf bytes.Buffer
		u := newLoggedUnified(&buf)
		m := newMockProcessor()
		m.entityErr = helper.NewError("select node", errors.New("connection refused"))

		score := u.CalculateEntityImportance(context.Background(), "E1", m)

		assert.Equal(t, baseImportance, score)
		assert.Contains(t, buf.String(), "connection refused")
		assert.Contains(t, buf.String(), "E1")
	})

	t.Run("Missing entity info is logged", func(t *testing.T) {
		var buf bytes.Buffer
		u := newLoggedUnified(&buf)

		score := u.CalculateEntityImportance(context.Background(), "E2", nilInfoProcessor{newMockProcessor()})

		assert.Equal(t, baseImportance, score)
		assert.Contains(t, buf.String(), "no entity info for E2")
	})
}

type nilInfoProcessor struct{ *mockProcessor }

func (p nilInfoProcessor) GetEntityInfo(ctx context.Context, entityID string) (*model.EntityInfo, error) {
	return nil, nil
}
