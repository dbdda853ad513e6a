package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func vectorQuery() *model.Query {
	return &model.Query{
		QueryVector:      []float32{0.1, 0.2, 0.3},
		MaxVectorResults: 4,
		MinSimilarity:    model.Float64(0.6),
	}
}

func ipldQuery() *model.Query {
	q := vectorQuery()
	q.GraphType = model.GraphTypeIPLD
	return q
}

func TestExecuteQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("Nil processor is an error", func(t *testing.T) {
		_, _, err := newTestUnified().ExecuteQuery(ctx, nil, vectorQuery(), model.PriorityNormal, false)

		assert.ErrorIs(t, err, ErrNilProcessor)
	})

	t.Run("Query without vector only uses direct graph query", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.directResults = []model.Result{{ID: "x", Score: 1}}

		results, info, err := u.ExecuteQuery(ctx, withDirect{m}, &model.Query{EntityID: "x"}, model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, m.directResults, results)
		assert.Equal(t, []string{"DirectGraphQuery"}, m.Calls())
		assert.False(t, info.FromCache)
		assert.Equal(t, 1, u.QueryStats().QueryCount())
	})

	t.Run("Query without vector and direct support is empty", func(t *testing.T) {
		m := newMockProcessor()

		results, _, err := newTestUnified().ExecuteQuery(ctx, withExpand{m}, &model.Query{EntityID: "x"}, model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Empty(t, m.Calls())
	})

	t.Run("Unsupported direct query is empty", func(t *testing.T) {
		m := newMockProcessor()
		m.directErr = ErrUnsupported

		results, _, err := newTestUnified().ExecuteQuery(ctx, withDirect{m}, &model.Query{EntityID: "x"}, model.PriorityNormal, false)

		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("Failed direct query is returned", func(t *testing.T) {
		m := newMockProcessor()
		m.directErr = errors.New("connection reset")

		_, _, err := newTestUnified().ExecuteQuery(ctx, withDirect{m}, &model.Query{EntityID: "x"}, model.PriorityNormal, false)

		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("Vector query searches, expands and ranks", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()

		results, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"SearchByVector", "ExpandByGraph", "RankResults"}, m.Calls())
		assert.Equal(t, []model.Result{{ID: "g1", Score: 0.7}, {ID: "g2", Score: 0.6}}, results)
		assert.Equal(t, 4, m.lastTopK)
		assert.Equal(t, 0.6, m.lastMinScore)
		assert.False(t, info.FromCache)
		assert.False(t, info.EarlyStopping)
		require.NotNil(t, info.Consumption)
		assert.Contains(t, info.Consumption.Consumption, model.ResourceRankingMs)
		assert.Equal(t, 1, u.StrategyPerformance().Get(model.StrategyBreadthFirst).Count)
		assert.Equal(t, 1, u.QueryStats().QueryCount())
		assert.Len(t, u.Budget().History(model.ResourceVectorSearchMs), 1)
	})

	t.Run("Without expansion the vector results are ranked", func(t *testing.T) {
		m := newMockProcessor()

		results, _, err := newTestUnified().ExecuteQuery(ctx, m, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"SearchByVector", "RankResults"}, m.Calls())
		assert.Equal(t, "v1", results[0].ID)
	})

	t.Run("Empty vector search ends the query", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.vectorResults = nil

		results, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
		assert.Equal(t, []string{"SearchByVector"}, m.Calls())
		assert.Equal(t, 1, u.QueryStats().QueryCount())
	})

	t.Run("Empty vector search is not cached", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.vectorResults = nil

		_, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		_, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.False(t, info.FromCache)
		assert.Equal(t, 2, m.CallCount("SearchByVector"))
	})

	t.Run("Empty ranked result is cached", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.graphResults = []model.Result{}

		first, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		assert.Empty(t, first)
		assert.Equal(t, 1, m.CallCount("RankResults"))

		second, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.True(t, info.FromCache)
		assert.Empty(t, second)
		assert.Equal(t, 1, m.CallCount("SearchByVector"))
	})

	t.Run("Traversal results are recorded as explored paths", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()

		_, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		snap := u.TraversalStats().Snapshot()
		assert.Equal(t, 2, snap.PathsExplored)
		assert.Equal(t, []float64{0.7, 0.6}, snap.PathScores)
	})

	t.Run("Vector search errors are returned", func(t *testing.T) {
		sentinel := errors.New("index unavailable")
		m := newMockProcessor()
		m.vectorErr = sentinel

		_, _, err := newTestUnified().ExecuteQuery(ctx, m, vectorQuery(), model.PriorityNormal, false)

		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("Ranking errors are returned", func(t *testing.T) {
		sentinel := errors.New("ranking failed")
		m := newMockProcessor()
		m.rankErr = sentinel

		_, _, err := newTestUnified().ExecuteQuery(ctx, m, vectorQuery(), model.PriorityNormal, false)

		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("Second execution is served from cache", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()

		first, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		calls := len(m.Calls())

		second, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.True(t, info.FromCache)
		assert.Equal(t, first, second)
		assert.Len(t, m.Calls(), calls, "Processor is not touched")
		assert.Equal(t, 1, u.QueryStats().CacheHits())
	})

	t.Run("Skip cache executes again", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()

		_, _, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		_, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, true)

		require.NoError(t, err)
		assert.False(t, info.FromCache)
		assert.Equal(t, 2, m.CallCount("SearchByVector"))
	})

	t.Run("Sharp score drop stops before ranking", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.graphResults = []model.Result{
			{ID: "a", Score: 0.9}, {ID: "b", Score: 0.8}, {ID: "c", Score: 0.7},
			{ID: "d", Score: 0.6}, {ID: "e", Score: 0.5}, {ID: "f", Score: 0.4},
		}

		results, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.True(t, info.EarlyStopping)
		assert.Equal(t, m.graphResults, results)
		assert.Equal(t, 0, m.CallCount("RankResults"))

		cached, info, err := u.ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		assert.True(t, info.FromCache, "Partial results are cached")
		assert.Equal(t, m.graphResults, cached)
	})
}

func TestExecuteDAGTraversal(t *testing.T) {
	ctx := context.Background()

	t.Run("DAG results with CIDs are used", func(t *testing.T) {
		u := newTestUnified()
		m := newMockProcessor()
		m.dagResults = []model.Result{{ID: "d1", CID: "bafy1", Score: 0.5}}

		results, _, err := u.ExecuteQuery(ctx, withDAGAndExpand{withExpand{m}}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"SearchByVector", "ExpandByDAGTraversal", "RankResults"}, m.Calls())
		assert.Equal(t, "bafy1", results[0].CID)
		assert.True(t, m.lastDAGOpts.VisitNodesOnce)
		assert.True(t, m.lastDAGOpts.BatchLoading)
		assert.Equal(t, 100, m.lastDAGOpts.BatchSize)
		assert.Equal(t, 1, u.StrategyPerformance().Get(model.StrategyDAGTraversal).Count)
	})

	t.Run("DAG results without CIDs fall back to graph expansion", func(t *testing.T) {
		m := newMockProcessor()
		m.dagResults = []model.Result{{ID: "d1", Score: 0.5}}

		results, _, err := newTestUnified().ExecuteQuery(ctx, withDAGAndExpand{withExpand{m}}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"SearchByVector", "ExpandByDAGTraversal", "ExpandByGraph", "RankResults"}, m.Calls())
		assert.Equal(t, "g1", results[0].ID)
	})

	t.Run("DAG results without CIDs are kept without graph expansion", func(t *testing.T) {
		m := newMockProcessor()
		m.dagResults = []model.Result{{ID: "d1", Score: 0.5}}

		results, _, err := newTestUnified().ExecuteQuery(ctx, withDAG{m}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, "d1", results[0].ID)
	})

	t.Run("Failed DAG traversal falls back to graph expansion", func(t *testing.T) {
		m := newMockProcessor()
		m.dagErr = errors.New("block missing")

		results, _, err := newTestUnified().ExecuteQuery(ctx, withDAGAndExpand{withExpand{m}}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, 1, m.CallCount("ExpandByGraph"))
		assert.Equal(t, "g1", results[0].ID)
	})

	t.Run("Failed DAG traversal without expansion keeps vector results", func(t *testing.T) {
		m := newMockProcessor()
		m.dagErr = ErrUnsupported

		results, _, err := newTestUnified().ExecuteQuery(ctx, withDAG{m}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, "v1", results[0].ID)
	})

	t.Run("Failed graph expansion keeps vector results", func(t *testing.T) {
		m := newMockProcessor()
		m.graphErr = errors.New("timeout")

		results, _, err := newTestUnified().ExecuteQuery(ctx, withExpand{m}, vectorQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, "v1", results[0].ID)
	})

	t.Run("Processor without DAG support expands by graph", func(t *testing.T) {
		m := newMockProcessor()

		_, _, err := newTestUnified().ExecuteQuery(ctx, withExpand{m}, ipldQuery(), model.PriorityNormal, false)

		require.NoError(t, err)
		assert.Equal(t, []string{"SearchByVector", "ExpandByGraph", "RankResults"}, m.Calls())
	})
}

func TestExecuteMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("Registering twice fails", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		_, err := NewMetrics(registry)
		require.NoError(t, err)

		_, err = NewMetrics(registry)
		assert.Error(t, err)
	})

	t.Run("Cache hits, fallbacks and durations are counted", func(t *testing.T) {
		metrics, err := NewMetrics(prometheus.NewRegistry())
		require.NoError(t, err)
		u := NewUnified(UnifiedConfig{Logger: testLogger(), Metrics: metrics})
		m := newMockProcessor()
		m.dagErr = errors.New("block missing")
		p := withDAGAndExpand{withExpand{m}}

		_, _, err = u.ExecuteQuery(ctx, p, ipldQuery(), model.PriorityNormal, false)
		require.NoError(t, err)
		_, _, err = u.ExecuteQuery(ctx, p, ipldQuery(), model.PriorityNormal, false)
		require.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits.WithLabelValues("ipld")))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fallbacks.WithLabelValues(FallbackFailed)))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.strategyTotal.WithLabelValues("dag_traversal")))
		assert.Equal(t, 1, testutil.CollectAndCount(metrics.queryDuration))
	})
}

func TestExecuteTracing(t *testing.T) {
	t.Run("Execution and planning are traced", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		u := NewUnified(UnifiedConfig{Logger: testLogger(), TracerProvider: provider})
		m := newMockProcessor()

		_, _, err := u.ExecuteQuery(context.Background(), m, vectorQuery(), model.PriorityHigh, false)
		require.NoError(t, err)
		_, _, err = u.ExecuteQuery(context.Background(), m, vectorQuery(), model.PriorityHigh, false)
		require.NoError(t, err)

		spans := recorder.Ended()
		names := []string{}
		for _, s := range spans {
			names = append(names, s.Name())
		}
		assert.Equal(t, []string{"Unified.OptimizeQuery", "Unified.ExecuteQuery", "Unified.OptimizeQuery", "Unified.ExecuteQuery"}, names)

		last := spans[len(spans)-1]
		events := []string{}
		for _, e := range last.Events() {
			events = append(events, e.Name)
		}
		assert.Contains(t, events, "cache_hit")
		assert.Equal(t, spans[0].Parent().SpanID(), spans[1].SpanContext().SpanID(), "Planning is a child of execution")
	})
}
