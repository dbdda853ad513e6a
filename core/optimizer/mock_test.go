package optimizer

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// mockProcessor implements the required GraphProcessor operations and records
// every call. The wrapper types below add optional capabilities.
type mockProcessor struct {
	mu    sync.Mutex
	calls []string

	vectorResults []model.Result
	vectorErr     error
	graphResults  []model.Result
	graphErr      error
	dagResults    []model.Result
	dagErr        error
	directResults []model.Result
	directErr     error
	rankErr       error

	entityInfo map[string]*model.EntityInfo
	entityErr  error

	lastTopK     int
	lastMinScore float64
	lastDAGOpts  DAGOptions
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		vectorResults: []model.Result{{ID: "v1", Score: 0.9}, {ID: "v2", Score: 0.8}},
		graphResults:  []model.Result{{ID: "g1", Score: 0.7}, {ID: "g2", Score: 0.6}},
		entityInfo:    map[string]*model.EntityInfo{},
	}
}

func (m *mockProcessor) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockProcessor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockProcessor) CallCount(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockProcessor) SearchByVector(ctx context.Context, vector []float32, topK int, minScore float64) ([]model.Result, error) {
	m.record("SearchByVector")
	m.lastTopK = topK
	m.lastMinScore = minScore
	return m.vectorResults, m.vectorErr
}

func (m *mockProcessor) RankResults(ctx context.Context, results []model.Result, vectorWeight, graphWeight float64) ([]model.Result, error) {
	m.record("RankResults")
	if m.rankErr != nil {
		return nil, m.rankErr
	}
	ranked := append([]model.Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func (m *mockProcessor) GetEntityInfo(ctx context.Context, entityID string) (*model.EntityInfo, error) {
	m.record("GetEntityInfo")
	if m.entityErr != nil {
		return nil, m.entityErr
	}
	if info, ok := m.entityInfo[entityID]; ok {
		return info, nil
	}
	return &model.EntityInfo{}, nil
}

func (m *mockProcessor) expandByGraph() ([]model.Result, error) {
	m.record("ExpandByGraph")
	return m.graphResults, m.graphErr
}

func (m *mockProcessor) expandByDAG(opts DAGOptions) ([]model.Result, error) {
	m.record("ExpandByDAGTraversal")
	m.lastDAGOpts = opts
	return m.dagResults, m.dagErr
}

type withExpand struct{ *mockProcessor }

func (p withExpand) ExpandByGraph(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string) ([]model.Result, error) {
	return p.expandByGraph()
}

type withDAG struct{ *mockProcessor }

func (p withDAG) ExpandByDAGTraversal(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string, opts DAGOptions) ([]model.Result, error) {
	return p.expandByDAG(opts)
}

type withDAGAndExpand struct{ withExpand }

func (p withDAGAndExpand) ExpandByDAGTraversal(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string, opts DAGOptions) ([]model.Result, error) {
	return p.expandByDAG(opts)
}

type withDirect struct{ *mockProcessor }

func (p withDirect) DirectGraphQuery(ctx context.Context, q *model.Query) ([]model.Result, error) {
	p.record("DirectGraphQuery")
	return p.directResults, p.directErr
}

func testLogger() *slog.Logger {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelError,
		},
	}
	return slog.New(helper.NewPrettyHandler(os.Stdout, opts))
}

func newTestUnified() *Unified {
	return NewUnified(UnifiedConfig{Logger: testLogger()})
}
