package optimizer

import (
	"context"

	"github.com/siherrmann/graphrag/model"
)

// GraphProcessor is the store a query is executed against.
// Optional operations are separate interfaces, see GraphExpander,
// DAGTraverser and DirectQuerier.
type GraphProcessor interface {
	// SearchByVector returns the topK records most similar to vector, best first
	SearchByVector(ctx context.Context, vector []float32, topK int, minScore float64) ([]model.Result, error)
	// RankResults scores and sorts results, best first
	RankResults(ctx context.Context, results []model.Result, vectorWeight, graphWeight float64) ([]model.Result, error)
	GetEntityInfo(ctx context.Context, entityID string) (*model.EntityInfo, error)
}

// GraphExpander expands vector candidates along graph edges
type GraphExpander interface {
	ExpandByGraph(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string) ([]model.Result, error)
}

// DAGOptions tune a content addressed DAG traversal
type DAGOptions struct {
	VisitNodesOnce bool
	BatchLoading   bool
	BatchSize      int
}

// DAGTraverser expands candidates through a content addressed DAG.
// Results should carry a CID, results without one make the executor fall back
// to GraphExpander.
type DAGTraverser interface {
	ExpandByDAGTraversal(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string, opts DAGOptions) ([]model.Result, error)
}

// DirectQuerier answers queries without a query vector, e.g. entity lookups
type DirectQuerier interface {
	DirectGraphQuery(ctx context.Context, q *model.Query) ([]model.Result, error)
}
