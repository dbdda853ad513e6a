package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/siherrmann/graphrag/core/graph"
	"github.com/siherrmann/graphrag/core/optimizer"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// defaultPathDepth bounds the source to target path search of direct queries
const defaultPathDepth = 3

// NodeStore is the node side of the graph store
type NodeStore interface {
	SelectNode(ctx context.Context, id string) (*model.Node, error)
	SelectNodes(ctx context.Context, ids []string) ([]*model.Node, error)
	SelectNodesBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, entityTypes []string) ([]*model.Node, error)
}

// EdgeStore is the edge side of the graph store
type EdgeStore interface {
	SelectEdgesFromNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error)
	SelectEdgesToNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error)
	SelectEdgeStatistics(ctx context.Context) ([]*model.EdgeTypeCount, error)
}

// Processor executes queries against a node and edge store.
// It implements optimizer.GraphProcessor and all optional capabilities.
type Processor struct {
	nodes NodeStore
	edges EdgeStore
	// FollowBidirectional makes graph expansion follow inbound edges too
	FollowBidirectional bool
	log                 *slog.Logger
}

var (
	_ optimizer.GraphProcessor = (*Processor)(nil)
	_ optimizer.GraphExpander  = (*Processor)(nil)
	_ optimizer.DAGTraverser   = (*Processor)(nil)
	_ optimizer.DirectQuerier  = (*Processor)(nil)
	_ graph.GraphDB            = (*Processor)(nil)
)

// NewProcessor creates a processor over the given stores
func NewProcessor(nodes NodeStore, edges EdgeStore, logger *slog.Logger) (*Processor, error) {
	if nodes == nil || edges == nil {
		return nil, helper.NewError("processor validation", fmt.Errorf("node and edge store are required"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		nodes:               nodes,
		edges:               edges,
		FollowBidirectional: true,
		log:                 logger,
	}, nil
}

// GetNode implements graph.GraphDB
func (p *Processor) GetNode(ctx context.Context, id string) (*model.Node, error) {
	return p.nodes.SelectNode(ctx, id)
}

// GetNodes implements graph.GraphDB
func (p *Processor) GetNodes(ctx context.Context, ids []string) ([]*model.Node, error) {
	return p.nodes.SelectNodes(ctx, ids)
}

// GetEdges implements graph.GraphDB
func (p *Processor) GetEdges(ctx context.Context, nodeID string, edgeTypes []string, followBidirectional bool) ([]*model.Edge, error) {
	edges, err := p.edges.SelectEdgesFromNode(ctx, nodeID, edgeTypes)
	if err != nil {
		return nil, helper.NewError("select outbound edges", err)
	}
	if !followBidirectional {
		return edges, nil
	}

	inbound, err := p.edges.SelectEdgesToNode(ctx, nodeID, edgeTypes)
	if err != nil {
		return nil, helper.NewError("select inbound edges", err)
	}
	return append(edges, inbound...), nil
}

// SearchByVector returns the topK nodes most similar to vector with a
// similarity of at least minScore
func (p *Processor) SearchByVector(ctx context.Context, vector []float32, topK int, minScore float64) ([]model.Result, error) {
	nodes, err := p.nodes.SelectNodesBySimilarity(ctx, vector, topK, minScore, nil)
	if err != nil {
		return nil, helper.NewError("similarity search", err)
	}

	results := make([]model.Result, 0, len(nodes))
	for _, node := range nodes {
		results = append(results, node.ToResult(node.Similarity, 0))
	}
	return results, nil
}

// ExpandByGraph adds the nodes within maxDepth hops of the candidates.
// Reached nodes inherit the similarity of the candidate they were reached from.
func (p *Processor) ExpandByGraph(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string) ([]model.Result, error) {
	traversed, err := graph.Expand(ctx, p, resultIDs(candidates), maxDepth, edgeTypes, p.FollowBidirectional)
	if err != nil {
		return nil, helper.NewError("expand by graph", err)
	}
	return traversalResults(candidates, traversed), nil
}

// ExpandByDAGTraversal follows outbound links of the candidates like a DAG walk
func (p *Processor) ExpandByDAGTraversal(ctx context.Context, candidates []model.Result, maxDepth int, edgeTypes []string, opts optimizer.DAGOptions) ([]model.Result, error) {
	traversed, err := graph.TraverseDAG(ctx, p, resultIDs(candidates), maxDepth, edgeTypes, graph.DAGOptions{
		VisitNodesOnce: opts.VisitNodesOnce,
		BatchLoading:   opts.BatchLoading,
		BatchSize:      opts.BatchSize,
	})
	if err != nil {
		return nil, helper.NewError("dag traversal", err)
	}
	return traversalResults(candidates, traversed), nil
}

// RankResults scores every result with
// vectorWeight*similarity + graphWeight/(depth+1) and sorts them best first.
// Duplicate ids keep their best scored entry.
func (p *Processor) RankResults(ctx context.Context, results []model.Result, vectorWeight, graphWeight float64) ([]model.Result, error) {
	best := make(map[string]int, len(results))
	ranked := make([]model.Result, 0, len(results))
	for _, r := range results {
		r.Score = vectorWeight*r.Similarity + graphWeight/float64(r.Depth+1)
		if i, ok := best[r.ID]; ok {
			if r.Score > ranked[i].Score {
				ranked[i] = r
			}
			continue
		}
		best[r.ID] = len(ranked)
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// GetEntityInfo describes the connections of a node
func (p *Processor) GetEntityInfo(ctx context.Context, entityID string) (*model.EntityInfo, error) {
	node, err := p.nodes.SelectNode(ctx, entityID)
	if err != nil {
		return nil, helper.NewError("select node", err)
	}

	outbound, err := p.edges.SelectEdgesFromNode(ctx, entityID, nil)
	if err != nil {
		return nil, helper.NewError("select outbound edges", err)
	}
	inbound, err := p.edges.SelectEdgesToNode(ctx, entityID, nil)
	if err != nil {
		return nil, helper.NewError("select inbound edges", err)
	}

	info := &model.EntityInfo{
		Type:       node.EntityType,
		Properties: node.Properties,
	}
	for _, edge := range outbound {
		info.OutboundConnections = append(info.OutboundConnections, model.Connection{EntityID: edge.TargetID, RelationType: edge.EdgeType})
	}
	for _, edge := range inbound {
		info.InboundConnections = append(info.InboundConnections, model.Connection{EntityID: edge.SourceID, RelationType: edge.EdgeType})
	}
	return info, nil
}

// DirectGraphQuery answers queries without a vector.
// Entity lookups return the entities and their neighbourhood up to the
// traversal depth. Source and target queries return the shortest path between
// both. Anything else is optimizer.ErrUnsupported.
func (p *Processor) DirectGraphQuery(ctx context.Context, q *model.Query) ([]model.Result, error) {
	if q == nil {
		return nil, optimizer.ErrUnsupported
	}

	edgeTypes := q.EdgeTypes
	depth := q.MaxTraversalDepth
	if q.Traversal != nil {
		if len(q.Traversal.EdgeTypes) > 0 {
			edgeTypes = q.Traversal.EdgeTypes
		}
		if q.Traversal.MaxDepth > 0 {
			depth = q.Traversal.MaxDepth
		}
	}

	switch {
	case q.EntityID != "" || len(q.EntityIDs) > 0:
		return p.lookupEntities(ctx, entityIDs(q), depth, edgeTypes)
	case q.SourceEntity != "" && q.TargetEntity != "":
		if depth <= 0 {
			depth = defaultPathDepth
		}
		return p.findPath(ctx, q.SourceEntity, q.TargetEntity, depth, edgeTypes)
	default:
		return nil, optimizer.ErrUnsupported
	}
}

// GraphInfo measures the edge selectivity and density of the stored graph.
// The selectivity of an edge type is its share of all edges.
func (p *Processor) GraphInfo(ctx context.Context, graphType model.GraphType) (*model.GraphInfo, error) {
	counts, err := p.edges.SelectEdgeStatistics(ctx)
	if err != nil {
		return nil, helper.NewError("select edge statistics", err)
	}

	info := &model.GraphInfo{GraphType: graphType, EdgeSelectivity: map[string]float64{}}
	var total, nodes int64
	for _, c := range counts {
		total += c.EdgeCount
		nodes = c.NodeCount
	}
	if total == 0 {
		return info, nil
	}

	for _, c := range counts {
		info.EdgeSelectivity[c.EdgeType] = float64(c.EdgeCount) / float64(total)
	}
	if nodes > 1 {
		info.GraphDensity = min(1.0, float64(total)/float64(nodes*(nodes-1)))
	}
	return info, nil
}

func (p *Processor) lookupEntities(ctx context.Context, ids []string, depth int, edgeTypes []string) ([]model.Result, error) {
	var existing []string
	for _, id := range ids {
		_, err := p.nodes.SelectNode(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			p.log.Debug("Entity not found", slog.String("entity_id", id))
			continue
		}
		if err != nil {
			return nil, helper.NewError("select node", err)
		}
		existing = append(existing, id)
	}
	if len(existing) == 0 {
		return []model.Result{}, nil
	}

	traversed, err := graph.Expand(ctx, p, existing, max(depth, 0), edgeTypes, p.FollowBidirectional)
	if err != nil {
		return nil, helper.NewError("expand entities", err)
	}

	results := make([]model.Result, 0, len(traversed))
	for _, t := range traversed {
		results = append(results, t.Node.ToResult(1/float64(t.Distance+1), t.Distance))
	}
	return results, nil
}

func (p *Processor) findPath(ctx context.Context, sourceID, targetID string, depth int, edgeTypes []string) ([]model.Result, error) {
	traversed, err := graph.BFS(ctx, p, sourceID, depth, edgeTypes, p.FollowBidirectional)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Result{}, nil
	}
	if err != nil {
		return nil, helper.NewError("path search", err)
	}

	byID := make(map[string]*model.Node, len(traversed))
	var path []string
	for _, t := range traversed {
		byID[t.Node.ID] = t.Node
		if t.Node.ID == targetID {
			path = t.Path
		}
	}

	results := make([]model.Result, 0, len(path))
	for i, id := range path {
		results = append(results, byID[id].ToResult(1, i))
	}
	return results, nil
}

func entityIDs(q *model.Query) []string {
	ids := make([]string, 0, len(q.EntityIDs)+1)
	if q.EntityID != "" {
		ids = append(ids, q.EntityID)
	}
	return append(ids, q.EntityIDs...)
}

func resultIDs(results []model.Result) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}

// traversalResults converts traversed nodes into results. Each node keeps the
// similarity of the candidate its path starts at.
func traversalResults(candidates []model.Result, traversed []*graph.TraversalResult) []model.Result {
	similarity := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		similarity[c.ID] = c.Similarity
	}

	results := make([]model.Result, 0, len(traversed))
	for _, t := range traversed {
		r := t.Node.ToResult(0, t.Distance)
		r.Similarity = similarity[t.Path[0]]
		r.Score = r.Similarity
		results = append(results, r)
	}
	return results
}
