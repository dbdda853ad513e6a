package graph

import (
	"context"

	"github.com/siherrmann/graphrag/model"
)

// GraphDB defines the interface for graph operations
type GraphDB interface {
	GetNode(ctx context.Context, id string) (*model.Node, error)
	GetNodes(ctx context.Context, ids []string) ([]*model.Node, error)
	// GetEdges returns the outbound edges of a node, and its inbound edges too
	// when followBidirectional is set. Empty edgeTypes match every edge.
	GetEdges(ctx context.Context, nodeID string, edgeTypes []string, followBidirectional bool) ([]*model.Edge, error)
}

// TraversalResult contains a node and its distance from the source
type TraversalResult struct {
	Node     *model.Node
	Distance int
	Path     []string // Path from source to this node
}

// BFS performs breadth-first search from a source node
func BFS(ctx context.Context, db GraphDB, sourceID string, maxHops int, edgeTypes []string, followBidirectional bool) ([]*TraversalResult, error) {
	return Expand(ctx, db, []string{sourceID}, maxHops, edgeTypes, followBidirectional)
}

// Expand performs a breadth-first search from several sources at once.
// Every node is reported once, with its distance to the closest source.
// Sources that cannot be loaded are an error.
func Expand(ctx context.Context, db GraphDB, sourceIDs []string, maxHops int, edgeTypes []string, followBidirectional bool) ([]*TraversalResult, error) {
	visited := make(map[string]bool)
	queue := []TraversalResult{}

	for _, sourceID := range sourceIDs {
		if visited[sourceID] {
			continue
		}
		sourceNode, err := db.GetNode(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		visited[sourceID] = true
		queue = append(queue, TraversalResult{
			Node:     sourceNode,
			Distance: 0,
			Path:     []string{sourceID},
		})
	}

	var results []*TraversalResult
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		results = append(results, &current)

		// Stop if we've reached max hops
		if current.Distance >= maxHops {
			continue
		}

		edges, err := db.GetEdges(ctx, current.Node.ID, edgeTypes, followBidirectional)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			targetID, ok := nextNode(edge, current.Node.ID, followBidirectional)
			if !ok || visited[targetID] {
				continue
			}

			targetNode, err := db.GetNode(ctx, targetID)
			if err != nil {
				continue // Skip if node not found
			}

			visited[targetID] = true
			queue = append(queue, TraversalResult{
				Node:     targetNode,
				Distance: current.Distance + 1,
				Path:     appendPath(current.Path, targetID),
			})
		}
	}

	return results, nil
}

// DFS performs depth-first search from a source node
func DFS(ctx context.Context, db GraphDB, sourceID string, maxHops int, edgeTypes []string, followBidirectional bool) ([]*TraversalResult, error) {
	visited := make(map[string]bool)
	var results []*TraversalResult

	sourceNode, err := db.GetNode(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	dfsRecursive(ctx, db, sourceNode, 0, maxHops, []string{sourceID}, edgeTypes, followBidirectional, visited, &results)

	return results, nil
}

// dfsRecursive is the recursive helper for DFS
func dfsRecursive(
	ctx context.Context,
	db GraphDB,
	current *model.Node,
	distance int,
	maxHops int,
	path []string,
	edgeTypes []string,
	followBidirectional bool,
	visited map[string]bool,
	results *[]*TraversalResult,
) {
	visited[current.ID] = true

	*results = append(*results, &TraversalResult{
		Node:     current,
		Distance: distance,
		Path:     appendPath(path),
	})

	if distance >= maxHops || ctx.Err() != nil {
		return
	}

	edges, err := db.GetEdges(ctx, current.ID, edgeTypes, followBidirectional)
	if err != nil {
		return
	}

	for _, edge := range edges {
		targetID, ok := nextNode(edge, current.ID, followBidirectional)
		if !ok || visited[targetID] {
			continue
		}

		targetNode, err := db.GetNode(ctx, targetID)
		if err != nil {
			continue
		}

		dfsRecursive(ctx, db, targetNode, distance+1, maxHops, appendPath(path, targetID), edgeTypes, followBidirectional, visited, results)
	}
}

// GetNeighbors retrieves immediate neighbors (1-hop) of a node
func GetNeighbors(ctx context.Context, db GraphDB, nodeID string, edgeTypes []string, followBidirectional bool) ([]*model.Node, error) {
	results, err := BFS(ctx, db, nodeID, 1, edgeTypes, followBidirectional)
	if err != nil {
		return nil, err
	}

	// Skip the source node itself (first result)
	neighbors := make([]*model.Node, 0, len(results)-1)
	for i := 1; i < len(results); i++ {
		neighbors = append(neighbors, results[i].Node)
	}

	return neighbors, nil
}

// nextNode returns the node an edge leads to from nodeID.
// Inbound edges are only followed when followBidirectional is set.
func nextNode(edge *model.Edge, nodeID string, followBidirectional bool) (string, bool) {
	switch {
	case edge.SourceID == nodeID && edge.TargetID != "":
		return edge.TargetID, true
	case followBidirectional && edge.TargetID == nodeID && edge.SourceID != "":
		return edge.SourceID, true
	default:
		return "", false
	}
}

// appendPath returns a copy of path with ids appended
func appendPath(path []string, ids ...string) []string {
	newPath := make([]string, len(path), len(path)+len(ids))
	copy(newPath, path)
	return append(newPath, ids...)
}
