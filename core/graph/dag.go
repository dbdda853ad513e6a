package graph

import (
	"context"

	"github.com/siherrmann/graphrag/model"
)

// DefaultBatchSize is used for batch loading when no batch size is given
const DefaultBatchSize = 100

// DAGOptions tune a DAG traversal
type DAGOptions struct {
	// VisitNodesOnce reports every node once, otherwise a node is reported for
	// every path it is reached by
	VisitNodesOnce bool
	// BatchLoading loads each level with GetNodes instead of one GetNode per node
	BatchLoading bool
	BatchSize    int
}

// TraverseDAG walks outbound edges level by level from the sources, as in a
// content addressed DAG where links point from parent to child blocks.
// Traversal stops after maxDepth levels. Children that cannot be loaded are skipped.
func TraverseDAG(ctx context.Context, db GraphDB, sourceIDs []string, maxDepth int, edgeTypes []string, opts DAGOptions) ([]*TraversalResult, error) {
	visited := make(map[string]bool)

	sources, err := loadLevel(ctx, db, sourceIDs, opts)
	if err != nil {
		return nil, err
	}

	var level []*TraversalResult
	for _, node := range sources {
		if opts.VisitNodesOnce && visited[node.ID] {
			continue
		}
		visited[node.ID] = true
		level = append(level, &TraversalResult{Node: node, Distance: 0, Path: []string{node.ID}})
	}

	var results []*TraversalResult
	for depth := 0; len(level) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, level...)
		if depth >= maxDepth {
			break
		}

		type link struct {
			parent  *TraversalResult
			childID string
		}
		var links []link
		var childIDs []string
		queued := make(map[string]bool)

		for _, current := range level {
			edges, err := db.GetEdges(ctx, current.Node.ID, edgeTypes, false)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				childID, ok := nextNode(edge, current.Node.ID, false)
				if !ok {
					continue
				}
				if opts.VisitNodesOnce && (visited[childID] || queued[childID]) {
					continue
				}
				if !queued[childID] {
					queued[childID] = true
					childIDs = append(childIDs, childID)
				}
				links = append(links, link{parent: current, childID: childID})
			}
		}

		children, err := loadLevel(ctx, db, childIDs, opts)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]int, len(children))
		for i, child := range children {
			byID[child.ID] = i
		}

		var next []*TraversalResult
		for _, l := range links {
			i, ok := byID[l.childID]
			if !ok {
				continue
			}
			visited[l.childID] = true
			next = append(next, &TraversalResult{
				Node:     children[i],
				Distance: depth + 1,
				Path:     appendPath(l.parent.Path, l.childID),
			})
		}
		level = next
	}

	return results, nil
}

// loadLevel loads the nodes of one traversal level, skipping missing ones
func loadLevel(ctx context.Context, db GraphDB, ids []string, opts DAGOptions) ([]*model.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	if !opts.BatchLoading {
		nodes := make([]*model.Node, 0, len(ids))
		for _, id := range ids {
			node, err := db.GetNode(ctx, id)
			if err != nil {
				continue
			}
			nodes = append(nodes, node)
		}
		return nodes, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	nodes := make([]*model.Node, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		batch, err := db.GetNodes(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, batch...)
	}
	return nodes, nil
}
