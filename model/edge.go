package model

import (
	"time"

	"github.com/google/uuid"
)

// Edge is a typed, directed relation between two nodes in the graph store
type Edge struct {
	ID        uuid.UUID `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	EdgeType  string    `json:"edge_type"`
	Weight    float64   `json:"weight"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the node on the other end of the edge as seen from nodeID
func (e *Edge) Other(nodeID string) string {
	if e.SourceID == nodeID {
		return e.TargetID
	}
	return e.SourceID
}

// EdgeTypeCount is the number of edges of one type in a graph of NodeCount nodes
type EdgeTypeCount struct {
	EdgeType  string `json:"edge_type"`
	EdgeCount int64  `json:"edge_count"`
	NodeCount int64  `json:"node_count"`
}
