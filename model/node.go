package model

import "time"

// Node is an entity stored in the graph store
type Node struct {
	ID         string    `json:"id"`
	CID        string    `json:"cid,omitempty"`
	EntityType string    `json:"entity_type"`
	Content    string    `json:"content"`
	Properties Metadata  `json:"properties,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	// Similarity is set by similarity searches only
	Similarity float64 `json:"similarity,omitempty"`
}

// ToResult converts the node into a result with the given score and depth
func (n *Node) ToResult(score float64, depth int) Result {
	return Result{
		ID:         n.ID,
		Score:      score,
		CID:        n.CID,
		Depth:      depth,
		EntityType: n.EntityType,
		Content:    n.Content,
		Similarity: n.Similarity,
		Metadata:   n.Properties,
	}
}
