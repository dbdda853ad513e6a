package model

// Result is a scored record returned by a graph processor
type Result struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	CID        string   `json:"cid,omitempty"`
	Depth      int      `json:"depth,omitempty"`
	EntityType string   `json:"entity_type,omitempty"`
	Content    string   `json:"content,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// HasCID reports whether any of the results carries a content identifier
func HasCID(results []Result) bool {
	for _, r := range results {
		if r.CID != "" {
			return true
		}
	}
	return false
}
