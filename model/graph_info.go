package model

// GraphInfo carries the metadata of the graph a query runs against
type GraphInfo struct {
	GraphType GraphType `json:"graph_type" yaml:"graph_type"`
	// EdgeSelectivity maps an edge type to a value in [0,1], lower is more selective
	EdgeSelectivity map[string]float64 `json:"edge_selectivity,omitempty" yaml:"edge_selectivity,omitempty"`
	// GraphDensity is a value in [0,1]
	GraphDensity float64 `json:"graph_density" yaml:"graph_density"`
}

// DefaultIPLDGraphDensity is used for IPLD graphs when no density is known
const DefaultIPLDGraphDensity = 0.4

// Clone returns a deep copy of the graph info
func (g *GraphInfo) Clone() *GraphInfo {
	if g == nil {
		return nil
	}
	c := *g
	if g.EdgeSelectivity != nil {
		c.EdgeSelectivity = make(map[string]float64, len(g.EdgeSelectivity))
		for k, v := range g.EdgeSelectivity {
			c.EdgeSelectivity[k] = v
		}
	}
	return &c
}
