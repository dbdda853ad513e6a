package model

import (
	"encoding/json"
	"strings"
)

// GraphType classifies the graph a query runs against
type GraphType string

const (
	GraphTypeGeneral   GraphType = "general"
	GraphTypeWikipedia GraphType = "wikipedia"
	GraphTypeIPLD      GraphType = "ipld"
)

// Valid reports whether the graph type is one of the known types
func (g GraphType) Valid() bool {
	switch g {
	case GraphTypeGeneral, GraphTypeWikipedia, GraphTypeIPLD:
		return true
	}
	return false
}

// Strategy is the name of a graph traversal strategy
type Strategy string

const (
	StrategyBreadthFirst     Strategy = "breadth_first"
	StrategyDepthFirst       Strategy = "depth_first"
	StrategyBidirectional    Strategy = "bidirectional"
	StrategyEntityImportance Strategy = "entity_importance"
	StrategyDAGTraversal     Strategy = "dag_traversal"
	StrategyBreadthLimited   Strategy = "breadth_limited"
	StrategySampling         Strategy = "sampling"
	StrategyPathFinding      Strategy = "path_finding"
)

// Complexity is the coarse class a complexity estimator assigns to a query
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very_high"
)

// EntityFilters restrict vector candidates by entity type
type EntityFilters struct {
	EntityTypes []string `json:"entity_types,omitempty"`
}

// VectorParams are the parameters of the vector search phase
type VectorParams struct {
	TopK                       int      `json:"top_k,omitempty"`
	MinScore                   *float64 `json:"min_score,omitempty"`
	EntityTypes                []string `json:"entity_types,omitempty"`
	SemanticMatchFields        []string `json:"semantic_match_fields,omitempty"`
	UseDimensionalityReduction bool     `json:"use_dimensionality_reduction,omitempty"`
	UseCIDBucketOptimization   bool     `json:"use_cid_bucket_optimization,omitempty"`
	EnableBlockBatchLoading    bool     `json:"enable_block_batch_loading,omitempty"`
}

// Traversal holds the parameters of the graph traversal phase
type Traversal struct {
	MaxDepth                 int                `json:"max_depth,omitempty"`
	EdgeTypes                []string           `json:"edge_types,omitempty"`
	Strategy                 Strategy           `json:"strategy,omitempty"`
	MaxBreadthPerLevel       int                `json:"max_breadth_per_level,omitempty"`
	SampleRatio              float64            `json:"sample_ratio,omitempty"`
	ReorderedBySelectivity   bool               `json:"reordered_by_selectivity,omitempty"`
	EntityScores             map[string]float64 `json:"entity_scores,omitempty"`
	PrioritizeRelationships  bool               `json:"prioritize_relationships,omitempty"`
	FindShortestPath         bool               `json:"find_shortest_path,omitempty"`
	HierarchicalWeight       float64            `json:"hierarchical_weight,omitempty"`
	UseImportancePruning     bool               `json:"use_importance_pruning,omitempty"`
	ImportanceThreshold      float64            `json:"importance_threshold,omitempty"`
	BidirectionalEntityLimit int                `json:"bidirectional_entity_limit,omitempty"`

	// IPLD specific flags
	UseCIDPathOptimization bool `json:"use_cid_path_optimization,omitempty"`
	EnablePathCaching      bool `json:"enable_path_caching,omitempty"`
	VisitNodesOnce         bool `json:"visit_nodes_once,omitempty"`
	BatchLoading           bool `json:"batch_loading,omitempty"`
	BatchSize              int  `json:"batch_size,omitempty"`
	BatchByPrefix          bool `json:"batch_by_prefix,omitempty"`
	VerifyMultihashes      bool `json:"verify_multihashes,omitempty"`
}

// Query describes a hybrid vector + graph retrieval request.
// Absent keys are nil pointers, nil slices or zero values; everything the
// optimizer does not recognise is kept in Extra.
type Query struct {
	QueryVector       []float32      `json:"query_vector,omitempty"`
	MaxVectorResults  int            `json:"max_vector_results,omitempty"`
	MaxTraversalDepth int            `json:"max_traversal_depth,omitempty"`
	EdgeTypes         []string       `json:"edge_types,omitempty"`
	MinSimilarity     *float64       `json:"min_similarity,omitempty"`
	EntityFilters     *EntityFilters `json:"entity_filters,omitempty"`
	VectorParams      *VectorParams  `json:"vector_params,omitempty"`
	Traversal         *Traversal     `json:"traversal,omitempty"`
	EntityID          string         `json:"entity_id,omitempty"`
	EntityIDs         []string       `json:"entity_ids,omitempty"`
	SourceEntity      string         `json:"source_entity,omitempty"`
	TargetEntity      string         `json:"target_entity,omitempty"`
	RelationType      string         `json:"relation_type,omitempty"`
	GraphType         GraphType      `json:"graph_type,omitempty"`
	QueryText         string         `json:"query_text,omitempty"`
	SkipVectorSearch  bool           `json:"skip_vector_search,omitempty"`

	Extra Metadata `json:"-"`
}

// Float64 returns a pointer to v, handy for optional query fields
func Float64(v float64) *float64 {
	return &v
}

// HasVector reports whether the query carries a query vector
func (q *Query) HasVector() bool {
	return q != nil && q.QueryVector != nil
}

// EnsureTraversal returns the traversal sub-query, creating it if absent
func (q *Query) EnsureTraversal() *Traversal {
	if q.Traversal == nil {
		q.Traversal = &Traversal{}
	}
	return q.Traversal
}

// EnsureVectorParams returns the vector parameters, creating them if absent
func (q *Query) EnsureVectorParams() *VectorParams {
	if q.VectorParams == nil {
		q.VectorParams = &VectorParams{}
	}
	return q.VectorParams
}

// Clone returns a deep copy of the query
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}

	c := *q
	c.QueryVector = cloneFloat32s(q.QueryVector)
	c.EdgeTypes = cloneStrings(q.EdgeTypes)
	c.EntityIDs = cloneStrings(q.EntityIDs)
	if q.MinSimilarity != nil {
		c.MinSimilarity = Float64(*q.MinSimilarity)
	}
	if q.EntityFilters != nil {
		c.EntityFilters = &EntityFilters{EntityTypes: cloneStrings(q.EntityFilters.EntityTypes)}
	}
	c.VectorParams = q.VectorParams.Clone()
	c.Traversal = q.Traversal.Clone()
	if q.Extra != nil {
		c.Extra = make(Metadata, len(q.Extra))
		for k, v := range q.Extra {
			c.Extra[k] = v
		}
	}

	return &c
}

// Clone returns a deep copy of the vector parameters
func (v *VectorParams) Clone() *VectorParams {
	if v == nil {
		return nil
	}
	c := *v
	if v.MinScore != nil {
		c.MinScore = Float64(*v.MinScore)
	}
	c.EntityTypes = cloneStrings(v.EntityTypes)
	c.SemanticMatchFields = cloneStrings(v.SemanticMatchFields)
	return &c
}

// Clone returns a deep copy of the traversal parameters
func (t *Traversal) Clone() *Traversal {
	if t == nil {
		return nil
	}
	c := *t
	c.EdgeTypes = cloneStrings(t.EdgeTypes)
	if t.EntityScores != nil {
		c.EntityScores = make(map[string]float64, len(t.EntityScores))
		for k, v := range t.EntityScores {
			c.EntityScores[k] = v
		}
	}
	return &c
}

// MarshalJSON renders the query as one flat object, Extra keys included
func (q Query) MarshalJSON() ([]byte, error) {
	type plain Query
	b, err := json.Marshal(plain(q))
	if err != nil || len(q.Extra) == 0 {
		return b, err
	}

	merged := map[string]interface{}{}
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range q.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// String returns the lowercase JSON form of the query.
// Graph type detection sniffs keywords in it.
func (q *Query) String() string {
	if q == nil {
		return "{}"
	}
	b, err := json.Marshal(q)
	if err != nil {
		return "{}"
	}
	return strings.ToLower(string(b))
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneFloat32s(s []float32) []float32 {
	if s == nil {
		return nil
	}
	return append([]float32{}, s...)
}

const (
	defaultComplexityTopK     = 5
	defaultComplexityMaxDepth = 2
)

// ComplexityScore is the raw score the complexity estimators classify:
// top_k*0.5 + max_depth*2 + len(edge_types)*0.3 with top_k and max_depth
// defaulting to 5 and 2 when absent. Each estimator applies its own thresholds.
func (q *Query) ComplexityScore() float64 {
	topK := defaultComplexityTopK
	maxDepth := defaultComplexityMaxDepth
	edgeTypes := 0

	if q.VectorParams != nil && q.VectorParams.TopK != 0 {
		topK = q.VectorParams.TopK
	}
	if q.Traversal != nil {
		if q.Traversal.MaxDepth != 0 {
			maxDepth = q.Traversal.MaxDepth
		}
		edgeTypes = len(q.Traversal.EdgeTypes)
	}

	return float64(topK)*0.5 + float64(maxDepth)*2 + float64(edgeTypes)*0.3
}
