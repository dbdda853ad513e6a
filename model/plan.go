package model

import "time"

// Resource names a budgeted or consumed resource
type Resource string

const (
	ResourceVectorSearchMs   Resource = "vector_search_ms"
	ResourceGraphTraversalMs Resource = "graph_traversal_ms"
	ResourceRankingMs        Resource = "ranking_ms"
	ResourceMaxNodes         Resource = "max_nodes"
	ResourceMaxEdges         Resource = "max_edges"
	ResourceTimeoutMs        Resource = "timeout_ms"
	ResourceNodesVisited     Resource = "nodes_visited"
	ResourceEdgesTraversed   Resource = "edges_traversed"
)

// BudgetResources are the resources a budget allocates, in report order
var BudgetResources = []Resource{
	ResourceVectorSearchMs,
	ResourceGraphTraversalMs,
	ResourceRankingMs,
	ResourceMaxNodes,
	ResourceMaxEdges,
	ResourceTimeoutMs,
}

// ConsumptionResources are the resources tracked while a query runs
var ConsumptionResources = []Resource{
	ResourceVectorSearchMs,
	ResourceGraphTraversalMs,
	ResourceRankingMs,
	ResourceNodesVisited,
	ResourceEdgesTraversed,
}

// Budget maps a resource to its ceiling
type Budget map[Resource]float64

// Clone returns a copy of the budget
func (b Budget) Clone() Budget {
	c := make(Budget, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Priority is the caller priority a budget is scaled by
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weights balance vector similarity against graph signals in ranking
type Weights struct {
	Vector float64 `json:"vector"`
	Graph  float64 `json:"graph"`
}

// PlanStatistics is the statistics snapshot stored in a plan
type PlanStatistics struct {
	AvgQueryTime float64 `json:"avg_query_time"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Caching tells the executor whether and under which key a plan is cached
type Caching struct {
	Enabled bool   `json:"enabled"`
	Key     string `json:"key,omitempty"`
}

// QueryPlan is the optimizer's output for one query
type QueryPlan struct {
	Query             *Query         `json:"query"`
	Weights           Weights        `json:"weights"`
	Budget            Budget         `json:"budget"`
	GraphType         GraphType      `json:"graph_type"`
	Statistics        PlanStatistics `json:"statistics"`
	Caching           Caching        `json:"caching"`
	TraversalStrategy Strategy       `json:"traversal_strategy"`
}

// ConsumptionReport is a snapshot of the resources consumed by the current query
type ConsumptionReport struct {
	Consumption             map[Resource]float64 `json:"consumption"`
	Budget                  Budget               `json:"budget"`
	Ratios                  map[Resource]float64 `json:"ratios"`
	OverallConsumptionRatio float64              `json:"overall_consumption_ratio"`
}

// ExecutionInfo describes how a query was executed
type ExecutionInfo struct {
	FromCache     bool               `json:"from_cache"`
	EarlyStopping bool               `json:"early_stopping,omitempty"`
	ExecutionTime time.Duration      `json:"execution_time"`
	Plan          *QueryPlan         `json:"plan"`
	Consumption   *ConsumptionReport `json:"consumption,omitempty"`
}
