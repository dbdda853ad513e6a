package graphrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/graphrag/core/graph"
	"github.com/siherrmann/graphrag/core/optimizer"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/core/processor"
	"github.com/siherrmann/graphrag/database"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
	"go.opentelemetry.io/otel/trace"
)

// optimizerConfigEnv names a YAML file with optimizer settings
const optimizerConfigEnv = "GRAPHRAG_OPTIMIZER_CONFIG"

// GraphRAG wires the graph store, the query processor and the unified optimizer
type GraphRAG struct {
	DB        *helper.Database
	Nodes     *database.NodesDBHandler
	Edges     *database.EdgesDBHandler
	Processor *processor.Processor
	Optimizer *optimizer.Unified
	Pipeline  *pipeline.Pipeline // Optional embedding pipeline
	// Logging
	log *slog.Logger
}

// Options configure a GraphRAG instance. The zero value is valid.
type Options struct {
	// OptimizerConfig overrides the optimizer settings, otherwise the file named
	// by GRAPHRAG_OPTIMIZER_CONFIG or the defaults are used
	OptimizerConfig *model.OptimizerConfig
	// Registerer enables Prometheus metrics when set
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
	LogLevel       slog.Level
}

// NewGraphRAG creates a new GraphRAG instance with all handlers initialized
func NewGraphRAG(config *helper.DatabaseConfiguration, embeddingDim int, options Options) (*GraphRAG, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: options.LogLevel,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	optimizerConfig, err := resolveOptimizerConfig(options.OptimizerConfig)
	if err != nil {
		return nil, err
	}

	var metrics *optimizer.Metrics
	if options.Registerer != nil {
		metrics, err = optimizer.NewMetrics(options.Registerer)
		if err != nil {
			return nil, helper.NewError("create metrics", err)
		}
	}

	// Initialize database
	db := helper.NewDatabase("graphrag", config, logger)
	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Nodes first, edges reference them
	// force=false to not reload if functions already exist
	nodes, err := database.NewNodesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create nodes handler", err)
	}

	edges, err := database.NewEdgesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create edges handler", err)
	}

	proc, err := processor.NewProcessor(nodes, edges, logger)
	if err != nil {
		return nil, helper.NewError("create processor", err)
	}

	unified := optimizer.NewUnified(optimizer.UnifiedConfig{
		Optimizers:     optimizerConfig,
		Logger:         logger,
		Metrics:        metrics,
		TracerProvider: options.TracerProvider,
	})

	return &GraphRAG{
		DB:        db,
		Nodes:     nodes,
		Edges:     edges,
		Processor: proc,
		Optimizer: unified,
		log:       logger,
	}, nil
}

func resolveOptimizerConfig(config *model.OptimizerConfig) (*model.OptimizerConfig, error) {
	if config != nil {
		return config, nil
	}
	path := os.Getenv(optimizerConfigEnv)
	if path == "" {
		return nil, nil
	}
	loaded, err := model.LoadOptimizerConfig(path)
	if err != nil {
		return nil, helper.NewError("load optimizer config", err)
	}
	return loaded, nil
}

// Close closes the database connection
func (g *GraphRAG) Close() error {
	return g.DB.Close()
}

// SetPipeline sets the embedding pipeline
func (g *GraphRAG) SetPipeline(pipeline *pipeline.Pipeline) {
	g.Pipeline = pipeline
}

// UseDefaultPipeline sets up the default embedding pipeline with the
// all-MiniLM-L6-v2 model (384 dimensions)
func (g *GraphRAG) UseDefaultPipeline() error {
	embedder, err := pipeline.DefaultBatchEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	g.Pipeline = pipeline.NewBatchPipeline(embedder)
	return nil
}

// InsertNodes stores nodes, replacing nodes with the same id.
// Nodes without an id get a random one. With a pipeline set, nodes without an
// embedding are embedded from their content first.
func (g *GraphRAG) InsertNodes(ctx context.Context, nodes ...*model.Node) error {
	for _, node := range nodes {
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
	}

	if g.Pipeline != nil {
		if err := g.Pipeline.EmbedNodes(nodes); err != nil {
			return helper.NewError("embed nodes", err)
		}
	}

	for _, node := range nodes {
		if err := g.Nodes.UpsertNode(ctx, node); err != nil {
			return helper.NewError(fmt.Sprintf("insert node %s", node.ID), err)
		}
	}

	g.log.Info("Inserted nodes", slog.Int("count", len(nodes)))
	return nil
}

// InsertEdges stores edges between existing nodes
func (g *GraphRAG) InsertEdges(ctx context.Context, edges ...*model.Edge) error {
	for _, edge := range edges {
		if err := g.Edges.InsertEdge(ctx, edge); err != nil {
			return helper.NewError(fmt.Sprintf("insert edge %s -> %s", edge.SourceID, edge.TargetID), err)
		}
	}

	g.log.Info("Inserted edges", slog.Int("count", len(edges)))
	return nil
}

// RefreshGraphInfo measures edge selectivity and density on the stored graph
// and hands them to the optimizer
func (g *GraphRAG) RefreshGraphInfo(ctx context.Context, graphType model.GraphType) (*model.GraphInfo, error) {
	info, err := g.Processor.GraphInfo(ctx, graphType)
	if err != nil {
		return nil, helper.NewError("refresh graph info", err)
	}
	g.Optimizer.SetGraphInfo(info)

	g.log.Debug("Refreshed graph info", slog.Int("edge_types", len(info.EdgeSelectivity)), slog.Float64("density", info.GraphDensity))
	return info, nil
}

// Search embeds the query text with the pipeline and executes it
func (g *GraphRAG) Search(ctx context.Context, query string, priority model.Priority) ([]model.Result, *model.ExecutionInfo, error) {
	if g.Pipeline == nil {
		return nil, nil, helper.NewError("search", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	vector, err := g.Pipeline.EmbedQuery(query)
	if err != nil {
		return nil, nil, helper.NewError("search", err)
	}

	return g.Execute(ctx, &model.Query{QueryText: query, QueryVector: vector}, priority)
}

// Execute optimizes and executes a query
func (g *GraphRAG) Execute(ctx context.Context, q *model.Query, priority model.Priority) ([]model.Result, *model.ExecutionInfo, error) {
	return g.Optimizer.ExecuteQuery(ctx, g.Processor, q, priority, false)
}

// Plan returns the optimized plan of a query without executing it
func (g *GraphRAG) Plan(ctx context.Context, q *model.Query, priority model.Priority) (*model.QueryPlan, error) {
	return g.Optimizer.OptimizeQuery(ctx, q, priority, g.Processor)
}

// BFSTraversal performs breadth-first traversal from a node
func (g *GraphRAG) BFSTraversal(ctx context.Context, sourceID string, maxHops int, edgeTypes []string, followBidirectional bool) ([]*graph.TraversalResult, error) {
	return graph.BFS(ctx, g.Processor, sourceID, maxHops, edgeTypes, followBidirectional)
}

// DFSTraversal performs depth-first traversal from a node
func (g *GraphRAG) DFSTraversal(ctx context.Context, sourceID string, maxHops int, edgeTypes []string, followBidirectional bool) ([]*graph.TraversalResult, error) {
	return graph.DFS(ctx, g.Processor, sourceID, maxHops, edgeTypes, followBidirectional)
}

// ChangeIndexType changes the vector index type of the nodes table
func (g *GraphRAG) ChangeIndexType(ctx context.Context, indexType database.IndexType, opts database.IndexOptions) error {
	return g.Nodes.ChangeIndexType(ctx, indexType, opts)
}
