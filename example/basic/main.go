package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	g, err := graphrag.NewGraphRAG(dbConfig, pipeline.DefaultEmbeddingDim, graphrag.Options{LogLevel: slog.LevelWarn})
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	// Embeddings with all-MiniLM-L6-v2
	if err := g.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	nodes := []*model.Node{
		{ID: "graph-databases", EntityType: "concept", Content: "Graph databases store entities as nodes and relationships as edges."},
		{ID: "pgvector", EntityType: "software", Content: "pgvector adds vector similarity search to PostgreSQL."},
		{ID: "postgresql", EntityType: "software", Content: "PostgreSQL is an open source relational database."},
		{ID: "graphrag", EntityType: "concept", Content: "GraphRAG combines vector retrieval with graph traversal to answer questions."},
	}
	if err := g.InsertNodes(ctx, nodes...); err != nil {
		log.Fatalf("Failed to insert nodes: %v", err)
	}

	edges := []*model.Edge{
		{SourceID: "graphrag", TargetID: "graph-databases", EdgeType: "uses", Weight: 1},
		{SourceID: "graphrag", TargetID: "pgvector", EdgeType: "uses", Weight: 1},
		{SourceID: "pgvector", TargetID: "postgresql", EdgeType: "extends", Weight: 1},
	}
	if err := g.InsertEdges(ctx, edges...); err != nil {
		log.Fatalf("Failed to insert edges: %v", err)
	}

	// Edge statistics make traversal planning prefer selective edge types
	if _, err := g.RefreshGraphInfo(ctx, model.GraphTypeGeneral); err != nil {
		log.Fatalf("Failed to refresh graph info: %v", err)
	}

	queryText := "How does GraphRAG find related facts?"
	fmt.Printf("Querying: %s\n", queryText)

	results, info, err := g.Search(ctx, queryText, model.PriorityNormal)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nPlan: graph type %s, strategy %s, took %s\n", info.Plan.GraphType, info.Plan.TraversalStrategy, info.ExecutionTime)
	fmt.Printf("Found %d results:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Result %d ---\n", i+1)
		fmt.Printf("ID: %s (depth %d)\n", result.ID, result.Depth)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Content: %s\n", result.Content)
	}

	fmt.Println("\nBasic example completed successfully!")
}
