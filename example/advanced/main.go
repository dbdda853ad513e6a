package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/graphrag"
	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// A small content-addressed document graph: a root block links to sections,
// sections link to shared paragraphs.
var blocks = []*model.Node{
	{ID: "root", CID: "bafyroot", EntityType: "document", Content: "Handbook on content-addressed storage"},
	{ID: "section-dag", CID: "bafysecdag", EntityType: "section", Content: "Merkle DAGs link blocks by their content identifier"},
	{ID: "section-pinning", CID: "bafysecpin", EntityType: "section", Content: "Pinning keeps blocks available on IPFS nodes"},
	{ID: "paragraph-hash", CID: "bafyparhash", EntityType: "paragraph", Content: "A CID is derived from the hash of the block data"},
	{ID: "paragraph-gc", CID: "bafyparge", EntityType: "paragraph", Content: "Unpinned blocks are removed by garbage collection"},
}

var links = []*model.Edge{
	{SourceID: "root", TargetID: "section-dag", EdgeType: "links", Weight: 1},
	{SourceID: "root", TargetID: "section-pinning", EdgeType: "links", Weight: 1},
	{SourceID: "section-dag", TargetID: "paragraph-hash", EdgeType: "links", Weight: 1},
	{SourceID: "section-pinning", TargetID: "paragraph-hash", EdgeType: "links", Weight: 1},
	{SourceID: "section-pinning", TargetID: "paragraph-gc", EdgeType: "links", Weight: 1},
}

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// IPLD queries get a bigger vector weight than the defaults
	config := model.DefaultOptimizerConfig()
	config.IPLD.VectorWeight = 0.8
	config.IPLD.GraphWeight = 0.2

	registry := prometheus.NewRegistry()
	g, err := graphrag.NewGraphRAG(dbConfig, pipeline.DefaultEmbeddingDim, graphrag.Options{
		OptimizerConfig: &config,
		Registerer:      registry,
		LogLevel:        slog.LevelWarn,
	})
	if err != nil {
		log.Fatalf("Failed to create graphrag: %v", err)
	}
	defer g.Close()

	if err := g.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}
	if err := g.InsertNodes(ctx, blocks...); err != nil {
		log.Fatalf("Failed to insert blocks: %v", err)
	}
	if err := g.InsertEdges(ctx, links...); err != nil {
		log.Fatalf("Failed to insert links: %v", err)
	}
	if _, err := g.RefreshGraphInfo(ctx, model.GraphTypeIPLD); err != nil {
		log.Fatalf("Failed to refresh graph info: %v", err)
	}

	// 1. Keyword detection routes the query to the IPLD optimizer
	queryText := "How is a CID computed in an IPFS dag?"
	results, info, err := g.Search(ctx, queryText, model.PriorityHigh)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	fmt.Printf("Query: %s\n", queryText)
	printPlan(info.Plan)
	printResults(results)

	// 2. The same search again is answered from the cache
	_, info, err = g.Search(ctx, queryText, model.PriorityHigh)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}
	fmt.Printf("\nRepeated query served from cache: %v\n", info.FromCache)

	// 3. Direct graph queries need no embedding
	pathQuery := &model.Query{SourceEntity: "root", TargetEntity: "paragraph-gc"}
	results, _, err = g.Execute(ctx, pathQuery, model.PriorityNormal)
	if err != nil {
		log.Fatalf("Failed to find path: %v", err)
	}
	fmt.Println("\nPath from root to paragraph-gc:")
	printResults(results)

	entityQuery := &model.Query{EntityID: "section-pinning", Traversal: &model.Traversal{MaxDepth: 1}}
	results, _, err = g.Execute(ctx, entityQuery, model.PriorityLow)
	if err != nil {
		log.Fatalf("Failed to look up entity: %v", err)
	}
	fmt.Println("\nNeighbourhood of section-pinning:")
	printResults(results)

	// 4. Plans can be inspected without executing them
	plan, err := g.Plan(ctx, &model.Query{QueryText: "wikidata people born in 1815", MaxTraversalDepth: 4}, model.PriorityCritical)
	if err != nil {
		log.Fatalf("Failed to plan: %v", err)
	}
	fmt.Println("\nPlan of a wikidata query:")
	printPlan(plan)

	stats := g.Optimizer.QueryStats()
	fmt.Printf("\nQueries: %d, cache hit rate: %.2f, average time: %.4fs\n", stats.QueryCount(), stats.CacheHitRate(), stats.AvgQueryTime())

	families, err := registry.Gather()
	if err != nil {
		log.Fatalf("Failed to gather metrics: %v", err)
	}
	fmt.Printf("Exported %d metric families\n", len(families))

	fmt.Println("\nAdvanced example completed successfully!")
}

func printPlan(plan *model.QueryPlan) {
	out, err := json.MarshalIndent(struct {
		GraphType model.GraphType `json:"graph_type"`
		Strategy  model.Strategy  `json:"traversal_strategy"`
		Weights   model.Weights   `json:"weights"`
		Budget    model.Budget    `json:"budget"`
	}{plan.GraphType, plan.TraversalStrategy, plan.Weights, plan.Budget}, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal plan: %v", err)
	}
	fmt.Println(string(out))
}

func printResults(results []model.Result) {
	for i, r := range results {
		fmt.Printf("  %d. %s [%s] score %.4f depth %d\n", i+1, r.ID, r.CID, r.Score, r.Depth)
	}
}
