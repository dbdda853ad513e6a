package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// NodesDBHandlerFunctions defines the interface for Nodes database operations.
type NodesDBHandlerFunctions interface {
	UpsertNode(ctx context.Context, node *model.Node) error
	SelectNode(ctx context.Context, id string) (*model.Node, error)
	SelectNodes(ctx context.Context, ids []string) ([]*model.Node, error)
	SelectNodesBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, entityTypes []string) ([]*model.Node, error)
	DeleteNode(ctx context.Context, id string) error
	CountNodes(ctx context.Context) (int64, error)
}

// NodesDBHandler handles node-related database operations
type NodesDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewNodesDBHandler creates a new nodes database handler.
// It initializes the database connection and loads node-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewNodesDBHandler(db *helper.Database, embeddingDim int, force bool) (*NodesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	nodesDbHandler := &NodesDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	err = loadSql.LoadNodesSql(db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load nodes sql", err)
	}

	err = nodesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized NodesDBHandler")

	return nodesDbHandler, nil
}

// CreateTable creates the 'nodes' table with its vector index.
// If the table already exists, it does not create it again.
func (h *NodesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_nodes($1);`, h.embeddingDim)
	if err != nil {
		return helper.NewError("init nodes", err)
	}

	h.db.Logger.Info("Checked/created table nodes")

	return nil
}

// UpsertNode inserts a node or replaces the node with the same id
func (h *NodesDBHandler) UpsertNode(ctx context.Context, node *model.Node) error {
	var embedding interface{}
	if len(node.Embedding) > 0 {
		embedding = pgvector.NewVector(node.Embedding)
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_node($1, $2, $3, $4, $5, $6)`,
		node.ID,
		node.CID,
		node.EntityType,
		node.Content,
		node.Properties,
		embedding,
	)

	err := scanNode(row, node)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectNode retrieves a node by id.
// A missing node is reported as sql.ErrNoRows.
func (h *NodesDBHandler) SelectNode(ctx context.Context, id string) (*model.Node, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_node($1)`,
		id,
	)

	node := &model.Node{}
	err := scanNode(row, node)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return node, nil
}

// SelectNodes retrieves the existing nodes among ids in the order of ids
func (h *NodesDBHandler) SelectNodes(ctx context.Context, ids []string) ([]*model.Node, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_nodes($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		node := &model.Node{}
		err := scanNode(rows, node)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodes = append(nodes, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// SelectNodesBySimilarity performs a cosine similarity search on node embeddings.
// Only nodes with a similarity of at least threshold are returned, best first.
// Empty entityTypes match every node.
func (h *NodesDBHandler) SelectNodesBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, entityTypes []string) ([]*model.Node, error) {
	embeddingVector := pgvector.NewVector(embedding)

	var entityTypesParam interface{}
	if len(entityTypes) > 0 {
		entityTypesParam = pq.Array(entityTypes)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_nodes_by_similarity($1, $2, $3, $4)`,
		embeddingVector,
		limit,
		threshold,
		entityTypesParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.Node
	for rows.Next() {
		node := &model.Node{}
		err := scanNode(rows, node, &node.Similarity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// DeleteNode deletes a node by id, its edges are removed with it
func (h *NodesDBHandler) DeleteNode(ctx context.Context, id string) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_node($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// CountNodes returns the number of stored nodes
func (h *NodesDBHandler) CountNodes(ctx context.Context) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRowContext(ctx, `SELECT count_nodes()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner, node *model.Node, extra ...interface{}) error {
	var cid sql.NullString
	var embedding *pgvector.Vector

	dest := []interface{}{
		&node.ID,
		&cid,
		&node.EntityType,
		&node.Content,
		&node.Properties,
		&embedding,
		&node.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return err
	}

	node.CID = cid.String
	node.Embedding = nil
	if embedding != nil {
		node.Embedding = embedding.Slice()
	}
	return nil
}
