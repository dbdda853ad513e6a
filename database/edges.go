package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
	loadSql "github.com/siherrmann/graphrag/sql"
)

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	InsertEdge(ctx context.Context, edge *model.Edge) error
	SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error)
	SelectEdgesFromNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error)
	SelectEdgesToNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error)
	DeleteEdge(ctx context.Context, id uuid.UUID) error
	UpdateEdgeWeight(ctx context.Context, id uuid.UUID, weight float64) error
	SelectEdgeStatistics(ctx context.Context) ([]*model.EdgeTypeCount, error)
}

// EdgesDBHandler handles edge-related database operations
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler.
// It initializes the database connection and loads edge-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
// The nodes table has to exist, edges reference it.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table in the database.
// If the table already exists, it does not create it again.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create the table and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		return helper.NewError("init edges", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// InsertEdge inserts a new edge
func (h *EdgesDBHandler) InsertEdge(ctx context.Context, edge *model.Edge) error {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM insert_edge($1, $2, $3, $4, $5)`,
		edge.SourceID,
		edge.TargetID,
		edge.EdgeType,
		edge.Weight,
		edge.Metadata,
	)

	err := scanEdge(row, edge)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEdge retrieves an edge by ID
func (h *EdgesDBHandler) SelectEdge(ctx context.Context, id uuid.UUID) (*model.Edge, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_edge($1)`,
		id,
	)

	edge := &model.Edge{}
	err := scanEdge(row, edge)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return edge, nil
}

// SelectEdgesFromNode retrieves edges originating from a node.
// Empty edgeTypes match every edge type.
func (h *EdgesDBHandler) SelectEdgesFromNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error) {
	return h.selectEdges(ctx, `SELECT * FROM select_edges_from_node($1, $2)`, nodeID, edgeTypes)
}

// SelectEdgesToNode retrieves edges targeting a node.
// Empty edgeTypes match every edge type.
func (h *EdgesDBHandler) SelectEdgesToNode(ctx context.Context, nodeID string, edgeTypes []string) ([]*model.Edge, error) {
	return h.selectEdges(ctx, `SELECT * FROM select_edges_to_node($1, $2)`, nodeID, edgeTypes)
}

func (h *EdgesDBHandler) selectEdges(ctx context.Context, query string, nodeID string, edgeTypes []string) ([]*model.Edge, error) {
	var edgeTypesParam interface{}
	if len(edgeTypes) > 0 {
		edgeTypesParam = pq.Array(edgeTypes)
	}

	rows, err := h.db.Instance.QueryContext(ctx, query, nodeID, edgeTypesParam)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.Edge
	for rows.Next() {
		edge := &model.Edge{}
		err := scanEdge(rows, edge)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		edges = append(edges, edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// DeleteEdge deletes an edge by ID
func (h *EdgesDBHandler) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT delete_edge($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// UpdateEdgeWeight updates the weight of an edge
func (h *EdgesDBHandler) UpdateEdgeWeight(ctx context.Context, id uuid.UUID, weight float64) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		`SELECT * FROM update_edge_weight($1, $2)`,
		id,
		weight,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectEdgeStatistics counts the edges per edge type
func (h *EdgesDBHandler) SelectEdgeStatistics(ctx context.Context) ([]*model.EdgeTypeCount, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM edge_statistics()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var counts []*model.EdgeTypeCount
	for rows.Next() {
		count := &model.EdgeTypeCount{}
		err := rows.Scan(&count.EdgeType, &count.EdgeCount, &count.NodeCount)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		counts = append(counts, count)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return counts, nil
}

func scanEdge(row rowScanner, edge *model.Edge) error {
	var weight sql.NullFloat64
	err := row.Scan(
		&edge.ID,
		&edge.SourceID,
		&edge.TargetID,
		&edge.EdgeType,
		&weight,
		&edge.Metadata,
		&edge.CreatedAt,
	)
	if err != nil {
		return err
	}
	edge.Weight = weight.Float64
	return nil
}
