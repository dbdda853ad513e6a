package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/graphrag/helper"
)

// IndexType is a pgvector index method
type IndexType string

const (
	IndexTypeHNSW    IndexType = "hnsw"
	IndexTypeIVFFlat IndexType = "ivfflat"
)

const embeddingIndexName = "idx_nodes_embedding"

// IndexOptions tune the vector index. Zero values use the pgvector defaults.
type IndexOptions struct {
	// HNSW
	M              int
	EfConstruction int
	// IVFFlat
	Lists int
}

func (o IndexOptions) withDefaults() IndexOptions {
	if o.M <= 0 {
		o.M = 16
	}
	if o.EfConstruction <= 0 {
		o.EfConstruction = 64
	}
	if o.Lists <= 0 {
		o.Lists = 100
	}
	return o
}

// createIndexStatement builds the CREATE INDEX statement of an index type.
// Options are integers, so formatting them into the statement is safe.
func createIndexStatement(indexType IndexType, opts IndexOptions) (string, error) {
	opts = opts.withDefaults()
	switch indexType {
	case IndexTypeHNSW:
		return fmt.Sprintf(
			`CREATE INDEX %s ON nodes USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			embeddingIndexName, opts.M, opts.EfConstruction,
		), nil
	case IndexTypeIVFFlat:
		return fmt.Sprintf(
			`CREATE INDEX %s ON nodes USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			embeddingIndexName, opts.Lists,
		), nil
	default:
		return "", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType)
	}
}

// ChangeIndexType replaces the vector index on the node embeddings.
// The old index is only dropped if the new one can be built, both happen in one transaction.
func (h *NodesDBHandler) ChangeIndexType(ctx context.Context, indexType IndexType, opts IndexOptions) error {
	statement, err := createIndexStatement(indexType, opts)
	if err != nil {
		return helper.NewError("change index type", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DROP INDEX IF EXISTS `+embeddingIndexName+`;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = tx.ExecContext(ctx, statement)
	if err != nil {
		return helper.NewError("create index", err)
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit index change", err)
	}

	h.db.Logger.Info("Changed vector index", slog.String("index_type", string(indexType)), slog.Any("options", opts.withDefaults()))
	return nil
}

// SelectIndexType returns the method of the current vector index
func (h *NodesDBHandler) SelectIndexType(ctx context.Context) (IndexType, error) {
	row := h.db.Instance.QueryRowContext(ctx, `
		SELECT am.amname
		FROM pg_class c
		JOIN pg_am am ON am.oid = c.relam
		WHERE c.relname = $1 AND c.relkind = 'i';`,
		embeddingIndexName,
	)

	var method string
	err := row.Scan(&method)
	if errors.Is(err, sql.ErrNoRows) {
		return "", helper.NewError("select index type", fmt.Errorf("no vector index: %w", err))
	}
	if err != nil {
		return "", helper.NewError("select index type", err)
	}
	return IndexType(method), nil
}
