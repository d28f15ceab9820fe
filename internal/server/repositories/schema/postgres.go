// Package schema inspects the database catalogue for health checks.
package schema

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/requestmanager/internal/dbx"
)

// Repository answers catalogue questions about the current schema.
type Repository interface {
	TableExists(ctx context.Context, table string) (bool, error)
}

// PostgresRepository queries information_schema over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// TableExists reports whether table exists in the current schema.
func (r *PostgresRepository) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
