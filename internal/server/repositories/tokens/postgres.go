package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/dbx"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
)

// PostgresRepository implements session token storage over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, token *models.Token) error {
	query := `
		INSERT INTO tokens (token, created_at, deadline, created_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (created_by) DO UPDATE
		SET token = EXCLUDED.token, created_at = EXCLUDED.created_at, deadline = EXCLUDED.deadline
	`
	if _, err := r.db.ExecContext(ctx, query, token.Token, token.CreatedAt, token.Deadline, token.CreatedBy); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.Token, error) {
	query := `
		SELECT token, created_at, deadline, created_by
		FROM tokens
		WHERE token = $1
	`
	t := &models.Token{}
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.CreatedAt, &t.Deadline, &t.CreatedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM tokens
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM tokens
		WHERE deadline <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
