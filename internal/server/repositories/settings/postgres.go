package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/dbx"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
)

// PostgresRepository reads and latches app_settings over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetInt(ctx context.Context, name string) (int, error) {
	query := `
		SELECT value
		FROM app_settings
		WHERE setting_name = $1
	`
	var v int
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

// LatchBreakglass relies on the row lock taken by UPDATE: of two concurrent
// callers the second re-evaluates "value = 0" after the first commits and
// matches no row.
func (r *PostgresRepository) LatchBreakglass(ctx context.Context) (bool, error) {
	query := `
		UPDATE app_settings
		SET value = 1
		WHERE setting_name = $1 AND value = 0
	`
	res, err := r.db.ExecContext(ctx, query, models.SettingBreakglassSet)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
