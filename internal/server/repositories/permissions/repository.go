// Package permissions reads the static permission reference table.
package permissions

import (
	"context"

	"github.com/dmitrijs2005/requestmanager/internal/server/models"
)

// Repository looks up permissions by name.
type Repository interface {
	// GetByName returns common.ErrorNotFound for an unknown name.
	GetByName(ctx context.Context, name string) (*models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
}
