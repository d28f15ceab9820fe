// Package users declares the user store the authentication core reads and
// writes, and its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/requestmanager/internal/server/models"
)

// Repository stores user accounts.
type Repository interface {
	// Create inserts user and fills in its ID and CreatedAt. A duplicate
	// username or email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetUserByUsername returns common.ErrorNotFound when absent.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUserByID returns common.ErrorNotFound when absent.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	List(ctx context.Context) ([]*models.User, error)
}
