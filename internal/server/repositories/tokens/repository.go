// Package tokens declares the session token store: one live token per user,
// keyed by the owning user id.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/server/models"
)

// Repository stores at most one live token per user.
type Repository interface {
	// Upsert stores token as the only token of token.CreatedBy, replacing any
	// previous one in a single statement.
	Upsert(ctx context.Context, token *models.Token) error

	// Find returns the token record for the opaque token string, or
	// common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.Token, error)

	// Delete removes a token by value. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes tokens whose deadline is not after now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
