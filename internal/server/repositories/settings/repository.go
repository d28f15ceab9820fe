// Package settings reads and writes the integer app_settings table,
// including the one-way breakglass latch.
package settings

import "context"

// Repository reads integer settings and flips the breakglass latch.
type Repository interface {
	// GetInt returns the value of name, or common.ErrorNotFound.
	GetInt(ctx context.Context, name string) (int, error)

	// LatchBreakglass moves breakglass_set from 0 to 1. It reports false
	// when the latch was already set, in which case nothing changed.
	LatchBreakglass(ctx context.Context) (bool, error)
}
