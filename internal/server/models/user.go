// Package models defines the records the authentication core persists.
package models

import (
	"slices"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
)

// User is an account. PermissionIDs holds permission ids; 0 is the wildcard.
type User struct {
	ID            int64     `json:"id"`
	UserName      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	PermissionIDs []int64   `json:"permissions"`
	Team          string    `json:"team,omitempty"`
	Level         int       `json:"level"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasPermissionID reports whether id is in the user's permission set.
func (u *User) HasPermissionID(id int64) bool {
	return slices.Contains(u.PermissionIDs, id)
}

// IsBreakglass reports whether the user holds the wildcard permission.
func (u *User) IsBreakglass() bool {
	return u.HasPermissionID(common.BreakglassPermissionID)
}
