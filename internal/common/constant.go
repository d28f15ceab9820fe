// Package common contains shared constants, sentinel errors and small
// helpers used across Request Manager components.
package common

const (
	// TokenCookieName is the cookie carrying the session token.
	TokenCookieName = "auth_token"
	// UserCookieName is the cookie carrying the username the token was issued to.
	UserCookieName = "user"

	// TokenHeaderName and UserHeaderName are accepted when cookies are absent
	// (non-browser clients).
	TokenHeaderName = "X-Auth-Token"
	UserHeaderName  = "X-User"

	// BreakglassUsername is the fixed username of the emergency account.
	BreakglassUsername = "breakglass"
	// BreakglassEmail is the address stored for the emergency account.
	BreakglassEmail = "breakglass@breakglass.com"
	// BreakglassPermissionID is the wildcard permission id.
	BreakglassPermissionID = 0
)
