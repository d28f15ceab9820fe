package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Login throttling.
	ErrorTooManyAttempts = errors.New("too many login attempts")

	// Authorization configuration errors: these indicate a caller or data bug,
	// not a denied request.
	ErrorUnknownPermission = errors.New("unknown permission")
	ErrorInconsistentToken = errors.New("token does not resolve to a user")

	// Breakglass lifecycle errors.
	ErrorBreakglassAlreadySet = errors.New("breakglass account already set")
	ErrorBreakglassDisabled   = errors.New("breakglass account disabled")
)
