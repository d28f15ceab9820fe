package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/labstack/echo/v4"
)

// errorResponse is the error envelope of every API error.
type errorResponse struct {
	Error string `json:"error"`
}

// newHTTPErrorHandler maps sentinel errors to status codes and renders
// {"error": "..."}. Unexpected errors are logged and reported as 500 without
// details.
func newHTTPErrorHandler(log logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log logging.Logger, c echo.Context) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, common.ErrorInconsistentToken):
		// the token was replaced or revoked after RequireSession accepted it
		return http.StatusUnauthorized, "session no longer valid"
	case errors.Is(err, common.ErrorTooManyAttempts):
		return http.StatusTooManyRequests, "too many login attempts, try again later"
	case errors.Is(err, common.ErrorBreakglassDisabled):
		return http.StatusForbidden, "breakglass account is disabled"
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorBreakglassAlreadySet):
		return http.StatusConflict, "breakglass account already set"
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	}

	log.Error(c.Request().Context(), "unhandled error",
		"error", err,
		"method", c.Request().Method,
		"path", c.Path(),
	)
	return http.StatusInternalServerError, "internal server error"
}
