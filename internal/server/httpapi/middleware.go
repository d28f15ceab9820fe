package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/metrics"
	"github.com/labstack/echo/v4"
)

// Context keys set by RequireSession.
const (
	ctxToken    = "auth_token"
	ctxUsername = "username"
)

// credentials reads the session token and username from cookies, falling
// back to the X-Auth-Token and X-User headers.
func credentials(c echo.Context) (token, username string) {
	if ck, err := c.Cookie(common.TokenCookieName); err == nil {
		token = ck.Value
	}
	if ck, err := c.Cookie(common.UserCookieName); err == nil {
		username = ck.Value
	}
	if token == "" {
		token = c.Request().Header.Get(common.TokenHeaderName)
	}
	if username == "" {
		username = c.Request().Header.Get(common.UserHeaderName)
	}
	return token, username
}

// RequireSession rejects requests without a live session with 401.
func RequireSession(auth AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, username := credentials(c)
			if !auth.CheckToken(c.Request().Context(), username, token) {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			c.Set(ctxToken, token)
			c.Set(ctxUsername, username)
			return next(c)
		}
	}
}

// RequirePermission rejects requests whose session lacks permission with
// 403. It must run after RequireSession, which validates the deadline.
func RequirePermission(auth AuthService, permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, _ := c.Get(ctxToken).(string)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			ok, err := auth.CheckPermission(c.Request().Context(), permission, token)
			if err != nil {
				return err
			}
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "permission denied")
			}
			return next(c)
		}
	}
}

// observe logs every request and records its latency. The request id set by
// the RequestID middleware is put into the request context so service logs
// carry it too. Errors are rendered here so the logged status is the one the
// client sees.
func observe(log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), id)))

			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			res := c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestDuration.
				WithLabelValues(req.Method, route, strconv.Itoa(res.Status)).
				Observe(elapsed.Seconds())

			log.Info(req.Context(), "http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", elapsed.Milliseconds(),
			)
			return nil
		}
	}
}
