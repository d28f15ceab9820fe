// Package httpapi exposes the authentication core over a JSON HTTP API built
// on echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	Auth          AuthService
	Breakglass    BreakglassService
	Health        HealthService
	Settings      SettingsReader
	Logger        logging.Logger
	SecureCookies bool
}

// NewRouter builds the echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newValidator()
	e.HTTPErrorHandler = newHTTPErrorHandler(d.Logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(observe(d.Logger))

	h := &Handler{
		auth:          d.Auth,
		breakglass:    d.Breakglass,
		health:        d.Health,
		settings:      d.Settings,
		secureCookies: d.SecureCookies,
	}
	session := RequireSession(d.Auth)

	api := e.Group("/api")

	api.POST("/authenticate", h.Login)
	api.POST("/login", h.Login)
	api.POST("/logout", h.Logout)
	api.GET("/auth/check", h.CheckSession, session)

	api.GET("/users", h.ListUsers, session)
	api.GET("/users/self", h.Self, session)
	api.POST("/users/new", h.CreateUser, session, RequirePermission(d.Auth, "create_user"))

	api.GET("/permissions", h.ListPermissions, session)

	api.GET("/database/breakglass", h.BreakglassStatus)
	api.POST("/database/breakglass", h.CreateBreakglass)
	api.GET("/database/health", h.DatabaseHealth)

	api.GET("/settings/:name", h.Setting, session)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// Server runs the router until its context is cancelled.
type Server struct {
	address string
	echo    *echo.Echo
	logger  logging.Logger
}

// NewServer returns a Server listening on address.
func NewServer(address string, e *echo.Echo, l logging.Logger) *Server {
	return &Server{address: address, echo: e, logger: l.With("module", "http_server")}
}

// Run blocks serving HTTP and shuts down gracefully when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
