package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/services"
	"github.com/labstack/echo/v4"
)

// AuthService is the session and permission API the handlers depend on.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (*services.Session, error)
	CheckToken(ctx context.Context, username, token string) bool
	Logout(ctx context.Context, token string) error
	Register(ctx context.Context, in services.NewUser) (*models.User, error)
	UserByToken(ctx context.Context, token string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	CheckPermission(ctx context.Context, permissionName, token string) (bool, error)
}

// BreakglassService guards the one-time emergency account.
type BreakglassService interface {
	IsSet(ctx context.Context) (bool, error)
	Create(ctx context.Context, password string) error
}

// HealthService reports table presence in the Data Store.
type HealthService interface {
	CheckDatabase(ctx context.Context) services.HealthReport
}

// SettingsReader reads integer app settings.
type SettingsReader interface {
	Int(ctx context.Context, name string) (int, error)
}

// Handler serves the JSON API routes registered by NewRouter.
type Handler struct {
	auth          AuthService
	breakglass    BreakglassService
	health        HealthService
	settings      SettingsReader
	secureCookies bool
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Message  string    `json:"message"`
	Status   string    `json:"status"`
	Token    string    `json:"token"`
	User     string    `json:"user"`
	Deadline time.Time `json:"deadline"`
}

// Login handles POST /api/authenticate.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.auth.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	h.setSessionCookies(c, session.Token, req.Username, session.Deadline)
	return c.JSON(http.StatusOK, loginResponse{
		Message:  "Login successful",
		Status:   "success",
		Token:    session.Token,
		User:     req.Username,
		Deadline: session.Deadline,
	})
}

// Logout handles POST /api/logout. It succeeds without a session.
func (h *Handler) Logout(c echo.Context) error {
	token, _ := credentials(c)
	if err := h.auth.Logout(c.Request().Context(), token); err != nil {
		return err
	}
	h.clearSessionCookies(c)
	return c.JSON(http.StatusOK, map[string]string{"success": "Logged out"})
}

// CheckSession handles GET /api/auth/check behind RequireSession.
func (h *Handler) CheckSession(c echo.Context) error {
	username, _ := c.Get(ctxUsername).(string)
	return c.JSON(http.StatusOK, map[string]string{"status": "valid", "user": username})
}

// Self handles GET /api/users/self.
func (h *Handler) Self(c echo.Context) error {
	token, _ := c.Get(ctxToken).(string)
	user, err := h.auth.UserByToken(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrorInconsistentToken) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ListUsers handles GET /api/users. Sessions without view_users get an
// empty list rather than 403.
func (h *Handler) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	token, _ := c.Get(ctxToken).(string)

	ok, err := h.auth.CheckPermission(ctx, "view_users", token)
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(http.StatusOK, []*models.User{})
	}

	list, err := h.auth.ListUsers(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// ListPermissions handles GET /api/permissions.
func (h *Handler) ListPermissions(c echo.Context) error {
	list, err := h.auth.ListPermissions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

type createUserRequest struct {
	Username    string  `json:"username" validate:"required,max=64"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=8"`
	Team        string  `json:"team"`
	Level       int     `json:"level" validate:"min=0"`
	Permissions []int64 `json:"permissions"`
}

// CreateUser handles POST /api/users/new behind RequirePermission(create_user).
func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.Request().Context(), services.NewUser{
		UserName:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		PermissionIDs: req.Permissions,
		Team:          req.Team,
		Level:         req.Level,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": "User created successfully", "user": user})
}

// BreakglassStatus handles GET /api/database/breakglass.
func (h *Handler) BreakglassStatus(c echo.Context) error {
	set, err := h.breakglass.IsSet(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"set": set})
}

type breakglassRequest struct {
	Password string `json:"breakglass-password" validate:"required"`
}

// CreateBreakglass handles POST /api/database/breakglass.
func (h *Handler) CreateBreakglass(c echo.Context) error {
	var req breakglassRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.breakglass.Create(c.Request().Context(), req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"success": "Breakglass account set successfully"})
}

// DatabaseHealth handles GET /api/database/health.
func (h *Handler) DatabaseHealth(c echo.Context) error {
	report := h.health.CheckDatabase(c.Request().Context())
	if !report.Healthy {
		return c.JSON(http.StatusInternalServerError, report)
	}
	return c.JSON(http.StatusOK, report)
}

// Setting handles GET /api/settings/:name.
func (h *Handler) Setting(c echo.Context) error {
	name := c.Param("name")
	v, err := h.settings.Int(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"name": name, "value": v})
}

func (h *Handler) setSessionCookies(c echo.Context, token, username string, deadline time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     common.TokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  deadline,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	c.SetCookie(&http.Cookie{
		Name:     common.UserCookieName,
		Value:    username,
		Path:     "/",
		Expires:  deadline,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookies(c echo.Context) {
	for _, name := range []string{common.TokenCookieName, common.UserCookieName} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == common.TokenCookieName,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
