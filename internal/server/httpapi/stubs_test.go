package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/services"
	"github.com/labstack/echo/v4"
)

const (
	liveToken = "tok-alice"
	liveUser  = "alice"
)

type stubAuth struct {
	authenticateFn func(ctx context.Context, username, password string) (*services.Session, error)
	registerFn     func(ctx context.Context, in services.NewUser) (*models.User, error)
	permissionFn   func(ctx context.Context, permissionName, token string) (bool, error)
	userByTokenFn  func(ctx context.Context, token string) (*models.User, error)
	listFn         func(ctx context.Context) ([]*models.User, error)
	permsFn        func(ctx context.Context) ([]models.Permission, error)

	loggedOut []string
}

func (s *stubAuth) Authenticate(ctx context.Context, username, password string) (*services.Session, error) {
	return s.authenticateFn(ctx, username, password)
}

func (s *stubAuth) CheckToken(_ context.Context, username, token string) bool {
	return username == liveUser && token == liveToken
}

func (s *stubAuth) Logout(_ context.Context, token string) error {
	s.loggedOut = append(s.loggedOut, token)
	return nil
}

func (s *stubAuth) Register(ctx context.Context, in services.NewUser) (*models.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuth) UserByToken(ctx context.Context, token string) (*models.User, error) {
	return s.userByTokenFn(ctx, token)
}

func (s *stubAuth) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.listFn(ctx)
}

func (s *stubAuth) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.permsFn(ctx)
}

func (s *stubAuth) CheckPermission(ctx context.Context, permissionName, token string) (bool, error) {
	if s.permissionFn == nil {
		return false, nil
	}
	return s.permissionFn(ctx, permissionName, token)
}

type stubBreakglass struct {
	set       bool
	isSetErr  error
	createErr error
	passwords []string
}

func (s *stubBreakglass) IsSet(context.Context) (bool, error) { return s.set, s.isSetErr }

func (s *stubBreakglass) Create(_ context.Context, password string) error {
	s.passwords = append(s.passwords, password)
	return s.createErr
}

type stubHealth struct{ report services.HealthReport }

func (s *stubHealth) CheckDatabase(context.Context) services.HealthReport { return s.report }

type stubSettings map[string]int

func (s stubSettings) Int(_ context.Context, name string) (int, error) {
	v, ok := s[name]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return v, nil
}

type testAPI struct {
	e          *echo.Echo
	auth       *stubAuth
	breakglass *stubBreakglass
	health     *stubHealth
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	a := &testAPI{
		auth:       &stubAuth{},
		breakglass: &stubBreakglass{},
		health:     &stubHealth{},
	}
	a.e = NewRouter(Deps{
		Auth:       a.auth,
		Breakglass: a.breakglass,
		Health:     a.health,
		Settings:   stubSettings{models.SettingUserSessionTimeout: 30},
		Logger:     logging.Nop(),
	})
	return a
}

func (a *testAPI) do(method, path, body string, withSession bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if withSession {
		req.AddCookie(&http.Cookie{Name: common.TokenCookieName, Value: liveToken})
		req.AddCookie(&http.Cookie{Name: common.UserCookieName, Value: liveUser})
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}
