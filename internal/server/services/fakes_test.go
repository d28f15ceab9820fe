package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/dbx"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/auth"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/schema"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/settings"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// memStore backs every fake repository. It ignores the DBTX it is bound to,
// so transactional rollback is not modelled; the latch is atomic under mu.
type memStore struct {
	mu sync.Mutex

	users       map[int64]*models.User
	nextUserID  int64
	tokens      map[string]*models.Token
	permissions map[string]models.Permission
	settings    map[string]int
	tables      map[string]bool

	usersErr    error
	tokensErr   error
	permsErr    error
	settingsErr error
	schemaErr   error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[int64]*models.User{},
		tokens: map[string]*models.Token{},
		permissions: map[string]models.Permission{
			"breakglass":         {ID: 0, Name: "breakglass"},
			"create_request":     {ID: 1, Name: "create_request"},
			"resolve_request":    {ID: 2, Name: "resolve_request"},
			"create_user":        {ID: 3, Name: "create_user"},
			"view_users":         {ID: 4, Name: "view_users"},
			"manage_departments": {ID: 5, Name: "manage_departments"},
			"manage_teams":       {ID: 6, Name: "manage_teams"},
		},
		settings: map[string]int{
			models.SettingBreakglassSet:            0,
			models.SettingBreakglassEnabled:        1,
			models.SettingUserSessionTimeout:       30,
			models.SettingBreakglassSessionTimeout: 10,
		},
		tables: map[string]bool{"users": true, "permissions": true, "tokens": true, "app_settings": true},
	}
}

func (s *memStore) countUsers(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.UserName == username {
			n++
		}
	}
	return n
}

func (s *memStore) setting(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[name]
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usersErr != nil {
		return nil, r.s.usersErr
	}
	for _, existing := range r.s.users {
		if existing.UserName == u.UserName || existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	r.s.nextUserID++
	cp := *u
	cp.ID = r.s.nextUserID
	cp.CreatedAt = time.Now()
	cp.PermissionIDs = append([]int64{}, u.PermissionIDs...)
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usersErr != nil {
		return nil, r.s.usersErr
	}
	for _, u := range r.s.users {
		if u.UserName == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usersErr != nil {
		return nil, r.s.usersErr
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) List(ctx context.Context) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usersErr != nil {
		return nil, r.s.usersErr
	}
	out := make([]*models.User, 0, len(r.s.users))
	for id := int64(1); id <= r.s.nextUserID; id++ {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- tokens ---

type memTokens struct{ s *memStore }

func (r memTokens) Upsert(ctx context.Context, t *models.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokensErr != nil {
		return r.s.tokensErr
	}
	for k, existing := range r.s.tokens {
		if existing.CreatedBy == t.CreatedBy {
			delete(r.s.tokens, k)
		}
	}
	cp := *t
	r.s.tokens[t.Token] = &cp
	return nil
}

func (r memTokens) Find(ctx context.Context, token string) (*models.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokensErr != nil {
		return nil, r.s.tokensErr
	}
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTokens) Delete(ctx context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokensErr != nil {
		return r.s.tokensErr
	}
	delete(r.s.tokens, token)
	return nil
}

func (r memTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokensErr != nil {
		return 0, r.s.tokensErr
	}
	var n int64
	for k, t := range r.s.tokens {
		if !t.ValidAt(now) {
			delete(r.s.tokens, k)
			n++
		}
	}
	return n, nil
}

// --- permissions ---

type memPermissions struct{ s *memStore }

func (r memPermissions) GetByName(ctx context.Context, name string) (*models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	p, ok := r.s.permissions[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r memPermissions) List(ctx context.Context) ([]models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.permsErr != nil {
		return nil, r.s.permsErr
	}
	out := make([]models.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- settings ---

type memSettings struct{ s *memStore }

func (r memSettings) GetInt(ctx context.Context, name string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settingsErr != nil {
		return 0, r.s.settingsErr
	}
	v, ok := r.s.settings[name]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return v, nil
}

func (r memSettings) LatchBreakglass(ctx context.Context) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settingsErr != nil {
		return false, r.s.settingsErr
	}
	if r.s.settings[models.SettingBreakglassSet] != 0 {
		return false, nil
	}
	r.s.settings[models.SettingBreakglassSet] = 1
	return true, nil
}

// --- schema ---

type memSchema struct{ s *memStore }

func (r memSchema) TableExists(ctx context.Context, table string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.schemaErr != nil {
		return false, r.s.schemaErr
	}
	return r.s.tables[table], nil
}

// --- manager ---

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return memUsers{m.s} }
func (m *fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository            { return memTokens{m.s} }
func (m *fakeRepoManager) Permissions(dbx.DBTX) permissions.Repository  { return memPermissions{m.s} }
func (m *fakeRepoManager) Settings(dbx.DBTX) settings.Repository        { return memSettings{m.s} }
func (m *fakeRepoManager) Schema(dbx.DBTX) schema.Repository            { return memSchema{m.s} }

// --- throttle ---

type fakeThrottle struct {
	mu       sync.Mutex
	limit    int
	failures map[string]int
	err      error
}

func newFakeThrottle(limit int) *fakeThrottle {
	return &fakeThrottle{limit: limit, failures: map[string]int{}}
}

func (f *fakeThrottle) Allow(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.failures[username] < f.limit, nil
}

func (f *fakeThrottle) Fail(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[username]++
	return f.err
}

func (f *fakeThrottle) Reset(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, username)
	return f.err
}

// --- fixture ---

var testParams = auth.Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32, SaltLen: 16}

type fixture struct {
	store      *memStore
	db         *sql.DB
	throttle   *fakeThrottle
	auth       *AuthService
	breakglass *BreakglassService
	health     *HealthService
	clock      time.Time
}

// newFixture wires the services over the in-memory store. The *sql.DB is an
// in-memory SQLite handle used only to open and commit transactions.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		store:    newMemStore(),
		db:       db,
		throttle: newFakeThrottle(5),
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	rm := &fakeRepoManager{s: f.store}
	hasher := auth.NewHasher(testParams)
	log := logging.Nop()

	f.auth = NewAuthService(db, rm, NewSettingsProvider(db, rm), hasher, f.throttle, log)
	f.auth.now = func() time.Time { return f.clock }
	f.breakglass = NewBreakglassService(db, rm, hasher, log)
	f.health = NewHealthService(db, rm, log)
	return f
}

func (f *fixture) register(t *testing.T, username, password string, perms ...int64) *models.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), NewUser{
		UserName:      username,
		Email:         username + "@example.com",
		Password:      password,
		PermissionIDs: perms,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, username, password string) *Session {
	t.Helper()
	s, err := f.auth.Authenticate(context.Background(), username, password)
	require.NoError(t, err)
	return s
}

// passthrough lets []int64 arguments reach sqlmock unchanged, as pgx's
// database/sql driver accepts them.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
