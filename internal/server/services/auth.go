// Package services contains server-side business logic: session
// authentication, permission evaluation, the breakglass lifecycle and
// database health checks.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"github.com/dmitrijs2005/requestmanager/internal/server/metrics"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/dmitrijs2005/requestmanager/internal/server/repositories/repomanager"
)

// tokenBytes is the amount of randomness in a session token; the token is
// its hex encoding.
const tokenBytes = 32

// Hasher hashes and verifies passwords. Verify must not error or panic on
// malformed input.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(encoded, plaintext string) bool
}

// Throttle limits failed logins per username.
type Throttle interface {
	Allow(ctx context.Context, username string) (bool, error)
	Fail(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// Session is the result of a successful login.
type Session struct {
	Token    string
	Deadline time.Time
	Policy   models.SessionPolicy
	User     *models.User
}

// NewUser is the input of Register.
type NewUser struct {
	UserName      string
	Email         string
	Password      string
	PermissionIDs []int64
	Team          string
	Level         int
}

// AuthService issues and validates session tokens and evaluates
// permissions. It keeps no session state in memory.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	settings    *SettingsProvider
	hasher      Hasher
	throttle    Throttle
	logger      logging.Logger
	now         func() time.Time

	// dummyHash is verified against when the username is unknown so the
	// response time does not reveal whether the account exists.
	dummyHash string
}

// NewAuthService wires the service to its store, settings, hasher and login
// throttle.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, settings *SettingsProvider,
	hasher Hasher, throttle Throttle, logger logging.Logger) *AuthService {

	dummy, err := hasher.Hash(common.BreakglassUsername)
	if err != nil {
		logger.Warn(context.Background(), "dummy hash unavailable", "error", err)
	}

	return &AuthService{
		db:          db,
		repomanager: m,
		settings:    settings,
		hasher:      hasher,
		throttle:    throttle,
		logger:      logger.With("module", "auth_service"),
		now:         time.Now,
		dummyHash:   dummy,
	}
}

// Authenticate verifies username and password and starts a session. Any
// previous token of the user stops working. Unknown users and wrong
// passwords both yield common.ErrorUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		metrics.LoginsTotal.WithLabelValues("unauthorized").Inc()
		return nil, common.ErrorUnauthorized
	}

	allowed, err := s.throttle.Allow(ctx, username)
	if err != nil {
		s.logger.Warn(ctx, "login throttle unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		metrics.LoginsTotal.WithLabelValues("throttled").Inc()
		return nil, common.ErrorTooManyAttempts
	}

	user, err := s.repomanager.Users(s.db).GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(s.dummyHash, password)
			s.recordFailure(ctx, username)
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "user lookup failed", "username", username, "error", err)
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, common.ErrorInternal
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		s.recordFailure(ctx, username)
		return nil, common.ErrorUnauthorized
	}

	if user.IsBreakglass() {
		enabled, err := s.settings.BreakglassEnabled(ctx)
		if err != nil {
			s.logger.Error(ctx, "reading breakglass_enabled failed", "error", err)
			metrics.LoginsTotal.WithLabelValues("error").Inc()
			return nil, common.ErrorInternal
		}
		if !enabled {
			metrics.LoginsTotal.WithLabelValues("disabled").Inc()
			return nil, common.ErrorBreakglassDisabled
		}
	}

	policy, err := s.settings.SessionPolicy(ctx, user)
	if err != nil {
		s.logger.Error(ctx, "resolving session policy failed", "username", username, "error", err)
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, common.ErrorInternal
	}

	value, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		s.logger.Error(ctx, "token generation failed", "error", err)
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, common.ErrorInternal
	}

	now := s.now()
	token := &models.Token{
		Token:     value,
		CreatedAt: now,
		Deadline:  now.Add(policy.Timeout),
		CreatedBy: user.ID,
	}
	if err := s.repomanager.Tokens(s.db).Upsert(ctx, token); err != nil {
		s.logger.Error(ctx, "storing token failed", "username", username, "error", err)
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, common.ErrorInternal
	}

	if err := s.throttle.Reset(ctx, username); err != nil {
		s.logger.Warn(ctx, "login throttle reset failed", "username", username, "error", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info(ctx, "login", "username", username, "policy", policy.Kind, "deadline", token.Deadline)

	return &Session{Token: value, Deadline: token.Deadline, Policy: policy, User: user}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, username string) {
	metrics.LoginsTotal.WithLabelValues("unauthorized").Inc()
	if err := s.throttle.Fail(ctx, username); err != nil {
		s.logger.Warn(ctx, "login throttle update failed", "username", username, "error", err)
	}
}

// CheckToken reports whether token is a live session of username. Storage
// errors are logged and reported as an invalid token.
func (s *AuthService) CheckToken(ctx context.Context, username, token string) bool {
	ok := s.checkToken(ctx, username, token)
	result := "invalid"
	if ok {
		result = "valid"
	}
	metrics.TokenChecksTotal.WithLabelValues(result).Inc()
	return ok
}

func (s *AuthService) checkToken(ctx context.Context, username, token string) bool {
	if username == "" || token == "" {
		return false
	}

	record, err := s.repomanager.Tokens(s.db).Find(ctx, token)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "token lookup failed", "error", err)
		}
		return false
	}

	owner, err := s.repomanager.Users(s.db).GetUserByID(ctx, record.CreatedBy)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "token owner lookup failed", "user_id", record.CreatedBy, "error", err)
		}
		return false
	}

	if owner.UserName != username {
		return false
	}
	return record.ValidAt(s.now())
}

// Logout revokes token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repomanager.Tokens(s.db).Delete(ctx, token); err != nil {
		s.logger.Error(ctx, "token delete failed", "error", err)
		return common.ErrorInternal
	}
	return nil
}

// PurgeExpired removes every token whose deadline has passed.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Tokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error(ctx, "expired token purge failed", "error", err)
		return 0, common.ErrorInternal
	}
	return n, nil
}

// Register creates a regular user. The breakglass username and the wildcard
// permission are reserved for BreakglassService.
func (s *AuthService) Register(ctx context.Context, in NewUser) (*models.User, error) {
	if in.UserName == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", common.ErrorValidation)
	}
	if strings.EqualFold(in.UserName, common.BreakglassUsername) {
		return nil, fmt.Errorf("%w: username %q is reserved", common.ErrorValidation, in.UserName)
	}
	for _, id := range in.PermissionIDs {
		if id == common.BreakglassPermissionID {
			return nil, fmt.Errorf("%w: the breakglass permission cannot be granted", common.ErrorValidation)
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrorInternal
	}

	user := &models.User{
		UserName:      in.UserName,
		Email:         in.Email,
		PasswordHash:  hash,
		PermissionIDs: in.PermissionIDs,
		Team:          in.Team,
		Level:         in.Level,
	}
	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		s.logger.Error(ctx, "user insert failed", "username", in.UserName, "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user registered", "username", created.UserName, "user_id", created.ID)
	return created, nil
}

// UserByToken returns the owner of token. It does not check the deadline.
// An unknown token yields common.ErrorUnauthorized.
func (s *AuthService) UserByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorUnauthorized
	}
	_, user, err := s.resolveToken(ctx, token)
	if errors.Is(err, errTokenNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user.
func (s *AuthService) ListUsers(ctx context.Context) ([]*models.User, error) {
	list, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		s.logger.Error(ctx, "user list failed", "error", err)
		return nil, common.ErrorInternal
	}
	return list, nil
}

// ListPermissions returns the permission reference table ordered by id.
func (s *AuthService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	list, err := s.repomanager.Permissions(s.db).List(ctx)
	if err != nil {
		s.logger.Error(ctx, "permission list failed", "error", err)
		return nil, common.ErrorInternal
	}
	return list, nil
}

// CheckPermission reports whether the owner of token holds permissionName or
// the wildcard permission.
//
// The caller must have validated token with CheckToken first: the deadline is
// not checked again here. An unknown permission name yields
// common.ErrorUnknownPermission and a token that does not resolve to a user
// yields common.ErrorInconsistentToken; both indicate a caller bug rather
// than a denial. The result is always false when err is non-nil.
func (s *AuthService) CheckPermission(ctx context.Context, permissionName, token string) (bool, error) {
	granted, err := s.checkPermission(ctx, permissionName, token)
	result := "denied"
	switch {
	case err != nil:
		result = "error"
	case granted:
		result = "granted"
	}
	metrics.PermissionChecksTotal.WithLabelValues(permissionName, result).Inc()
	return granted, err
}

func (s *AuthService) checkPermission(ctx context.Context, permissionName, token string) (bool, error) {
	permission, err := s.repomanager.Permissions(s.db).GetByName(ctx, permissionName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "unknown permission requested", "permission", permissionName)
			return false, fmt.Errorf("%w: %q", common.ErrorUnknownPermission, permissionName)
		}
		s.logger.Error(ctx, "permission lookup failed", "permission", permissionName, "error", err)
		return false, common.ErrorInternal
	}

	_, user, err := s.resolveToken(ctx, token)
	if err != nil {
		return false, err
	}

	if user.IsBreakglass() {
		return true, nil
	}
	return user.HasPermissionID(permission.ID), nil
}

// errTokenNotFound is common.ErrorInconsistentToken narrowed to "no such
// token", so callers that treat an unknown token as unauthenticated can tell
// it from a token whose owner is gone.
var errTokenNotFound = fmt.Errorf("%w: unknown token", common.ErrorInconsistentToken)

// resolveToken maps a token to its record and owner. A missing record or
// owner is reported as common.ErrorInconsistentToken.
func (s *AuthService) resolveToken(ctx context.Context, token string) (*models.Token, *models.User, error) {
	record, err := s.repomanager.Tokens(s.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, errTokenNotFound
		}
		s.logger.Error(ctx, "token lookup failed", "error", err)
		return nil, nil, common.ErrorInternal
	}

	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, record.CreatedBy)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "token owner missing", "user_id", record.CreatedBy)
			return nil, nil, common.ErrorInconsistentToken
		}
		s.logger.Error(ctx, "token owner lookup failed", "user_id", record.CreatedBy, "error", err)
		return nil, nil, common.ErrorInternal
	}
	return record, user, nil
}
