package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"github.com/dmitrijs2005/requestmanager/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_TokenValidUntilDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "secret123", 1)

	s := f.login(t, "alice", "secret123")
	assert.Len(t, s.Token, 64)
	assert.Equal(t, models.SessionNormal, s.Policy.Kind)
	assert.Equal(t, f.clock.Add(30*time.Minute), s.Deadline)

	assert.True(t, f.auth.CheckToken(ctx, "alice", s.Token))

	f.clock = f.clock.Add(30*time.Minute - time.Second)
	assert.True(t, f.auth.CheckToken(ctx, "alice", s.Token))

	f.clock = f.clock.Add(time.Second)
	assert.False(t, f.auth.CheckToken(ctx, "alice", s.Token), "expired at the deadline")
}

func TestAuthenticate_TimeoutReadFromSettings(t *testing.T) {
	f := newFixture(t)
	f.store.settings[models.SettingUserSessionTimeout] = 5
	f.register(t, "alice", "pw")

	s := f.login(t, "alice", "pw")
	assert.Equal(t, 5*time.Minute, s.Policy.Timeout)
}

func TestAuthenticate_MissingTimeoutFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	delete(f.store.settings, models.SettingUserSessionTimeout)
	f.register(t, "alice", "pw")

	s := f.login(t, "alice", "pw")
	assert.Equal(t, DefaultUserSessionTimeout, s.Policy.Timeout)
}

func TestAuthenticate_NonPositiveTimeoutIsInternal(t *testing.T) {
	f := newFixture(t)
	f.store.settings[models.SettingUserSessionTimeout] = 0
	f.register(t, "alice", "pw")

	_, err := f.auth.Authenticate(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestAuthenticate_EmptyCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Authenticate(ctx, "", "pw")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.auth.Authenticate(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthenticate_UnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "right")

	_, errUnknown := f.auth.Authenticate(ctx, "ghost", "right")
	_, errWrong := f.auth.Authenticate(ctx, "alice", "wrong")

	assert.ErrorIs(t, errUnknown, common.ErrorUnauthorized)
	assert.ErrorIs(t, errWrong, common.ErrorUnauthorized)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, 1, f.throttle.failures["ghost"])
	assert.Equal(t, 1, f.throttle.failures["alice"])
}

func TestAuthenticate_Throttled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "right")

	for i := 0; i < 5; i++ {
		_, err := f.auth.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, common.ErrorUnauthorized)
	}

	_, err := f.auth.Authenticate(ctx, "alice", "right")
	assert.ErrorIs(t, err, common.ErrorTooManyAttempts)
}

func TestAuthenticate_SuccessResetsThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "right")

	_, _ = f.auth.Authenticate(ctx, "alice", "wrong")
	require.Equal(t, 1, f.throttle.failures["alice"])

	f.login(t, "alice", "right")
	assert.Zero(t, f.throttle.failures["alice"])
}

func TestAuthenticate_ThrottleErrorFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "right")
	f.throttle.err = errBoom{}

	s, err := f.auth.Authenticate(context.Background(), "alice", "right")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
}

func TestAuthenticate_StorageErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("user lookup", func(t *testing.T) {
		f := newFixture(t)
		f.store.usersErr = errBoom{}
		_, err := f.auth.Authenticate(ctx, "alice", "pw")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("token upsert", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw")
		f.store.tokensErr = errBoom{}
		_, err := f.auth.Authenticate(ctx, "alice", "pw")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("settings", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw")
		f.store.settingsErr = errBoom{}
		_, err := f.auth.Authenticate(ctx, "alice", "pw")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})
}

func TestAuthenticate_ReloginInvalidatesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw")

	first := f.login(t, "alice", "pw")
	second := f.login(t, "alice", "pw")

	assert.NotEqual(t, first.Token, second.Token)
	assert.False(t, f.auth.CheckToken(ctx, "alice", first.Token))
	assert.True(t, f.auth.CheckToken(ctx, "alice", second.Token))
}

func TestCheckToken_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	bobs := f.login(t, "bob", "pw").Token

	assert.False(t, f.auth.CheckToken(ctx, "", bobs))
	assert.False(t, f.auth.CheckToken(ctx, "alice", ""))
	assert.False(t, f.auth.CheckToken(ctx, "alice", bobs))
	assert.False(t, f.auth.CheckToken(ctx, "bob", "deadbeef"))
	assert.True(t, f.auth.CheckToken(ctx, "bob", bobs))

	f.store.tokensErr = errBoom{}
	assert.False(t, f.auth.CheckToken(ctx, "bob", bobs), "storage errors degrade to false")
}

func TestCheckToken_OwnerGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice", "pw")
	tok := f.login(t, "alice", "pw").Token

	delete(f.store.users, u.ID)
	assert.False(t, f.auth.CheckToken(ctx, "alice", tok))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw")
	tok := f.login(t, "alice", "pw").Token

	require.NoError(t, f.auth.Logout(ctx, tok))
	assert.False(t, f.auth.CheckToken(ctx, "alice", tok))

	assert.NoError(t, f.auth.Logout(ctx, tok), "unknown token is not an error")
	assert.NoError(t, f.auth.Logout(ctx, ""))

	f.store.tokensErr = errBoom{}
	assert.ErrorIs(t, f.auth.Logout(ctx, "x"), common.ErrorInternal)
}

func TestPurgeExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")
	f.login(t, "alice", "pw")

	f.clock = f.clock.Add(20 * time.Minute)
	bobs := f.login(t, "bob", "pw").Token
	f.clock = f.clock.Add(15 * time.Minute)

	n, err := f.auth.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.True(t, f.auth.CheckToken(ctx, "bob", bobs))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "alice", "pw", 1, 3)
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "pw", u.PasswordHash)
	assert.Equal(t, []int64{1, 3}, u.PermissionIDs)

	_, err := f.auth.Register(ctx, NewUser{UserName: "alice", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)

	f.store.usersErr = errBoom{}
	_, err = f.auth.Register(ctx, NewUser{UserName: "carol", Email: "carol@example.com", Password: "pw"})
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]NewUser{
		"no username":          {Email: "a@example.com", Password: "pw"},
		"no email":             {UserName: "a", Password: "pw"},
		"no password":          {UserName: "a", Email: "a@example.com"},
		"breakglass name":      {UserName: "breakglass", Email: "b@example.com", Password: "pw"},
		"breakglass name case": {UserName: "BreakGlass", Email: "b@example.com", Password: "pw"},
		"wildcard permission":  {UserName: "mallory", Email: "m@example.com", Password: "pw", PermissionIDs: []int64{1, 0}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, in)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
	assert.Zero(t, f.store.countUsers("mallory"))
}

func TestUserByToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice", "pw")
	tok := f.login(t, "alice", "pw").Token

	got, err := f.auth.UserByToken(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.auth.UserByToken(ctx, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.auth.UserByToken(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	delete(f.store.users, u.ID)
	_, err = f.auth.UserByToken(ctx, tok)
	assert.ErrorIs(t, err, common.ErrorInconsistentToken)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw")
	f.register(t, "bob", "pw")

	list, err := f.auth.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].UserName)

	f.store.usersErr = errBoom{}
	_, err = f.auth.ListUsers(context.Background())
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestListPermissions(t *testing.T) {
	f := newFixture(t)

	list, err := f.auth.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 7)
	assert.Equal(t, "breakglass", list[0].Name)
	assert.Equal(t, int64(6), list[6].ID)

	f.store.permsErr = errBoom{}
	_, err = f.auth.ListPermissions(context.Background())
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestCheckPermission_GrantedAndDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw", 1)
	tok := f.login(t, "alice", "pw").Token

	ok, err := f.auth.CheckPermission(ctx, "create_request", tok)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.auth.CheckPermission(ctx, "resolve_request", tok)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.auth.CheckPermission(ctx, "breakglass", tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPermission_WildcardGrantsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.breakglass.Create(ctx, "Str0ngPass!"))
	tok := f.login(t, "breakglass", "Str0ngPass!").Token

	for name := range f.store.permissions {
		ok, err := f.auth.CheckPermission(ctx, name, tok)
		require.NoError(t, err, name)
		assert.True(t, ok, name)
	}
}

func TestCheckPermission_UserWithNoPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw")
	tok := f.login(t, "alice", "pw").Token

	ok, err := f.auth.CheckPermission(ctx, "create_request", tok)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPermission_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice", "pw", 1)
	tok := f.login(t, "alice", "pw").Token

	ok, err := f.auth.CheckPermission(ctx, "creat_request", tok)
	assert.False(t, ok)
	assert.ErrorIs(t, err, common.ErrorUnknownPermission)

	ok, err = f.auth.CheckPermission(ctx, "create_request", "unknown-token")
	assert.False(t, ok)
	assert.ErrorIs(t, err, common.ErrorInconsistentToken)

	f.store.permsErr = errBoom{}
	ok, err = f.auth.CheckPermission(ctx, "create_request", tok)
	assert.False(t, ok)
	assert.ErrorIs(t, err, common.ErrorInternal)
	f.store.permsErr = nil

	delete(f.store.users, u.ID)
	ok, err = f.auth.CheckPermission(ctx, "create_request", tok)
	assert.False(t, ok)
	assert.ErrorIs(t, err, common.ErrorInconsistentToken)
}

func TestCheckPermission_DoesNotRecheckDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "pw", 1)
	tok := f.login(t, "alice", "pw").Token

	f.clock = f.clock.Add(time.Hour)
	require.False(t, f.auth.CheckToken(ctx, "alice", tok))

	ok, err := f.auth.CheckPermission(ctx, "create_request", tok)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthenticate_BreakglassDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.breakglass.Create(ctx, "Str0ngPass!"))
	f.store.settings[models.SettingBreakglassEnabled] = 0

	_, err := f.auth.Authenticate(ctx, "breakglass", "Str0ngPass!")
	assert.True(t, errors.Is(err, common.ErrorBreakglassDisabled))
}

func TestAuthenticate_BreakglassPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.breakglass.Create(ctx, "Str0ngPass!"))

	s := f.login(t, "breakglass", "Str0ngPass!")
	assert.Equal(t, models.SessionBreakglass, s.Policy.Kind)
	assert.Equal(t, 10*time.Minute, s.Policy.Timeout)

	f.clock = f.clock.Add(10 * time.Minute)
	assert.False(t, f.auth.CheckToken(ctx, "breakglass", s.Token))
}
