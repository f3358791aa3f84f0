package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/mocks"
	fakes "github.com/acme/acct-console/internal/mocks/auth"
	"github.com/acme/acct-console/internal/ports"
	"github.com/acme/acct-console/internal/testutil"
)

func newFakeAuthService(t *testing.T) (*AuthService, *fakes.FakeAccountAPI, *fakes.MemorySessionStore, *IdentityCache) {
	t.Helper()
	api := fakes.NewFakeAccountAPI(
		fakes.FakeAccount{
			User:     domainauth.User{Name: "Ada", Email: "ada@example.com", Role: domainauth.RoleAdmin},
			Password: "secret",
		},
		fakes.FakeAccount{
			User:     domainauth.User{Name: "Bob", Email: "bob@example.com", Role: domainauth.RoleUser, Status: domainauth.StatusBlocked},
			Password: "secret",
		},
	)
	sessions := fakes.NewMemorySessionStore()
	cache := NewIdentityCache(IdentityCacheOptions{API: api, Sessions: sessions})
	svc := NewAuthService(AuthServiceOptions{
		API:        api,
		Sessions:   sessions,
		Identities: cache,
		SessionTTL: 2 * time.Hour,
	})
	return svc, api, sessions, cache
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	assert.Panics(t, func() { NewAuthService(AuthServiceOptions{}) })
	assert.Panics(t, func() { NewAuthService(AuthServiceOptions{API: fakes.NewFakeAccountAPI()}) })
}

func TestAuthService_Login(t *testing.T) {
	svc, _, sessions, cache := newFakeAuthService(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, LoginInput{Email: " ada@example.com ", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, res)

	sess := res.Session
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "ada@example.com", sess.Email)
	require.Len(t, sess.Credentials, 1)
	assert.Equal(t, 1, sessions.Len())

	// The fake's credentials expire in an hour, before the two hour TTL.
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	id, ok, err := cache.Fetch(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleAdmin, id.Role)
}

func TestAuthService_Login_Failures(t *testing.T) {
	svc, _, sessions, _ := newFakeAuthService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, LoginInput{Password: "secret"})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com"})
	assert.Equal(t, "password", apperrors.GetField(err))

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong"})
	assert.True(t, apperrors.IsUnauthenticated(err))

	_, err = svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "secret"})
	assert.True(t, apperrors.IsForbidden(err))

	assert.Equal(t, 0, sessions.Len())
}

func TestAuthService_Login_SessionExpiry(t *testing.T) {
	tests := []struct {
		name      string
		apiExpiry time.Duration // zero means unknown
		ttl       time.Duration
		want      time.Duration
	}{
		{name: "unknown api expiry uses ttl", ttl: 30 * time.Minute, want: 30 * time.Minute},
		{name: "earlier api expiry wins", apiExpiry: 10 * time.Minute, ttl: time.Hour, want: 10 * time.Minute},
		{name: "later api expiry is capped by ttl", apiExpiry: 48 * time.Hour, ttl: time.Hour, want: time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			api := mocks.NewMockAccountAPI(ctrl)
			store := mocks.NewMockSessionStore(ctrl)

			now := testutil.TestTime()
			var apiExpiry time.Time
			if tt.apiExpiry > 0 {
				apiExpiry = now.Add(tt.apiExpiry)
			}
			creds := []domainauth.APICookie{{Name: "accessToken", Value: "jwt"}}
			api.EXPECT().Login(gomock.Any(), "ada@example.com", "pw").
				Return(ports.LoginResult{Credentials: creds, ExpiresAt: apiExpiry}, nil)

			var saved domainauth.Session
			store.EXPECT().Save(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, s domainauth.Session) error {
					saved = s
					return nil
				})

			svc := NewAuthService(AuthServiceOptions{API: api, Sessions: store, SessionTTL: tt.ttl})
			svc.now = testutil.FixedTimeFunc(now)

			res, err := svc.Login(context.Background(), LoginInput{Email: "ada@example.com", Password: "pw"})
			require.NoError(t, err)
			assert.Equal(t, now.Add(tt.want), res.Session.ExpiresAt)
			assert.Equal(t, res.Session, saved)
			assert.Equal(t, creds, saved.Credentials)
		})
	}
}

func TestAuthService_Login_ExpiredCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAccountAPI(ctrl)
	store := mocks.NewMockSessionStore(ctrl)

	now := testutil.TestTime()
	api.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ports.LoginResult{ExpiresAt: now.Add(-time.Second)}, nil)

	svc := NewAuthService(AuthServiceOptions{API: api, Sessions: store})
	svc.now = testutil.FixedTimeFunc(now)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "pw"})
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestAuthService_Login_SaveError(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAccountAPI(ctrl)
	store := mocks.NewMockSessionStore(ctrl)

	api.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(ports.LoginResult{}, nil)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	svc := NewAuthService(AuthServiceOptions{API: api, Sessions: store})
	_, err := svc.Login(context.Background(), LoginInput{Email: "a@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
}

func TestAuthService_GetSession(t *testing.T) {
	svc, _, sessions, _ := newFakeAuthService(t)
	ctx := context.Background()

	_, err := svc.GetSession(ctx, "")
	assert.True(t, apperrors.IsUnauthenticated(err))

	_, err = svc.GetSession(ctx, "missing")
	assert.True(t, apperrors.IsUnauthenticated(err))

	live := testutil.NewSession().Build()
	require.NoError(t, sessions.Save(ctx, live))
	got, err := svc.GetSession(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	dead := testutil.NewSession().ExpiresIn(-time.Minute).Build()
	require.NoError(t, sessions.Save(ctx, dead))
	_, err = svc.GetSession(ctx, dead.ID)
	assert.True(t, apperrors.IsUnauthenticated(err))
	_, err = sessions.Get(ctx, dead.ID)
	assert.True(t, apperrors.IsNotFound(err), "expired session is removed")
}

func TestAuthService_GetSession_ExpiredDeleteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSessionStore(ctrl)
	dead := testutil.NewSession().ExpiresIn(-time.Minute).Build()

	store.EXPECT().Get(gomock.Any(), dead.ID).Return(dead, nil)
	store.EXPECT().Delete(gomock.Any(), dead.ID).Return(errors.New("redis down"))

	svc := NewAuthService(AuthServiceOptions{API: mocks.NewMockAccountAPI(ctrl), Sessions: store})
	_, err := svc.GetSession(context.Background(), dead.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
	assert.Contains(t, err.Error(), "delete session")
}

func TestAuthService_Logout(t *testing.T) {
	svc, api, sessions, cache := newFakeAuthService(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	sid := res.Session.ID

	_, ok, err := cache.Fetch(ctx, sid)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Logout(ctx, sid))
	assert.Equal(t, 0, sessions.Len())
	assert.Equal(t, 1, api.LogoutCalls())
	assert.Equal(t, IdentityUninitialized, cache.Peek(sid).State)

	_, ok, err = cache.Fetch(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok, "identity is gone after logout")

	require.NoError(t, svc.Logout(ctx, ""))
	require.NoError(t, svc.Logout(ctx, "unknown"))
	assert.Equal(t, 1, api.LogoutCalls())
}

func TestAuthService_Logout_APIFailureStillDeletesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAccountAPI(ctrl)
	store := mocks.NewMockSessionStore(ctrl)
	sess := testutil.NewSession().Build()

	store.EXPECT().Get(gomock.Any(), sess.ID).Return(sess, nil)
	api.EXPECT().Logout(gomock.Any(), sess.Credentials).Return(apperrors.Upstream("down", nil))
	store.EXPECT().Delete(gomock.Any(), sess.ID).Return(nil)

	svc := NewAuthService(AuthServiceOptions{API: api, Sessions: store})
	require.NoError(t, svc.Logout(context.Background(), sess.ID))
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc, api, _, cache := newFakeAuthService(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret"})
	require.NoError(t, err)
	sid := res.Session.ID
	_, _, err = cache.Fetch(ctx, sid)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, sid, ChangePasswordInput{OldPassword: "secret", NewPassword: "secret"})
	assert.Equal(t, "newPassword", apperrors.GetField(err))

	err = svc.ChangePassword(ctx, sid, ChangePasswordInput{OldPassword: "nope", NewPassword: "better"})
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, svc.ChangePassword(ctx, sid, ChangePasswordInput{OldPassword: "secret", NewPassword: "better"}))
	assert.Equal(t, IdentityUninitialized, cache.Peek(sid).State)

	_, err = api.Login(ctx, "ada@example.com", "better")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, "no-session", ChangePasswordInput{OldPassword: "a", NewPassword: "b"})
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestAuthService_RegistrationAndOTP(t *testing.T) {
	svc, api, _, _ := newFakeAuthService(t)
	ctx := context.Background()

	err := svc.Register(ctx, domainauth.Registration{Email: "new@example.com", Password: "pw"})
	assert.Equal(t, "name", apperrors.GetField(err))

	require.NoError(t, svc.Register(ctx, domainauth.Registration{Name: "New", Email: "new@example.com", Password: "pw"}))
	err = svc.Register(ctx, domainauth.Registration{Name: "New", Email: "new@example.com", Password: "pw"})
	assert.True(t, apperrors.IsConflict(err))

	require.NoError(t, svc.SendOTP(ctx, "new@example.com", ""))
	code := api.OTP("new@example.com", domainauth.OTPVerifyEmail)
	require.NotEmpty(t, code)

	err = svc.VerifyOTP(ctx, "new@example.com", "", "")
	assert.Equal(t, "code", apperrors.GetField(err))
	require.NoError(t, svc.VerifyOTP(ctx, "new@example.com", code, domainauth.OTPVerifyEmail))
}

func TestAuthService_PasswordReset(t *testing.T) {
	svc, api, _, _ := newFakeAuthService(t)
	ctx := context.Background()

	assert.True(t, apperrors.IsValidation(svc.ForgotPassword(ctx, " ")))
	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))

	token := api.OTP("ada@example.com", domainauth.OTPResetPassword)
	require.NotEmpty(t, token)

	err := svc.ResetPassword(ctx, domainauth.PasswordReset{Token: token, Password: "fresh"})
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, svc.ResetPassword(ctx, domainauth.PasswordReset{ID: "user-1", Token: token, Password: "fresh"}))
	_, err = api.Login(ctx, "ada@example.com", "fresh")
	require.NoError(t, err)
}
