package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
)

// LoginResult is what a successful login yields: the credential cookies to
// replay on later calls and when they stop being useful.
type LoginResult struct {
	Credentials []domainauth.APICookie
	// ExpiresAt is the earliest credential expiry the API announced; zero if unknown.
	ExpiresAt time.Time
}

// AccountAPI is the remote account/session API. Calls that act for a signed-in
// user take that user's credential cookies.
type AccountAPI interface {
	// CurrentUser returns the identity behind creds. An unauthenticated
	// response yields an Unauthenticated AppError.
	CurrentUser(ctx context.Context, creds []domainauth.APICookie) (domainauth.Identity, error)
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Logout(ctx context.Context, creds []domainauth.APICookie) error
	ChangePassword(ctx context.Context, creds []domainauth.APICookie, oldPassword, newPassword string) error

	Register(ctx context.Context, in domainauth.Registration) error
	SendOTP(ctx context.Context, email string, purpose domainauth.OTPPurpose) error
	VerifyOTP(ctx context.Context, email, code string, purpose domainauth.OTPPurpose) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in domainauth.PasswordReset) error

	ListUsers(ctx context.Context, creds []domainauth.APICookie, q domainauth.UserListQuery) (domainauth.UserList, error)
	SetUserStatus(ctx context.Context, creds []domainauth.APICookie, id string, status domainauth.UserStatus) (domainauth.User, error)
	UpdateMe(ctx context.Context, creds []domainauth.APICookie, in domainauth.ProfileUpdate) (domainauth.User, error)
}

// SessionStore persists and retrieves console sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionSweeper removes every console session. Used by the admin CLI.
type SessionSweeper interface {
	DeleteAll(ctx context.Context) (int, error)
}
