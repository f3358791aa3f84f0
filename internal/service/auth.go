package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/ports"
)

const defaultSessionTTL = 24 * time.Hour

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	API        ports.AccountAPI   // Required
	Sessions   ports.SessionStore // Required
	Identities *IdentityCache     // Optional: invalidated on login, logout and password change
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// AuthService orchestrates sign-in flows against the account API and keeps the
// console-side session records that hold the API's cookies.
type AuthService struct {
	api        ports.AccountAPI
	sessions   ports.SessionStore
	identities *IdentityCache
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

var errSessionExpired = apperrors.Unauthenticated("session expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.API == nil {
		panic("AuthService requires an AccountAPI")
	}
	if opts.Sessions == nil {
		panic("AuthService requires a SessionStore")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		api:        opts.API,
		sessions:   opts.Sessions,
		identities: opts.Identities,
		ttl:        ttl,
		logger:     logger.With("component", "auth_service"),
		now:        time.Now,
	}
}

// LoginInput carries submitted credentials.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult contains the persisted console session.
type LoginResult struct {
	Session domainauth.Session
}

// Login signs in against the account API and persists a console session
// holding the returned cookies. The session expires at the configured TTL or
// at the earliest credential expiry the API announced, whichever is sooner.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}
	if in.Password == "" {
		return nil, apperrors.ValidationField("password", "password is required")
	}

	res, err := s.api.Login(ctx, email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("account login: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	if !res.ExpiresAt.IsZero() && res.ExpiresAt.Before(expiresAt) {
		expiresAt = res.ExpiresAt
	}
	if !now.Before(expiresAt) {
		return nil, apperrors.Unauthenticated("account API issued expired credentials")
	}

	session := domainauth.Session{
		ID:          generateSessionID(),
		Email:       email,
		Credentials: res.Credentials,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}
	s.invalidate(session.ID)

	s.logger.InfoContext(ctx, "console session started", "email", email, "expires_at", expiresAt)
	return &LoginResult{Session: session}, nil
}

// GetSession retrieves a live session by ID. Expired sessions are removed.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthenticated("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthenticated("session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// Logout ends the API session (best effort) and removes the console session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	defer s.invalidate(sessionID)

	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		if logoutErr := s.api.Logout(ctx, session.Credentials); logoutErr != nil {
			s.logger.WarnContext(ctx, "account logout failed", "email", session.Email, "error", logoutErr)
		}
	case apperrors.IsNotFound(err):
		return nil
	default:
		s.logger.WarnContext(ctx, "session lookup during logout failed", "error", err)
	}

	if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
		return fmt.Errorf("delete session: %w", deleteErr)
	}
	return nil
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// ChangePassword changes the signed-in user's password.
func (s *AuthService) ChangePassword(ctx context.Context, sessionID string, in ChangePasswordInput) error {
	if in.OldPassword == "" {
		return apperrors.ValidationField("oldPassword", "current password is required")
	}
	if in.NewPassword == "" {
		return apperrors.ValidationField("newPassword", "new password is required")
	}
	if in.NewPassword == in.OldPassword {
		return apperrors.ValidationField("newPassword", "new password must differ from the current one")
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err = s.api.ChangePassword(ctx, session.Credentials, in.OldPassword, in.NewPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.invalidate(sessionID)
	return nil
}

// Register creates an account and asks the API to send a verification code.
func (s *AuthService) Register(ctx context.Context, in domainauth.Registration) error {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return apperrors.ValidationField("name", "name is required")
	case in.Email == "":
		return apperrors.ValidationField("email", "email is required")
	case in.Password == "":
		return apperrors.ValidationField("password", "password is required")
	}
	if err := s.api.Register(ctx, in); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// SendOTP asks the API to deliver a one-time code for purpose.
func (s *AuthService) SendOTP(ctx context.Context, email string, purpose domainauth.OTPPurpose) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	if purpose == "" {
		purpose = domainauth.OTPVerifyEmail
	}
	if err := s.api.SendOTP(ctx, email, purpose); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// VerifyOTP checks a one-time code.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string, purpose domainauth.OTPPurpose) error {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	if code == "" {
		return apperrors.ValidationField("code", "code is required")
	}
	if purpose == "" {
		purpose = domainauth.OTPVerifyEmail
	}
	if err := s.api.VerifyOTP(ctx, email, code, purpose); err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}
	return nil
}

// ForgotPassword starts the reset flow.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	if err := s.api.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

// ResetPassword completes the reset flow with the emailed id and token.
func (s *AuthService) ResetPassword(ctx context.Context, in domainauth.PasswordReset) error {
	switch {
	case in.ID == "" || in.Token == "":
		return apperrors.Validation("reset link is invalid or incomplete")
	case in.Password == "":
		return apperrors.ValidationField("password", "password is required")
	}
	if err := s.api.ResetPassword(ctx, in); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *AuthService) invalidate(sessionID string) {
	if s.identities != nil {
		s.identities.Invalidate(sessionID)
	}
}

// generateSessionID creates a random session ID.
func generateSessionID() string {
	return uuid.New().String()
}
