package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/navigation"
	"github.com/acme/acct-console/internal/service"
)

// AuthServiceInterface defines the auth operations the handlers depend on.
type AuthServiceInterface interface {
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, sessionID string, in service.ChangePasswordInput) error
	Register(ctx context.Context, in domainauth.Registration) error
	SendOTP(ctx context.Context, email string, purpose domainauth.OTPPurpose) error
	VerifyOTP(ctx context.Context, email, code string, purpose domainauth.OTPPurpose) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in domainauth.PasswordReset) error
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

// AuthHandlers provides HTTP handlers for sign-in and account recovery.
type AuthHandlers struct {
	Svc     AuthServiceInterface
	Cookies CookieConfig
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type loginForm struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri"`
}

// Login handles POST /login. On success the browser lands on redirect_uri
// (from the form or the query string) or the dashboard.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginForm
	if !DecodeInput(w, r, &in) {
		return
	}

	res, err := h.Svc.Login(r.Context(), service.LoginInput{Email: in.Email, Password: in.Password})
	if err != nil {
		h.logger().InfoContext(r.Context(), "login rejected", "email", in.Email, "error", err)
		WriteAppError(w, err)
		return
	}
	h.Cookies.setSessionCookie(w, r, res.Session)

	target := in.RedirectURI
	if target == "" {
		target = r.URL.Query().Get("redirect_uri")
	}
	if target == "" {
		target = navigation.DashboardPath
	}
	respondDone(w, r, safeRedirectPath(target), http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         res.Session.Email,
		"expires_at":    res.Session.ExpiresAt,
	})
}

// Logout handles POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := SessionIDFromContext(r.Context()); ok {
		if err := h.Svc.Logout(r.Context(), sid); err != nil {
			h.logger().ErrorContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookies.clearSessionCookie(w, r)
	respondDone(w, r, LoginPath, http.StatusOK, map[string]any{"authenticated": false})
}

// Status handles GET /auth/status and reports whether the session is live.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sid, ok := SessionIDFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	session, err := h.Svc.GetSession(r.Context(), sid)
	if err != nil {
		if !apperrors.IsUnauthenticated(err) {
			h.logger().WarnContext(r.Context(), "session status lookup failed", "error", err)
		}
		h.Cookies.clearSessionCookie(w, r)
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"email":         session.Email,
		"expires_at":    session.ExpiresAt,
	})
}

// Register handles POST /register and forwards to email verification.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var in domainauth.Registration
	if !DecodeInput(w, r, &in) {
		return
	}
	if err := h.Svc.Register(r.Context(), in); err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, "/verify?"+url.Values{"email": {in.Email}}.Encode(), http.StatusCreated,
		map[string]any{"registered": true, "email": in.Email})
}

type otpForm struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}

// SendOTP handles POST /verify/send.
func (h *AuthHandlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var in otpForm
	if !DecodeInput(w, r, &in) {
		return
	}
	if err := h.Svc.SendOTP(r.Context(), in.Email, domainauth.OTPPurpose(in.Purpose)); err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, "/verify?"+url.Values{"email": {in.Email}, "sent": {"1"}}.Encode(), http.StatusAccepted,
		map[string]any{"sent": true})
}

// VerifyOTP handles POST /verify.
func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in otpForm
	if !DecodeInput(w, r, &in) {
		return
	}
	if err := h.Svc.VerifyOTP(r.Context(), in.Email, in.Code, domainauth.OTPPurpose(in.Purpose)); err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, LoginPath, http.StatusOK, map[string]any{"verified": true})
}

type emailForm struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /forgot-password.
func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in emailForm
	if !DecodeInput(w, r, &in) {
		return
	}
	if err := h.Svc.ForgotPassword(r.Context(), in.Email); err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, "/forgot-password?sent=1", http.StatusAccepted, map[string]any{"sent": true})
}

// ResetPassword handles POST /reset-password. The id and token arrive from
// the emailed link, either as form fields or on the query string.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in domainauth.PasswordReset
	if !DecodeInput(w, r, &in) {
		return
	}
	q := r.URL.Query()
	if in.ID == "" {
		in.ID = q.Get("id")
	}
	if in.Token == "" {
		in.Token = q.Get("token")
	}
	if err := h.Svc.ResetPassword(r.Context(), in); err != nil {
		WriteAppError(w, err)
		return
	}
	respondDone(w, r, LoginPath, http.StatusOK, map[string]any{"reset": true})
}

// respondDone finishes a successful form action: plain browsers follow a 303,
// htmx follows Hx-Redirect and API clients get body as JSON.
func respondDone(w http.ResponseWriter, r *http.Request, location string, status int, body any) {
	switch {
	case !IsBrowserRequest(r) || isJSONRequest(r):
		WriteJSON(w, status, body)
	case IsHTMX(r):
		SetHXRedirect(w, location)
		w.WriteHeader(http.StatusOK)
	default:
		http.Redirect(w, r, location, http.StatusSeeOther)
	}
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
