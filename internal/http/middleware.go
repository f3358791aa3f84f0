package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/acme/acct-console/internal/domain/access"
	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/observability/metrics"
	"github.com/acme/acct-console/internal/observability/statsd"
	"github.com/acme/acct-console/internal/service"
)

const (
	// LoginPath is where unauthenticated browsers are sent.
	LoginPath = "/login"
	// UnauthorizedPath is where signed-in browsers lacking a role are sent.
	UnauthorizedPath = "/unauthorized"
	// DefaultSessionCookie names the console session cookie.
	DefaultSessionCookie = "session_id"
)

// Client kinds used for response shaping and metric tags.
const (
	clientBrowser = "browser"
	clientHTMX    = "htmx"
	clientAPI     = "api"
)

// Logging returns a middleware that writes one access log line per request.
// Server errors log at error level and client errors at warn. A request
// whose guard suppressed the response is logged with wrote=false.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("client", clientKind(r)),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Bool("wrote", rec.wrote),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusRecorder remembers what the wrapped handler sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	wrote  bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if !w.wrote {
		w.status = status
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.wrote = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover turns a handler panic into a 500. API clients get the JSON error
// envelope; browsers get a plain text body.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.ErrorContext(r.Context(), "handler panic",
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())))
				if IsBrowserRequest(r) {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusInternalServerError,
					ErrCode: "internal",
					Err:     errors.New("internal server error"),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// Downstream handlers use it to choose between redirects and JSON errors.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	return isBrowserRequest(r)
}

// isBrowserRequest classifies by path prefix first (/api/ is never a browser),
// then htmx, then the Accept header.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

func clientKind(r *http.Request) string {
	switch {
	case IsHTMX(r) && IsBrowserRequest(r):
		return clientHTMX
	case IsBrowserRequest(r):
		return clientBrowser
	default:
		return clientAPI
	}
}

// SessionCookie returns a middleware that copies the console session cookie
// value into the request context.
func SessionCookie(name string) func(http.Handler) http.Handler {
	if name == "" {
		name = DefaultSessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(name); err == nil && c.Value != "" {
				r = r.WithContext(SetSessionIDInContext(r.Context(), c.Value))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityResolver is the part of the identity cache the HTTP layer uses.
type IdentityResolver interface {
	Fetch(ctx context.Context, key string) (domainauth.Identity, bool, error)
}

var _ IdentityResolver = (*service.IdentityCache)(nil)

// resolve returns the request's identity, consulting the cache at most once
// per request. resolved is false when the caller went away mid-fetch.
func resolve(r *http.Request, identities IdentityResolver) identityResolution {
	if res, ok := resolutionFromContext(r.Context()); ok && res.resolved {
		return res
	}
	sid, ok := SessionIDFromContext(r.Context())
	if !ok || identities == nil {
		return identityResolution{resolved: true}
	}
	id, present, err := identities.Fetch(r.Context(), sid)
	if err != nil {
		return identityResolution{}
	}
	return identityResolution{identity: id, present: present, resolved: true}
}

// Identify returns a middleware that resolves the optional identity once and
// stores it on the request for public pages, navbars and later guards.
// An abandoned fetch leaves the request anonymous and unresolved.
func Identify(identities IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolve(r, identities)
			if res.resolved {
				r = r.WithContext(setResolution(r.Context(), res))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GuardOptions groups dependencies for Guard.
type GuardOptions struct {
	Identities IdentityResolver
	Metrics    statsd.Sink
	Logger     *slog.Logger
}

// Guard returns a middleware that admits only signed-in identities holding one
// of roles (any signed-in identity when roles is empty).
//   - identity still resolving (caller gone): writes nothing at all
//   - no identity: login redirect carrying the attempted path, or 401 for APIs
//   - role mismatch: /unauthorized redirect, or 403 for APIs
func Guard(opts GuardOptions, roles ...domainauth.Role) func(http.Handler) http.Handler {
	required := domainauth.Roles(roles...)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolve(r, opts.Identities)
			outcome := access.Evaluate(access.Input{
				Resolved: res.resolved,
				Identity: res.identity,
				Present:  res.present,
				Required: required,
				Location: redirectPathForRequest(r),
			})
			metrics.EmitGuardDecision(opts.Metrics, outcome.Decision.String(), clientKind(r))

			switch outcome.Decision {
			case access.Allowed:
				next.ServeHTTP(w, r.WithContext(setResolution(r.Context(), res)))
			case access.RedirectLogin:
				redirectToLogin(w, r, outcome.ReturnTo)
			case access.RedirectUnauthorized:
				logger.InfoContext(r.Context(), "role not permitted",
					"path", r.URL.Path, "role", res.identity.Role, "user_id", res.identity.ID)
				redirectToUnauthorized(w, r)
			default:
				logger.DebugContext(r.Context(), "identity unresolved; response suppressed", "path", r.URL.Path)
			}
		})
	}
}

// loginURL builds the login location carrying returnTo.
func loginURL(returnTo string) string {
	u := url.URL{Path: LoginPath}
	q := url.Values{}
	q.Set("redirect_uri", safeRedirectPath(returnTo))
	u.RawQuery = q.Encode()
	return u.String()
}

// redirectToLogin sends browsers to the login page and APIs a 401.
func redirectToLogin(w http.ResponseWriter, r *http.Request, returnTo string) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	target := loginURL(returnTo)
	if IsHTMX(r) {
		SetHXRedirect(w, target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// redirectToUnauthorized sends browsers to the unauthorized page and APIs a 403.
func redirectToUnauthorized(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "insufficient_permissions",
			Err:     errors.New("insufficient permissions"),
		})
		return
	}
	if IsHTMX(r) {
		SetHXRedirect(w, UnauthorizedPath)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, UnauthorizedPath, http.StatusSeeOther)
}

func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		if current := safeRedirectFromURL(r.Header.Get("Hx-Current-Url")); current != "" {
			return current
		}
		if referer := safeRedirectFromURL(r.Header.Get("Referer")); referer != "" {
			return referer
		}
	}
	return safeRedirectPath(r.URL.RequestURI())
}

// safeRedirectFromURL reduces an absolute same-site URL (Hx-Current-Url,
// Referer) to its path and query. Empty means unusable.
func safeRedirectFromURL(raw string) string {
	u, err := url.Parse(raw)
	if raw == "" || err != nil {
		return ""
	}
	switch {
	case u.IsAbs():
		return safeRedirectPath(u.RequestURI())
	case u.Host != "":
		return ""
	default:
		return safeRedirectPath(raw)
	}
}

// safeRedirectPath returns candidate when it is a local path, otherwise "/".
// Scheme-relative forms ("//host", "/\host") count as foreign.
func safeRedirectPath(candidate string) string {
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
