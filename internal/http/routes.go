package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/acme/acct-console/internal/domain/nav"
	apperrors "github.com/acme/acct-console/internal/errors"
	"github.com/acme/acct-console/internal/navigation"
	"github.com/acme/acct-console/internal/observability/statsd"
)

var errNotFound = errors.New("not found")

// ErrDuplicateRoute is returned when screen routes are registered with a
// repeated path; callers must deduplicate with nav.UniqueRoutes first.
var ErrDuplicateRoute = apperrors.ConfigurationGapf("duplicate screen route")

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth       AuthServiceInterface
	Users      UserServiceInterface
	Identities IdentityResolver
	Health     Pinger // Optional: session store readiness
	Metrics    statsd.Sink
	Cookies    CookieConfig
	// Compression enables gzip when non-nil.
	Compression *CompressionConfig
	Logger      *slog.Logger
}

// NewRouter creates the console router. Protected screen routes are derived
// from the role registry; each is guarded by the roles whose navigation
// reaches it.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	guardOpts := GuardOptions{Identities: services.Identities, Metrics: services.Metrics, Logger: logger}
	identify := Identify(services.Identities)

	authHandlers := &AuthHandlers{Svc: services.Auth, Cookies: services.Cookies, Logger: logger}
	screens := &ScreenHandlers{Auth: services.Auth, Users: services.Users, Logger: logger}
	api := &APIHandlers{Users: services.Users}

	mux.Handle("GET /healthz", healthHandler(services.Health))
	mux.Handle("HEAD /healthz", healthHandler(services.Health))

	registerPublicRoutes(mux, identify)
	registerAuthRoutes(mux, authHandlers, identify)
	registerAPIRoutes(mux, api, guardOpts)

	routes, conflicts := nav.UniqueRoutes(nav.Flatten(navigation.AllGroups()))
	for _, c := range conflicts {
		logger.Warn("navigation path maps to two screens; keeping the first",
			"path", c.Path, "kept", c.Kept, "shadowed", c.Shadow)
	}
	if _, err := RegisterScreenRoutes(ScreenRouteOptions{
		Mux:     mux,
		Screens: screens.Registry(),
		Wrap: func(path string) func(http.Handler) http.Handler {
			return Guard(guardOpts, navigation.RolesForPath(path).Members()...)
		},
		Logger: logger,
	}, routes); err != nil {
		// UniqueRoutes output never repeats a path.
		logger.Error("screen route registration failed", "error", err)
	}
	mux.Handle("GET /admin", Guard(guardOpts)(http.HandlerFunc(adminIndex)))
	mux.Handle("GET /admin/{$}", Guard(guardOpts)(http.HandlerFunc(adminIndex)))

	mux.Handle("/", identify(http.HandlerFunc(notFoundHandler)))

	var handler http.Handler = mux
	handler = CSRFProtection(CSRFConfig{CookieDomain: services.Cookies.Domain, Secure: services.Cookies.Secure})(handler)
	handler = SessionCookie(services.Cookies.name())(handler)
	handler = BrowserDetection()(handler)
	if services.Compression != nil {
		cfg := *services.Compression
		if cfg.Logger == nil {
			cfg.Logger = logger
		}
		handler = Compression(cfg)(handler)
	}
	handler = Logging(logger)(handler)
	return Recover(logger)(handler)
}

func registerPublicRoutes(mux *http.ServeMux, identify func(http.Handler) http.Handler) {
	mux.Handle("GET /{$}", identify(http.HandlerFunc(homePage)))
	for _, p := range publicPages {
		mux.Handle("GET "+p.Path, identify(staticPage(p)))
	}
	mux.Handle("GET "+UnauthorizedPath, identify(http.HandlerFunc(unauthorizedPage)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, identify func(http.Handler) http.Handler) {
	mux.Handle("GET "+LoginPath, identify(http.HandlerFunc(loginPage)))
	mux.HandleFunc("POST "+LoginPath, h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)

	mux.Handle("GET /register", identify(http.HandlerFunc(registerPage)))
	mux.HandleFunc("POST /register", h.Register)
	mux.Handle("GET /verify", identify(http.HandlerFunc(verifyPage)))
	mux.HandleFunc("POST /verify", h.VerifyOTP)
	mux.HandleFunc("POST /verify/send", h.SendOTP)
	mux.Handle("GET /forgot-password", identify(http.HandlerFunc(forgotPasswordPage)))
	mux.HandleFunc("POST /forgot-password", h.ForgotPassword)
	mux.Handle("GET /reset-password", identify(http.HandlerFunc(resetPasswordPage)))
	mux.HandleFunc("POST /reset-password", h.ResetPassword)
}

func registerAPIRoutes(mux *http.ServeMux, h *APIHandlers, opts GuardOptions) {
	signedIn := Guard(opts)
	admins := Guard(opts, navigation.RolesForPath(navigation.ManageUserPath).Members()...)

	mux.Handle("GET /api/me", signedIn(http.HandlerFunc(h.Me)))
	mux.Handle("PATCH /api/me", signedIn(http.HandlerFunc(h.UpdateMe)))
	mux.Handle("GET /api/navigation", signedIn(http.HandlerFunc(h.Navigation)))
	mux.Handle("GET /api/users", admins(http.HandlerFunc(h.ListUsers)))
	mux.Handle("PATCH /api/users/{id}/status", admins(http.HandlerFunc(h.SetUserStatus)))
}

// ScreenRouteOptions groups inputs for RegisterScreenRoutes.
type ScreenRouteOptions struct {
	Mux     *http.ServeMux
	Screens map[nav.ScreenKey]http.Handler
	// Wrap returns the middleware guarding path; nil registers handlers bare.
	Wrap   func(path string) func(http.Handler) http.Handler
	Logger *slog.Logger
}

// RegisterScreenRoutes mounts one handler per route and returns the routes
// actually registered. A route whose screen has no handler is skipped with a
// warning. Repeated paths return ErrDuplicateRoute before anything is mounted.
func RegisterScreenRoutes(opts ScreenRouteOptions, routes []nav.Route) ([]nav.Route, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{}, len(routes))
	for _, rt := range routes {
		if _, dup := seen[rt.Path]; dup {
			return nil, apperrors.Wrapf(ErrDuplicateRoute, apperrors.ErrCodeConfigurationGap, "duplicate screen route %s", rt.Path)
		}
		seen[rt.Path] = struct{}{}
	}

	registered := make([]nav.Route, 0, len(routes))
	for _, rt := range routes {
		h, ok := opts.Screens[rt.Screen]
		if !ok || h == nil {
			logger.Warn("no handler for screen; route skipped", "path", rt.Path, "screen", rt.Screen)
			continue
		}
		if opts.Wrap != nil {
			h = opts.Wrap(rt.Path)(h)
		}
		opts.Mux.Handle(rt.Path, h)
		registered = append(registered, rt)
	}
	return registered, nil
}
