package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
	"github.com/acme/acct-console/internal/domain/nav"
	apperrors "github.com/acme/acct-console/internal/errors"
	mocks "github.com/acme/acct-console/internal/mocks/auth"
	"github.com/acme/acct-console/internal/navigation"
	"github.com/acme/acct-console/internal/observability/statsd"
	"github.com/acme/acct-console/internal/service"
)

const testCSRFToken = "test-csrf-token"

type consoleHarness struct {
	router   http.Handler
	api      *mocks.FakeAccountAPI
	sessions *mocks.MemorySessionStore
	cache    *service.IdentityCache
	metrics  *statsd.Recorder
}

func newConsoleHarness(t *testing.T) *consoleHarness {
	t.Helper()
	api := mocks.NewFakeAccountAPI(
		mocks.FakeAccount{
			User:     domainauth.User{Name: "Ada", Email: "ada@example.com", Role: domainauth.RoleAdmin, IsVerified: true},
			Password: "secret",
		},
		mocks.FakeAccount{
			User:     domainauth.User{Name: "Uma", Email: "uma@example.com", Role: domainauth.RoleUser},
			Password: "secret",
		},
		mocks.FakeAccount{
			User:     domainauth.User{Name: "Bob", Email: "bob@example.com", Role: domainauth.RoleUser, Status: domainauth.StatusPending},
			Password: "secret",
		},
	)
	sessions := mocks.NewMemorySessionStore()
	metrics := &statsd.Recorder{}
	cache := service.NewIdentityCache(service.IdentityCacheOptions{API: api, Sessions: sessions, Metrics: metrics})
	authSvc := service.NewAuthService(service.AuthServiceOptions{API: api, Sessions: sessions, Identities: cache, SessionTTL: time.Hour})
	users := service.NewUserService(service.UserServiceOptions{API: api, Auth: authSvc, Identities: cache})

	return &consoleHarness{
		router: NewRouter(RouterServices{
			Auth:       authSvc,
			Users:      users,
			Identities: cache,
			Metrics:    metrics,
		}),
		api:      api,
		sessions: sessions,
		cache:    cache,
		metrics:  metrics,
	}
}

// do sends req through the router with the CSRF pair attached.
func (h *consoleHarness) do(req *http.Request, sessionID string) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRFToken})
	req.Header.Set(DefaultCSRFHeaderName, testCSRFToken)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: sessionID})
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// login signs in through the form endpoint and returns the session cookie value.
func (h *consoleHarness) login(t *testing.T, email string) string {
	t.Helper()
	form := url.Values{"email": {email}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := h.do(req, "")
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookie {
			require.NotEmpty(t, c.Value)
			return c.Value
		}
	}
	t.Fatal("login did not set a session cookie")
	return ""
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) PageVM {
	t.Helper()
	var page PageVM
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page), rec.Body.String())
	return page
}

func sidebarPaths(groups []nav.SidebarGroup) []string {
	var out []string
	for _, g := range groups {
		for _, it := range g.Items {
			out = append(out, it.Path)
		}
	}
	return out
}

func TestRouter_ProtectedScreenRedirectsAnonymousToLogin(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, navigation.ManageUserPath, nil), "")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, LoginPath, loc.Path)
	assert.Equal(t, navigation.ManageUserPath, loc.Query().Get("redirect_uri"))
}

func TestRouter_LoginHonoursRedirect(t *testing.T) {
	h := newConsoleHarness(t)
	form := url.Values{"email": {"ada@example.com"}, "password": {"secret"}, "redirect_uri": {navigation.ManageUserPath}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := h.do(req, "")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, navigation.ManageUserPath, rec.Header().Get("Location"))
	assert.Equal(t, 1, h.sessions.Len())
}

func TestRouter_LoginRejectsBadCredentials(t *testing.T) {
	h := newConsoleHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := h.do(req, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"unauthenticated"`)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRouter_AdminSeesFullSidebarAndUserCounts(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "ada@example.com")

	rec := h.do(httptest.NewRequest(http.MethodGet, navigation.DashboardPath, nil), sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decodePage(t, rec)
	assert.Equal(t, "analytics", page.Layout.Page)
	require.NotNil(t, page.Layout.User)
	assert.Equal(t, domainauth.RoleAdmin, page.Layout.User.Role)
	assert.Equal(t, []string{
		navigation.DashboardPath, navigation.ManageUserPath, navigation.ChangePasswordPath, navigation.ProfilePath,
	}, sidebarPaths(page.Layout.Sidebar))
	assert.True(t, page.Layout.Sidebar[0].Items[0].IsActive)

	navbar := sidebarPaths(page.Layout.Navbar)
	assert.Equal(t, []string{"/", "/about", "/features", "/faq", "/contact", navigation.DashboardPath}, navbar)

	data, ok := page.Data.(map[string]any)
	require.True(t, ok)
	users, ok := data["users"].(map[string]any)
	require.True(t, ok, "admins get user counts")
	assert.InDelta(t, 3, users["total"], 0)
}

func TestRouter_DashboardRendersWithoutUserCounts(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "ada@example.com")
	h.api.ListUsersFunc = func(context.Context, []domainauth.APICookie, domainauth.UserListQuery) (domainauth.UserList, error) {
		return domainauth.UserList{}, apperrors.Upstream("account api unavailable", errors.New("connection refused"))
	}

	rec := h.do(httptest.NewRequest(http.MethodGet, navigation.DashboardPath, nil), sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decodePage(t, rec)
	assert.Equal(t, "analytics", page.Layout.Page)
	data, ok := page.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Welcome back, Ada", data["greeting"])
	assert.NotContains(t, data, "users")
}

func TestRouter_UserRoleIsKeptOffAdminScreens(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "uma@example.com")

	rec := h.do(httptest.NewRequest(http.MethodGet, navigation.ManageUserPath, nil), sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, UnauthorizedPath, rec.Header().Get("Location"))

	rec = h.do(httptest.NewRequest(http.MethodGet, navigation.DashboardPath, nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, []string{navigation.DashboardPath, navigation.ChangePasswordPath, navigation.ProfilePath},
		sidebarPaths(page.Layout.Sidebar))
	data := page.Data.(map[string]any)
	assert.NotContains(t, data, "users")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/users", nil), sid)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_AdminIndexRedirectsToDashboard(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "uma@example.com")

	for _, path := range []string{"/admin", "/admin/"} {
		rec := h.do(httptest.NewRequest(http.MethodGet, path, nil), sid)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, navigation.DashboardPath, rec.Header().Get("Location"), path)
	}
}

func TestRouter_PublicPagesProjectNavbarForIdentity(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/about", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Nil(t, page.Layout.User)
	assert.Empty(t, page.Layout.Sidebar)
	assert.Equal(t, []string{"/", "/about", "/features", "/faq", "/contact"}, sidebarPaths(page.Layout.Navbar))
	assert.True(t, page.Layout.Navbar[0].Items[1].IsActive)
	assert.False(t, page.Layout.Navbar[0].Items[0].IsActive)

	sid := h.login(t, "uma@example.com")
	rec = h.do(httptest.NewRequest(http.MethodGet, "/", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodePage(t, rec)
	require.NotNil(t, page.Layout.User)
	assert.Contains(t, sidebarPaths(page.Layout.Navbar), navigation.DashboardPath)
	assert.NotEmpty(t, page.Layout.CSRFToken)
}

func TestRouter_APIUsersAndStatus(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "ada@example.com")

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/users?isActive=PENDING", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list domainauth.UserList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Users, 1)
	bob := list.Users[0]

	req := httptest.NewRequest(http.MethodPatch, "/api/users/"+bob.ID+"/status", strings.NewReader(`{"status":"ACTIVE"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.do(req, sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Hx-Trigger"), "userUpdated")

	req = httptest.NewRequest(http.MethodPatch, "/api/users/"+bob.ID+"/status", strings.NewReader(`{"status":"GONE"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.do(req, sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"isActive"`)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/users?role=GUEST", nil), sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_APIMeAndNavigation(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/me", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sid := h.login(t, "ada@example.com")
	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/me", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domainauth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "ada@example.com", me.Email)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/navigation?path=/admin/manage-user/42", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	var navResp navigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &navResp))
	assert.Equal(t, domainauth.RoleAdmin, navResp.Role)
	require.Len(t, navResp.Sidebar, 1)
	assert.False(t, navResp.Sidebar[0].Items[0].IsActive)
	assert.True(t, navResp.Sidebar[0].Items[1].IsActive)

	req := httptest.NewRequest(http.MethodPatch, "/api/me", strings.NewReader(`{"name":"Ada L."}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.do(req, sid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/me", nil), sid)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Ada L.", me.Name, "profile update invalidates the cached identity")
}

func TestRouter_CSRFRequiredForStateChanges(t *testing.T) {
	h := newConsoleHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrf_failed")
	assert.Equal(t, 0, h.sessions.Len())
}

func TestRouter_LogoutEndsSession(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "ada@example.com")

	rec := h.do(httptest.NewRequest(http.MethodPost, "/logout", nil), sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
	assert.Equal(t, 0, h.sessions.Len())
	assert.Equal(t, 1, h.api.LogoutCalls())

	rec = h.do(httptest.NewRequest(http.MethodGet, navigation.DashboardPath, nil), sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), LoginPath))
}

func TestRouter_NotFoundAndHealth(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", decodePage(t, rec).Layout.Page)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"not_found"`)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterScreenRoutes_SkipsMissingHandlers(t *testing.T) {
	mux := http.NewServeMux()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	registered, err := RegisterScreenRoutes(ScreenRouteOptions{
		Mux:     mux,
		Screens: map[nav.ScreenKey]http.Handler{"present": ok},
	}, []nav.Route{
		{Path: "/admin/a", Screen: "present"},
		{Path: "/admin/b", Screen: "missing"},
	})

	require.NoError(t, err)
	assert.Equal(t, []nav.Route{{Path: "/admin/a", Screen: "present"}}, registered)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/a", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/b", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterScreenRoutes_WrapsEachPath(t *testing.T) {
	mux := http.NewServeMux()
	var wrapped []string
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	_, err := RegisterScreenRoutes(ScreenRouteOptions{
		Mux:     mux,
		Screens: map[nav.ScreenKey]http.Handler{"s": ok},
		Wrap: func(path string) func(http.Handler) http.Handler {
			wrapped = append(wrapped, path)
			return func(next http.Handler) http.Handler { return next }
		},
	}, []nav.Route{{Path: "/x", Screen: "s"}, {Path: "/y", Screen: "s"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"/x", "/y"}, wrapped)
}

func TestRegisterScreenRoutes_RejectsDuplicatePaths(t *testing.T) {
	mux := http.NewServeMux()
	_, err := RegisterScreenRoutes(ScreenRouteOptions{Mux: mux}, []nav.Route{
		{Path: "/x", Screen: "a"},
		{Path: "/x", Screen: "b"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRoute))
	assert.Equal(t, apperrors.ErrCodeConfigurationGap, apperrors.GetCode(err))
}

func TestRouter_ScreenRoutesCoverRegistry(t *testing.T) {
	routes, conflicts := nav.UniqueRoutes(nav.Flatten(navigation.AllGroups()))
	assert.Empty(t, conflicts)

	screens := (&ScreenHandlers{}).Registry()
	for _, rt := range routes {
		assert.Contains(t, screens, rt.Screen, "screen %s for %s has a handler", rt.Screen, rt.Path)
	}
}
