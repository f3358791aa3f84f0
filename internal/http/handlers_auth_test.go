package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandlers_Status(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	sid := h.login(t, "ada@example.com")
	rec = h.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "ada@example.com", body["email"])

	rec = h.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil), "stale-session")
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultSessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "stale session cookie is cleared")
}

func TestAuthHandlers_RegistrationAndVerification(t *testing.T) {
	h := newConsoleHarness(t)

	form := url.Values{"name": {"Nia"}, "email": {"nia@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := h.do(req, "")
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/verify", loc.Path)
	assert.Equal(t, "nia@example.com", loc.Query().Get("email"))

	rec = h.do(jsonRequest(http.MethodPost, "/register", `{"name":"Nia","email":"nia@example.com","password":"pw"}`), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(jsonRequest(http.MethodPost, "/verify/send", `{"email":"nia@example.com"}`), "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	code := h.api.OTP("nia@example.com", domainauth.OTPVerifyEmail)
	require.NotEmpty(t, code)

	rec = h.do(jsonRequest(http.MethodPost, "/verify", `{"email":"nia@example.com","code":"000000-wrong"}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(jsonRequest(http.MethodPost, "/verify", `{"email":"nia@example.com","code":"`+code+`"}`), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"verified":true}`, rec.Body.String())
}

func TestAuthHandlers_PasswordReset(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(jsonRequest(http.MethodPost, "/forgot-password", `{"email":""}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"email"`)

	rec = h.do(jsonRequest(http.MethodPost, "/forgot-password", `{"email":"uma@example.com"}`), "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	token := h.api.OTP("uma@example.com", domainauth.OTPResetPassword)
	require.NotEmpty(t, token)

	rec = h.do(jsonRequest(http.MethodPost, "/reset-password", `{"password":"new-secret"}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "link parameters are required")

	target := "/reset-password?" + url.Values{"id": {"user-2"}, "token": {token}}.Encode()
	rec = h.do(jsonRequest(http.MethodPost, target, `{"password":"new-secret"}`), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(jsonRequest(http.MethodPost, "/login", `{"email":"uma@example.com","password":"new-secret"}`), "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthHandlers_LoginPageSkipsWhenSignedIn(t *testing.T) {
	h := newConsoleHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/login?redirect_uri=https://evil.example/x", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "login", page.Layout.Page)
	assert.Equal(t, map[string]any{"redirect_uri": "/"}, page.Data)

	sid := h.login(t, "ada@example.com")
	rec = h.do(httptest.NewRequest(http.MethodGet, "/login?redirect_uri=/admin/profile", nil), sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/profile", rec.Header().Get("Location"))
}

func TestAuthHandlers_HTMXLoginUsesHXRedirect(t *testing.T) {
	h := newConsoleHarness(t)
	form := url.Values{"email": {"ada@example.com"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Hx-Request", "true")

	rec := h.do(req, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/admin/analytics", rec.Header().Get("Hx-Redirect"))
}

func TestScreens_ChangePasswordAndProfile(t *testing.T) {
	h := newConsoleHarness(t)
	sid := h.login(t, "uma@example.com")

	rec := h.do(httptest.NewRequest(http.MethodGet, "/admin/change-password", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "change-password", decodePage(t, rec).Layout.Page)

	form := url.Values{"oldPassword": {"secret"}, "newPassword": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/change-password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = h.do(req, sid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	form.Set("newPassword", "fresh")
	req = httptest.NewRequest(http.MethodPost, "/admin/change-password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = h.do(req, sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/change-password?updated=1", rec.Header().Get("Location"))

	form = url.Values{"name": {"Uma B."}}
	req = httptest.NewRequest(http.MethodPost, "/admin/profile", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = h.do(req, sid)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/admin/profile", nil), sid)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	require.NotNil(t, page.Layout.User)
	assert.Equal(t, "Uma B.", page.Layout.User.Name)

	rec = h.do(httptest.NewRequest(http.MethodDelete, "/admin/profile", nil), sid)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}
