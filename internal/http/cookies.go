package httpx

import (
	"net/http"
	"time"

	domainauth "github.com/acme/acct-console/internal/domain/auth"
)

// CookieConfig controls the console session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookie
	}
	return c.Name
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || isForwardedHTTPS(r)
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (c CookieConfig) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    s.ID,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  s.ExpiresAt,
		MaxAge:   max(int(time.Until(s.ExpiresAt).Seconds()), 1),
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie immediately.
func (c CookieConfig) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}
