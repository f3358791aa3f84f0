package config

import (
	"strings"
	"time"
)

// DefaultIdentityExpr maps the account API's /user/me envelope to identity fields.
const DefaultIdentityExpr = "data.{id: _id, name: name, email: email, role: role, isVerified: isVerified, status: isActive}"

// APIConfig describes the remote account API.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/api/v1.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:5000/api/v1"`

	// Timeout bounds each request made to the API.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// IdentityExpr is a JMESPath expression applied to the /user/me response.
	IdentityExpr string `env:"IDENTITY_EXPR"`

	// TokenCookie names the API cookie holding the access token JWT.
	TokenCookie string `env:"TOKEN_COOKIE" envDefault:"accessToken"`
}

// Sanitize normalises API settings.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(c.IdentityExpr) == "" {
		c.IdentityExpr = DefaultIdentityExpr
	}
	if strings.TrimSpace(c.TokenCookie) == "" {
		c.TokenCookie = "accessToken"
	}
}

// SessionConfig controls the console session cookie and Redis record.
type SessionConfig struct {
	CookieName string        `env:"COOKIE_NAME" envDefault:"session_id"`
	TTL        time.Duration `env:"TTL"         envDefault:"24h"`
	KeyPrefix  string        `env:"KEY_PREFIX"  envDefault:"console:session:"`
}

// Sanitize applies safe defaults to session settings.
func (c *SessionConfig) Sanitize() {
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = "session_id"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "console:session:"
	}
}

// IdentityCacheConfig bounds the process-wide identity cache.
type IdentityCacheConfig struct {
	Size int           `env:"SIZE" envDefault:"10000"`
	TTL  time.Duration `env:"TTL"  envDefault:"5m"`
}

// Sanitize clamps cache bounds.
func (c *IdentityCacheConfig) Sanitize() {
	if c.Size <= 0 {
		c.Size = 10000
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
}
