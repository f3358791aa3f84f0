package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server configuration
//   - redis.go: Redis (console session store) configuration
//   - account.go: account API, console session and identity cache configuration
//   - observability.go: logging and metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (plain cookies, text logs).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Console session store
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Remote account API
	API APIConfig `envPrefix:"API_"`

	// Console session cookie and record lifetime
	Session SessionConfig `envPrefix:"SESSION_"`

	// Shared identity cache
	IdentityCache IdentityCacheConfig `envPrefix:"IDENTITY_CACHE_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.API.Sanitize()
	c.Session.Sanitize()
	c.IdentityCache.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// SecureCookies reports whether console cookies carry the Secure attribute.
func (c *AppConfig) SecureCookies() bool {
	return !c.IsDev
}
