package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/acme/acct-console/config"
)

// InitLogger initializes the structured logger used before configuration
// is loaded.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger rebuilds the default logger from loaded configuration.
// Development mode logs text; everything else logs JSON.
func ConfigureLogger(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.Logging.SlogLevel()}

	var handler slog.Handler
	if cfg.IsDev {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler).With("service", cfg.Observability.Metrics.ServiceName)
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects configurations the console cannot start with.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var errs []error
	if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", cfg.API.BaseURL))
	}
	switch {
	case cfg.Redis.UseCluster && cfg.Redis.UseSentinel:
		errs = append(errs, errors.New("REDIS_USE_CLUSTER and REDIS_USE_SENTINEL are mutually exclusive"))
	case cfg.Redis.UseSentinel && strings.TrimSpace(cfg.Redis.SentinelMasterName) == "":
		errs = append(errs, errors.New("REDIS_SENTINEL_MASTER_NAME is required with REDIS_USE_SENTINEL"))
	}
	if cfg.Session.TTL < cfg.IdentityCache.TTL {
		errs = append(errs, fmt.Errorf("SESSION_TTL (%s) must not be shorter than IDENTITY_CACHE_TTL (%s)",
			cfg.Session.TTL, cfg.IdentityCache.TTL))
	}
	return errors.Join(errs...)
}
