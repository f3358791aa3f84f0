package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/acme/acct-console/config"
	"github.com/acme/acct-console/internal/adapters/identityapi"
	redisadapter "github.com/acme/acct-console/internal/adapters/redis"
	"github.com/acme/acct-console/internal/observability/statsd"
	"github.com/acme/acct-console/internal/service"
)

// ServiceContainer holds the console's services and the adapters backing them.
type ServiceContainer struct {
	API        *identityapi.Client
	Sessions   *redisadapter.SessionStore
	Identities *service.IdentityCache
	Auth       *service.AuthService
	Users      *service.UserService
	Metrics    statsd.Sink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink // Optional: defaults to statsd.Discard
	Logger      *slog.Logger
}

// NewServices wires the account API client, the Redis session store, the
// shared identity cache and the services built on them.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("services require config")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("services require a redis client")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	sink := statsd.OrDiscard(deps.Metrics)

	api, err := identityapi.NewClient(identityapi.Options{
		BaseURL:      cfg.API.BaseURL,
		Timeout:      cfg.API.Timeout,
		IdentityExpr: cfg.API.IdentityExpr,
		TokenCookie:  cfg.API.TokenCookie,
		Metrics:      sink,
		Logger:       logger.With("component", "account_api"),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("account API client: %w", err)
	}

	sessions := redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, cfg.Session.KeyPrefix)
	identities := service.NewIdentityCache(service.IdentityCacheOptions{
		API:      api,
		Sessions: sessions,
		Config: service.IdentityCacheConfig{
			Size: cfg.IdentityCache.Size,
			TTL:  cfg.IdentityCache.TTL,
		},
		Metrics: sink,
		Logger:  logger.With("component", "identity_cache"),
	})
	auth := service.NewAuthService(service.AuthServiceOptions{
		API:        api,
		Sessions:   sessions,
		Identities: identities,
		SessionTTL: cfg.Session.TTL,
		Logger:     logger.With("component", "auth"),
	})
	users := service.NewUserService(service.UserServiceOptions{
		API:        api,
		Auth:       auth,
		Identities: identities,
	})

	return ServiceContainer{
		API:        api,
		Sessions:   sessions,
		Identities: identities,
		Auth:       auth,
		Users:      users,
		Metrics:    sink,
	}, nil
}

// BuildMetrics returns the StatsD sink for cfg and a closer for its socket.
// A dial failure is logged and metrics are discarded.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (statsd.Sink, io.Closer) {
	if !cfg.IsEnabled() {
		return statsd.Discard, noopCloser{}
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Service: cfg.ServiceName,
		Logger:  logger,
	})
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		}
		return statsd.Discard, noopCloser{}
	}
	return client, client
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
