package bootstrap

import (
	"context"
	"log/slog"

	"github.com/acme/acct-console/config"
)

// Run connects infrastructure, wires services and serves HTTP until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	redisClient, err := ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	sink, metricsCloser := BuildMetrics(cfg.Observability.Metrics, logger)
	defer func() {
		if cerr := metricsCloser.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd failed", "error", cerr)
		}
	}()

	services, err := NewServices(ServiceDeps{
		Config:      cfg,
		RedisClient: redisClient,
		Metrics:     sink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting console",
		"addr", cfg.HTTP.Addr,
		"api_base_url", cfg.API.BaseURL,
		"dev", cfg.IsDev,
		"metrics", cfg.Observability.Metrics.IsEnabled())

	return RunHTTPServer(ctx, RunHTTPConfig{
		Server:          NewHTTPServer(HTTPServerConfig{Config: cfg, Services: services, Logger: logger}),
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
}
