package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acme/acct-console/config"
	httpx "github.com/acme/acct-console/internal/http"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPHandler builds the console router from configuration and services.
func NewHTTPHandler(cfg HTTPServerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Auth:       cfg.Services.Auth,
		Users:      cfg.Services.Users,
		Identities: cfg.Services.Identities,
		Metrics:    cfg.Services.Metrics,
		Cookies: httpx.CookieConfig{
			Name:   appCfg.Session.CookieName,
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.SecureCookies(),
		},
		Logger: logger,
	}
	if cfg.Services.Sessions != nil {
		services.Health = cfg.Services.Sessions
	}
	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
		services.Compression = &httpx.CompressionConfig{Level: appCfg.HTTP.CompressionLevel, Logger: logger}
	}
	return httpx.NewRouter(services)
}

// NewHTTPServer returns an unstarted server for the console handler.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	addr := ""
	if cfg.Config != nil {
		addr = cfg.Config.HTTP.Addr
	}
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           NewHTTPHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// RunHTTPConfig contains dependencies for RunHTTPServer.
type RunHTTPConfig struct {
	Server *http.Server
	// Listener is optional; Server.Addr is used when nil.
	Listener        net.Listener
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// RunHTTPServer serves until ctx is cancelled or the server fails, then
// shuts down gracefully.
func RunHTTPServer(ctx context.Context, cfg RunHTTPConfig) error {
	if cfg.Server == nil {
		return errors.New("http server is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Listener != nil {
			logger.InfoContext(gctx, "starting HTTP server", "addr", cfg.Listener.Addr().String())
			err = cfg.Server.Serve(cfg.Listener)
		} else {
			logger.InfoContext(gctx, "starting HTTP server", "addr", cfg.Server.Addr)
			err = cfg.Server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return ShutdownHTTPServer(ShutdownConfig{Context: shutdownCtx, Server: cfg.Server, Logger: logger})
	})
	return g.Wait()
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}
	return nil
}
