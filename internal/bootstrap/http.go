package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/refresh-orchestrator/config"
	httpx "github.com/target/refresh-orchestrator/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Redis    redis.UniversalClient
	Logger   *slog.Logger
}

// BuildRouter maps the service container onto the HTTP router.
func BuildRouter(services ServiceContainer, logger *slog.Logger, readiness ...httpx.ReadinessCheck) http.Handler {
	return httpx.NewRouter(httpx.RouterServices{
		Orchestrator:    services.Orchestrator,
		Initiator:       services.Initiator,
		Finisher:        services.Finisher,
		Runs:            services.Runs,
		Parameters:      services.Parameters,
		TriggerVerifier: services.TriggerVerifier,
		Readiness:       readiness,
		Logger:          logger,
	})
}

// readinessChecks probes whichever of the shared connections are open.
func readinessChecks(db *sql.DB, rdb redis.UniversalClient) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if db != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Ping: db.PingContext})
	}
	if rdb != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}

func newServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// serveHTTP listens until ctx ends, then drains in-flight requests for up to HTTP.ShutdownTimeout.
func serveHTTP(ctx context.Context, cfg *HTTPServerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	server := newServer(appCfg.HTTP, BuildRouter(cfg.Services, logger, readinessChecks(cfg.DB, cfg.Redis)...))
	listenErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", server.Addr)
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	case <-ctx.Done():
	}

	timeout := appCfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// ctx is already done; an orchestration pass in flight still gets the drain window.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger.InfoContext(ctx, "shutting down HTTP server", "timeout", timeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	if err := <-listenErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
