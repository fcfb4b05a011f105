package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/tokengate/config"
	httpx "github.com/target/tokengate/internal/http"
	"github.com/target/tokengate/internal/ports"
)

const idleTimeout = 120 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	HTTP    config.HTTPConfig
	Auth    *AuthComponents
	Metrics ports.MetricsSink
	Logger  *slog.Logger

	// HealthChecks are reported by /healthz; see Infrastructure.HealthChecks.
	HealthChecks map[string]httpx.HealthCheck
}

// NewHTTPServer builds the server and its handler without starting it.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("auth components are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Auth:         cfg.Auth.Service,
		Gate:         cfg.Auth.Gate,
		HealthChecks: cfg.HealthChecks,
		Metrics:      cfg.Metrics,
		Logger:       logger,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	addr := cfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}, nil
}

// ServeHTTP serves on ln until the server is shut down. http.ErrServerClosed is not reported.
// The returned channel receives at most one error and is closed when serving stops.
func ServeHTTP(server *http.Server, ln net.Listener, logger *slog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			errCh <- err
		}
	}()
	return errCh
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}

	if logger != nil {
		logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("HTTP server stopped")
	}
	return nil
}
