package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/tokengate/config"
	httpx "github.com/target/tokengate/internal/http"
	"github.com/target/tokengate/internal/ports"
)

// Infrastructure holds the shared connections opened for a process.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// Close releases every open connection.
func (i *Infrastructure) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthChecks returns a ping per open connection.
func (i *Infrastructure) HealthChecks() map[string]httpx.HealthCheck {
	checks := make(map[string]httpx.HealthCheck, 2)
	if i.DB != nil {
		checks["database"] = i.DB.PingContext
	}
	if i.Redis != nil {
		client := i.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// OpenInfrastructure connects the database and Redis when the config needs them,
// and applies migrations when enabled.
func OpenInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	if cfg.UsesPostgres() {
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db

		if cfg.Postgres.RunMigrationsOnStart {
			if err = RunMigrations(ctx, db, logger); err != nil {
				return nil, errors.Join(err, infra.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if cfg.UsesRedisCache() {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
		infra.Redis = client
	}

	return infra, nil
}

// Run starts the HTTP service and blocks until SIGINT/SIGTERM or a server failure.
func Run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	logger.InfoContext(ctx, "starting tokengate",
		"user_store", string(cfg.Auth.Store),
		"user_cache", cfg.UsesRedisCache(),
		"addr", cfg.HTTP.Addr)

	infra, err := OpenInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	var sink ports.MetricsSink
	if client := BuildMetrics(cfg.Observability.Metrics, logger); client != nil {
		sink = client
		defer func() {
			if cerr := client.Close(); cerr != nil {
				logger.WarnContext(ctx, "close statsd client failed", "error", cerr)
			}
		}()
	}

	auth, err := BuildAuth(AuthDeps{
		Config:      cfg,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Metrics:     sink,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	server, err := NewHTTPServer(HTTPServerConfig{
		HTTP:         cfg.HTTP,
		Auth:         auth,
		Metrics:      sink,
		Logger:       logger,
		HealthChecks: infra.HealthChecks(),
	})
	if err != nil {
		return err
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveUntilDone(sigCtx, server, ServeHTTP(server, ln, logger), cfg.HTTP, logger)
}

// serveUntilDone waits for ctx to end or the server to fail, then shuts the server down.
func serveUntilDone(ctx context.Context, server *http.Server, errCh <-chan error, cfg config.HTTPConfig, logger *slog.Logger) error {
	select {
	case <-ctx.Done():
		logger.Info("shutting down services...")
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
	}
	return ShutdownHTTPServer(context.WithoutCancel(ctx), server, cfg.ShutdownTimeout, logger)
}
