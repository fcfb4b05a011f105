package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/tokengate/config"
	"github.com/target/tokengate/internal/adapters/memstore"
	"github.com/target/tokengate/internal/adapters/passwords"
	redisadapter "github.com/target/tokengate/internal/adapters/redis"
	"github.com/target/tokengate/internal/adapters/tokens"
	"github.com/target/tokengate/internal/data"
	"github.com/target/tokengate/internal/ports"
	"github.com/target/tokengate/internal/service"
)

// AuthDeps contains the infrastructure the auth core is built on.
type AuthDeps struct {
	Config *config.AppConfig
	// DB is required when the postgres user store is selected.
	DB *sql.DB
	// RedisClient enables the user cache when the cache TTL is positive. Optional.
	RedisClient redis.UniversalClient
	Metrics     ports.MetricsSink
	// Clock defaults to the system clock.
	Clock  ports.TimeProvider
	Logger *slog.Logger
}

// AuthComponents are the wired auth core pieces shared by the HTTP server and the admin CLI.
type AuthComponents struct {
	Users   ports.UserStore
	Service *service.AuthService
	Gate    *service.AuthGate
}

// BuildAuth wires the user store, password hasher and token codec into the auth service and gate.
func BuildAuth(deps AuthDeps) (*AuthComponents, error) {
	if deps.Config == nil {
		return nil, errors.New("auth config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	cfg := deps.Config

	users, err := buildUserStore(deps, clock, logger)
	if err != nil {
		return nil, err
	}

	key, err := cfg.Auth.Token.DecodeSecret()
	if err != nil {
		return nil, err
	}
	codec, err := tokens.NewHMACCodec(key, clock)
	if err != nil {
		return nil, fmt.Errorf("build token codec: %w", err)
	}

	wm := service.NewRevocationWatermark(users, clock, logger)
	svc := service.NewAuthService(service.AuthServiceOptions{
		Users:     users,
		Hasher:    passwords.NewBcrypt(cfg.Auth.BcryptCost),
		Codec:     codec,
		Watermark: wm,
		Clock:     clock,
		Metrics:   deps.Metrics,
		Logger:    logger,
		Policy: service.TokenPolicy{
			AccessTTL:           cfg.Auth.Token.AccessTTL,
			RefreshTTL:          cfg.Auth.Token.RefreshTTL,
			RefreshHonorsLogout: cfg.Auth.Token.RefreshHonorsLogout,
		},
		PhoneRegion: cfg.Auth.DefaultPhoneRegion,
	})
	gate := service.NewAuthGate(service.AuthGateOptions{
		Codec:     codec,
		Users:     users,
		Watermark: wm,
		Clock:     clock,
		Metrics:   deps.Metrics,
		Logger:    logger,
	})

	return &AuthComponents{Users: users, Service: svc, Gate: gate}, nil
}

//nolint:ireturn // the store kind is chosen from config at runtime.
func buildUserStore(deps AuthDeps, clock ports.TimeProvider, logger *slog.Logger) (ports.UserStore, error) {
	cfg := deps.Config

	var store ports.UserStore
	switch cfg.Auth.Store {
	case config.UserStoreMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		store = memstore.NewUserStore(clock)
	case config.UserStorePostgres, "":
		if deps.DB == nil {
			return nil, errors.New("postgres user store selected but no database connection configured")
		}
		store = data.NewUserRepo(deps.DB)
	default:
		return nil, fmt.Errorf("unknown user store %q", cfg.Auth.Store)
	}

	if deps.RedisClient == nil || !cfg.UsesRedisCache() {
		return store, nil
	}
	cache, err := redisadapter.NewUserCache(redisadapter.UserCacheOptions{
		Store:  store,
		Client: deps.RedisClient,
		TTL:    cfg.Cache.UserTTL,
		Prefix: cfg.Cache.KeyPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build user cache: %w", err)
	}
	logger.Info("user cache enabled", "ttl", cfg.Cache.UserTTL)
	return cache, nil
}
