package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth AuthServiceInterface
	Gate Authenticator
	// Optional
	HealthChecks map[string]HealthCheck
	Metrics      ports.MetricsSink
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router with its middleware stack.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	health := &HealthHandler{Checks: services.HealthChecks, Logger: logger.With("component", "http_health")}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Logger:       logger.With("component", "http_auth"),
		MaxBodyBytes: services.MaxBodyBytes,
	}
	registerAuthRoutes(mux, authHandlers)

	route := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}

	stack := []func(http.Handler) http.Handler{
		Recover(logger),
		RequestID(),
		Logging(LoggingOptions{Logger: logger, Metrics: services.Metrics, Route: route}),
	}
	if services.Gate != nil {
		stack = append(stack, Authenticate(services.Gate, logger))
	}
	return Chain(mux, stack...)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	requireAuth := RequireAuth()
	requireAdmin := RequireRole(domainauth.RoleAdmin)

	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.Handle("GET /auth/me", requireAuth(http.HandlerFunc(h.Me)))
	mux.Handle("POST /auth/logout", requireAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("POST /auth/users/{email}/revoke", requireAdmin(http.HandlerFunc(h.Revoke)))
}
