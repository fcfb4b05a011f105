package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/observability/metrics"
	"github.com/target/tokengate/internal/ports"
	"github.com/target/tokengate/internal/service"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// Authenticator resolves an Authorization header into a gate decision.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) service.GateResult
}

// RequestID returns a middleware that assigns every request a correlation id.
// A well-formed id supplied by the caller is reused; otherwise a new UUID is generated.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// LoggingOptions configures the Logging middleware.
type LoggingOptions struct {
	Logger  *slog.Logger
	Metrics ports.MetricsSink
	// Route maps a request to its registered pattern for metric tagging. Optional.
	Route func(*http.Request) string
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(opts LoggingOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", elapsed),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
			if opts.Metrics != nil {
				metrics.EmitRequest(opts.Metrics, routeLabel(opts.Route, r), ww.status, elapsed)
			}
		})
	}
}

func routeLabel(route func(*http.Request) string, r *http.Request) string {
	if route != nil {
		if p := route(r); p != "" {
			return p
		}
	}
	return "unmatched"
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("request_id", RequestIDFromContext(r.Context())),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate returns a middleware that attaches the caller's identity when the gate accepts
// the Authorization header. Requests always proceed; a rejected or failing gate leaves them anonymous.
func Authenticate(gate Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				if identity := runGate(r, gate, logger); identity != nil {
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// runGate isolates gate failures so a broken dependency degrades to an anonymous request.
func runGate(r *http.Request, gate Authenticator, logger *slog.Logger) (identity *domainauth.Identity) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(r.Context(), "authentication gate panicked",
				slog.Any("error", rec),
				slog.String("request_id", RequestIDFromContext(r.Context())))
			identity = nil
		}
	}()
	res := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if res.Outcome != domainauth.OutcomeAuthenticated {
		return nil
	}
	return res.Identity
}

// RequireAuth returns a middleware that requires an authenticated identity.
// If the request is anonymous, it returns a 401 Unauthorized response.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				writeNotAuthenticated(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns a middleware that requires a specific role.
// If the user doesn't have the required role, it returns a 403 Forbidden response.
func RequireRole(requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeNotAuthenticated(w)
				return
			}

			if !identity.HasRole(requiredRole) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     fmt.Errorf("role %s required", requiredRole),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeNotAuthenticated(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "not_authenticated",
		Err:     errors.New("authentication required"),
	})
}

// Chain applies middlewares so that the first argument is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
