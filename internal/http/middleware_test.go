package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGate returns a fixed result and counts calls.
type stubGate struct {
	result service.GateResult
	panics bool
	calls  int
	header string
}

func (g *stubGate) Authenticate(_ context.Context, header string) service.GateResult {
	g.calls++
	g.header = header
	if g.panics {
		panic("store exploded")
	}
	return g.result
}

func identityEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			_, _ = io.WriteString(w, identity.Email)
			return
		}
		_, _ = io.WriteString(w, "anonymous")
	})
}

func TestAuthenticate_AttachesIdentity(t *testing.T) {
	gate := &stubGate{result: service.GateResult{
		Outcome:  domainauth.OutcomeAuthenticated,
		Identity: &domainauth.Identity{Email: "ada@example.com", Role: domainauth.RoleUser},
	}}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()

	Authenticate(gate, discardLogger())(identityEcho(t)).ServeHTTP(rec, req)

	assert.Equal(t, "ada@example.com", rec.Body.String())
	assert.Equal(t, "Bearer tok", gate.header)
}

func TestAuthenticate_RejectedTokenContinuesAnonymously(t *testing.T) {
	outcomes := []domainauth.GateOutcome{
		domainauth.OutcomeNoToken,
		domainauth.OutcomeInvalid,
		domainauth.OutcomeRevoked,
	}
	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			gate := &stubGate{result: service.GateResult{Outcome: outcome}}
			rec := httptest.NewRecorder()

			Authenticate(gate, discardLogger())(identityEcho(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "anonymous", rec.Body.String())
		})
	}
}

func TestAuthenticate_GatePanicFailsOpen(t *testing.T) {
	gate := &stubGate{panics: true}
	rec := httptest.NewRecorder()

	Authenticate(gate, discardLogger())(identityEcho(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAuthenticate_SkipsWhenIdentityPresent(t *testing.T) {
	gate := &stubGate{result: service.GateResult{Outcome: domainauth.OutcomeInvalid}}
	existing := &domainauth.Identity{Email: "grace@example.com"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), existing))
	rec := httptest.NewRecorder()

	Authenticate(gate, discardLogger())(identityEcho(t)).ServeHTTP(rec, req)

	assert.Equal(t, 0, gate.calls)
	assert.Equal(t, "grace@example.com", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name     string
		identity *domainauth.Identity
		want     int
		wantCode string
	}{
		{name: "anonymous", want: http.StatusUnauthorized, wantCode: "not_authenticated"},
		{
			name:     "wrong role",
			identity: &domainauth.Identity{Email: "ada@example.com", Role: domainauth.RoleModerator},
			want:     http.StatusForbidden,
			wantCode: "insufficient_permissions",
		},
		{
			name:     "admin",
			identity: &domainauth.Identity{Email: "grace@example.com", Role: domainauth.RoleAdmin},
			want:     http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			req = req.WithContext(WithIdentity(req.Context(), tt.identity))
			rec := httptest.NewRecorder()

			RequireRole(domainauth.RoleAdmin)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec)["error"])
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "caller-id-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "caller-id-1", seen)
		assert.Equal(t, "caller-id-1", rec.Header().Get(RequestIDHeader))
	})
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type timingRecorder struct {
	mu      sync.Mutex
	timings []map[string]string
}

func (r *timingRecorder) Count(string, int64, map[string]string) {}

func (r *timingRecorder) Timing(_ string, _ time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, tags)
}

func TestLogging_EmitsRequestTiming(t *testing.T) {
	sink := &timingRecorder{}
	h := Logging(LoggingOptions{
		Logger:  discardLogger(),
		Metrics: sink,
		Route:   func(*http.Request) string { return "GET /healthz" },
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Len(t, sink.timings, 1)
	assert.Equal(t, map[string]string{"route": "GET /healthz", "status": "4xx"}, sink.timings[0])
}

func TestNewRouter_TagsRequestsWithPattern(t *testing.T) {
	sink := &timingRecorder{}
	h := NewRouter(RouterServices{Auth: &failingAuthService{}, Metrics: sink, Logger: discardLogger()})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, sink.timings, 2)
	assert.Equal(t, "GET /healthz", sink.timings[0]["route"])
	assert.Equal(t, "unmatched", sink.timings[1]["route"])
}
