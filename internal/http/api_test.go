package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/tokengate/internal/adapters/memstore"
	"github.com/target/tokengate/internal/adapters/passwords"
	"github.com/target/tokengate/internal/adapters/tokens"
	"github.com/target/tokengate/internal/data"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	mockauth "github.com/target/tokengate/internal/mocks/auth"
	"github.com/target/tokengate/internal/service"
	"golang.org/x/crypto/bcrypt"
)

var apiStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// testAPI is the full router over an in-memory store, real bcrypt and a fixed clock.
type testAPI struct {
	clock   *data.FixedTimeProvider
	users   *memstore.UserStore
	svc     *service.AuthService
	metrics *mockauth.RecordingMetrics
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	clock := data.NewFixedTimeProvider(apiStart)
	users := memstore.NewUserStore(clock)
	codec, err := tokens.NewHMACCodec([]byte("http-test-signing-key-0123456789"), clock)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &mockauth.RecordingMetrics{}
	wm := service.NewRevocationWatermark(users, clock, logger)
	svc := service.NewAuthService(service.AuthServiceOptions{
		Users:     users,
		Hasher:    passwords.NewBcrypt(bcrypt.MinCost),
		Codec:     codec,
		Watermark: wm,
		Clock:     clock,
		Metrics:   rec,
		Logger:    logger,
		Policy: service.TokenPolicy{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		PhoneRegion: "FR",
	})
	gate := service.NewAuthGate(service.AuthGateOptions{
		Codec:     codec,
		Users:     users,
		Watermark: wm,
		Clock:     clock,
		Metrics:   rec,
		Logger:    logger,
	})

	return &testAPI{
		clock:   clock,
		users:   users,
		svc:     svc,
		metrics: rec,
		handler: NewRouter(RouterServices{Auth: svc, Gate: gate, Metrics: rec, Logger: logger}),
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(t *testing.T, email, password string) tokenResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register", registerBody(email, password), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeTokens(t, rec)
}

func (a *testAPI) login(t *testing.T, email, password string) tokenResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeTokens(t, rec)
}

// createAdmin provisions an ADMIN account and returns a fresh access token for it.
func (a *testAPI) createAdmin(t *testing.T, email string) string {
	t.Helper()
	req := model.RegisterRequest{FirstName: "Grace", LastName: "Hopper", Email: email, Password: "admin-pass"}
	_, err := a.svc.CreateUser(t.Context(), req, domainauth.RoleAdmin)
	require.NoError(t, err)
	return a.login(t, email, "admin-pass").AccessToken
}

func registerBody(email, password string) map[string]any {
	return map[string]any{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     email,
		"password":  password,
	}
}

type tokenResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	TokenType    string         `json:"tokenType"`
	ExpiresIn    int64          `json:"expiresIn"`
	User         model.UserView `json:"user"`
}

func decodeTokens(t *testing.T, rec *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var out tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
