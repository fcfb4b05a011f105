package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/target/tokengate/internal/adapters/memstore"
	"github.com/target/tokengate/internal/adapters/tokens"
	"github.com/target/tokengate/internal/data"
	"github.com/target/tokengate/internal/domain/model"
	mockauth "github.com/target/tokengate/internal/mocks/auth"
)

var fixtureStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clock   *data.FixedTimeProvider
	users   *memstore.UserStore
	codec   *tokens.HMACCodec
	hasher  *mockauth.PlainHasher
	metrics *mockauth.RecordingMetrics
	svc     *AuthService
	gate    *AuthGate
}

func defaultPolicy() TokenPolicy {
	return TokenPolicy{AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}
}

func newFixture(t *testing.T, policy TokenPolicy) *fixture {
	t.Helper()
	clock := data.NewFixedTimeProvider(fixtureStart)
	users := memstore.NewUserStore(clock)
	codec, err := tokens.NewHMACCodec([]byte("0123456789abcdef0123456789abcdef"), clock)
	require.NoError(t, err)

	f := &fixture{
		clock:   clock,
		users:   users,
		codec:   codec,
		hasher:  &mockauth.PlainHasher{},
		metrics: &mockauth.RecordingMetrics{},
	}
	wm := NewRevocationWatermark(users, clock, nil)
	f.svc = NewAuthService(AuthServiceOptions{
		Users:       users,
		Hasher:      f.hasher,
		Codec:       codec,
		Watermark:   wm,
		Clock:       clock,
		Metrics:     f.metrics,
		Policy:      policy,
		PhoneRegion: "FR",
	})
	f.gate = NewAuthGate(AuthGateOptions{
		Codec:     codec,
		Users:     users,
		Watermark: wm,
		Clock:     clock,
		Metrics:   f.metrics,
	})
	return f
}

func registerRequest(email string) model.RegisterRequest {
	return model.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  "s3cret-pass",
	}
}

func (f *fixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(t.Context(), registerRequest(email))
	require.NoError(t, err)
	return res
}

func bearer(token string) string { return "Bearer " + token }
