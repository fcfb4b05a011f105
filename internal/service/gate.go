package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/observability/metrics"
	"github.com/target/tokengate/internal/ports"
)

var errAccountDisabled = errors.New("account inactive or deleted")

// GateResult is the decision for one request. Identity is set only when Outcome is authenticated.
// Err carries the reason for a rejection and is for diagnostics only.
type GateResult struct {
	Outcome  domainauth.GateOutcome
	Identity *domainauth.Identity
	Err      error
}

// AuthGateOptions groups dependencies for AuthGate.
type AuthGateOptions struct {
	Codec     ports.TokenCodec
	Users     ports.UserStore
	Watermark *RevocationWatermark
	Clock     ports.TimeProvider
	Metrics   ports.MetricsSink
	Logger    *slog.Logger
}

// AuthGate turns an Authorization header into an identity. It never fails a request itself;
// authorization decisions are left to the routes.
type AuthGate struct {
	codec     ports.TokenCodec
	users     ports.UserStore
	watermark *RevocationWatermark
	clock     ports.TimeProvider
	metrics   ports.MetricsSink
	logger    *slog.Logger
}

// NewAuthGate constructs an AuthGate.
func NewAuthGate(opts AuthGateOptions) *AuthGate {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wm := opts.Watermark
	if wm == nil {
		wm = NewRevocationWatermark(opts.Users, opts.Clock, logger)
	}
	return &AuthGate{
		codec:     opts.Codec,
		users:     opts.Users,
		watermark: wm,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "auth_gate"),
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, domainauth.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(domainauth.BearerPrefix):])
	return token, token != ""
}

// Authenticate evaluates header and reports the terminal outcome.
func (g *AuthGate) Authenticate(ctx context.Context, header string) (res GateResult) {
	defer func() {
		metrics.EmitGateOutcome(g.metrics, res.Outcome)
		if res.Outcome != domainauth.OutcomeAuthenticated && res.Outcome != domainauth.OutcomeNoToken {
			g.logger.DebugContext(ctx, "token rejected", "outcome", string(res.Outcome), "reason", res.Err)
		}
	}()

	token, ok := BearerToken(header)
	if !ok {
		return GateResult{Outcome: domainauth.OutcomeNoToken}
	}

	claims, err := g.codec.Parse(token)
	if err != nil {
		return GateResult{Outcome: domainauth.OutcomeInvalid, Err: err}
	}
	g.logger.DebugContext(ctx, "token parsed", "outcome", string(domainauth.OutcomeTokenParsed))

	user, err := g.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, domainauth.ErrUserNotFound) {
			g.logger.ErrorContext(ctx, "user lookup failed during authentication", "err", err)
		}
		return GateResult{Outcome: domainauth.OutcomeInvalid, Err: err}
	}
	if !user.CanAuthenticate() {
		return GateResult{Outcome: domainauth.OutcomeInvalid, Err: errAccountDisabled}
	}
	if claims.Expired(g.clock.Now()) {
		return GateResult{Outcome: domainauth.OutcomeInvalid, Err: fmt.Errorf("%w: expired", domainauth.ErrInvalidToken)}
	}
	if !g.watermark.IssuedAfter(user, claims.IssuedAt) {
		return GateResult{Outcome: domainauth.OutcomeRevoked, Err: domainauth.ErrTokenRevoked}
	}

	return GateResult{
		Outcome: domainauth.OutcomeAuthenticated,
		Identity: &domainauth.Identity{
			UserID:         user.ID,
			Email:          user.Email,
			Role:           user.Role,
			Active:         user.Active,
			TokenIssuedAt:  claims.IssuedAt,
			TokenExpiresAt: claims.ExpiresAt,
		},
	}
}
