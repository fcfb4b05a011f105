package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/ports"
)

// RevocationWatermark decides whether a token predates its user's last logout.
// The watermark is the user's last_logout column; tokens issued at or before it are revoked.
type RevocationWatermark struct {
	users  ports.UserStore
	clock  ports.TimeProvider
	logger *slog.Logger
}

// NewRevocationWatermark constructs a watermark over users.
func NewRevocationWatermark(users ports.UserStore, clock ports.TimeProvider, logger *slog.Logger) *RevocationWatermark {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationWatermark{users: users, clock: clock, logger: logger.With("component", "watermark")}
}

// IssuedAfter reports whether issuedAt is strictly after u's last logout.
// A user who never logged out accepts every token.
func (w *RevocationWatermark) IssuedAfter(u *model.User, issuedAt time.Time) bool {
	if u == nil {
		return false
	}
	if u.LastLogout == nil {
		return true
	}
	return issuedAt.After(*u.LastLogout)
}

// IsIssuedAfterLogout loads subject and applies IssuedAfter. Lookup failures count as revoked.
func (w *RevocationWatermark) IsIssuedAfterLogout(ctx context.Context, issuedAt time.Time, subject string) bool {
	u, err := w.users.GetByEmail(ctx, subject)
	if err != nil {
		if !errors.Is(err, domainauth.ErrUserNotFound) {
			w.logger.WarnContext(ctx, "watermark lookup failed", "err", err)
		}
		return false
	}
	return w.IssuedAfter(u, issuedAt)
}

// MarkLoggedOut moves subject's watermark to now, revoking every token issued so far.
// The watermark is kept at microsecond precision to match token iat and the users table.
func (w *RevocationWatermark) MarkLoggedOut(ctx context.Context, subject string) error {
	if subject == "" {
		return domainauth.ErrNotAuthenticated
	}
	if err := w.users.MarkLoggedOut(ctx, subject, w.clock.Now().Truncate(time.Microsecond)); err != nil {
		if errors.Is(err, domainauth.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("mark logged out: %w", err)
	}
	return nil
}
