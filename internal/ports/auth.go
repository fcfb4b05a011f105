package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
)

// TimeProvider supplies the current time so token and watermark logic can be tested deterministically.
type TimeProvider interface {
	Now() time.Time
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of plaintext.
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hash. It returns false for malformed hashes.
	Verify(plaintext, hash string) bool
}

// TokenCodec issues and decodes signed bearer tokens.
type TokenCodec interface {
	// Issue signs a token for subject valid for lifetime. Extra claims never override sub, iat or exp.
	Issue(subject string, lifetime time.Duration, extra map[string]any) (string, error)
	// Parse verifies the signature and structure. Expired tokens are returned without error.
	Parse(token string) (domainauth.Claims, error)
	Subject(token string) (string, error)
	IssuedAt(token string) (time.Time, error)
	Expiry(token string) (time.Time, error)
	// IsValid combines Parse, a subject match and an expiry check.
	IsValid(token, expectedSubject string) bool
}

// UserStore persists user credential records.
// Lookups by email are exact and case-sensitive. Missing records yield domainauth.ErrUserNotFound.
type UserStore interface {
	// Create inserts a new user or returns domainauth.ErrDuplicateEmail.
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// RecordLogin sets last_login to at and resets login_attempts.
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	// RecordFailedLogin increments login_attempts.
	RecordFailedLogin(ctx context.Context, id int64) error
	// MarkLoggedOut advances last_logout to at. It never moves the watermark backwards.
	MarkLoggedOut(ctx context.Context, email string, at time.Time) error
	SetRole(ctx context.Context, email string, role domainauth.Role) error
	SetActive(ctx context.Context, email string, active bool) error
	// Delete soft-deletes the user; the record stays so its email remains reserved.
	Delete(ctx context.Context, email string) error
}

// MetricsSink receives counters emitted by the auth core.
type MetricsSink interface {
	Count(name string, value int64, tags map[string]string)
}
