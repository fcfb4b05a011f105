package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserStoreKind selects the backing store for user records.
type UserStoreKind string

const (
	// UserStorePostgres keeps user records in PostgreSQL.
	UserStorePostgres UserStoreKind = "postgres"
	// UserStoreMemory keeps user records in process memory (development only).
	UserStoreMemory UserStoreKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for UserStoreKind.
func (k *UserStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "postgres", "memory":
		*k = UserStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid UserStoreKind: %q (valid options: postgres, memory)", v)
	}
}

const (
	// MinSecretKeyBytes is the minimum decoded key length accepted for HS256 signing.
	MinSecretKeyBytes = 32

	defaultBcryptCost = 10
	minBcryptCost     = 4
	maxBcryptCost     = 31
)

// TokenConfig controls signing and lifetimes of bearer tokens.
type TokenConfig struct {
	// SecretKey is the base64-encoded HMAC key.
	SecretKey string `env:"SECRET_KEY,required"`

	// AccessTTL is the lifetime of access tokens.
	AccessTTL time.Duration `env:"ACCESS_TTL" envDefault:"15m"`

	// RefreshTTL is the lifetime of refresh tokens.
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	// RefreshHonorsLogout rejects refresh tokens issued before the user's last logout.
	RefreshHonorsLogout bool `env:"REFRESH_HONORS_LOGOUT" envDefault:"false"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Token TokenConfig `envPrefix:"JWT_"`

	// BcryptCost is the work factor used when hashing passwords.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Store selects where user records live.
	Store UserStoreKind `env:"USER_STORE" envDefault:"postgres"`

	// DefaultPhoneRegion is used to parse phone numbers given without an international prefix.
	DefaultPhoneRegion string `env:"AUTH_DEFAULT_PHONE_REGION" envDefault:"FR"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	c.Token.SecretKey = strings.TrimSpace(c.Token.SecretKey)
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		c.BcryptCost = defaultBcryptCost
	}
	if c.Token.AccessTTL < 0 {
		c.Token.AccessTTL = 0
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		c.Token.RefreshTTL = c.Token.AccessTTL
	}
	c.DefaultPhoneRegion = strings.ToUpper(strings.TrimSpace(c.DefaultPhoneRegion))
	if c.Store == "" {
		c.Store = UserStorePostgres
	}
}

// Validate checks that the signing key decodes to a usable HMAC key.
func (c *AuthConfig) Validate() error {
	_, err := c.Token.DecodeSecret()
	return err
}

// DecodeSecret returns the raw HMAC key.
func (c TokenConfig) DecodeSecret() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decode JWT_SECRET_KEY: %w", err)
	}
	if len(key) < MinSecretKeyBytes {
		return nil, fmt.Errorf("JWT_SECRET_KEY must decode to at least %d bytes, got %d", MinSecretKeyBytes, len(key))
	}
	return key, nil
}
