package auth

// Package auth contains domain-level types for token authentication.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Stored as its string form in the users table.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleModerator:
		return true
	default:
		return false
	}
}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q (valid options: ADMIN, USER, MODERATOR)", s)
	}
	return r, nil
}

// TokenTypeBearer is the token type reported to clients and expected in the Authorization header.
const TokenTypeBearer = "Bearer"

// BearerPrefix is the Authorization header prefix carrying a token.
const BearerPrefix = TokenTypeBearer + " "

// Claims are the decoded contents of a signed token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// Expired reports whether the token is past its expiry at now.
func (c Claims) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// TokenPair is an access token together with the refresh token that can mint new ones.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

// Identity is the authenticated principal attached to a request.
// It is derived from a validated token and the live user record, never from token claims alone.
type Identity struct {
	UserID         int64
	Email          string
	Role           Role
	Active         bool
	TokenIssuedAt  time.Time
	TokenExpiresAt time.Time
}

// HasRole reports whether the identity carries role r.
func (i *Identity) HasRole(r Role) bool {
	return i != nil && i.Role == r
}
