// Package tokens implements the signed bearer token codec.
package tokens

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/ports"
)

// MinKeyBytes is the shortest HMAC key accepted for HS256.
const MinKeyBytes = 32

const (
	claimSubject   = "sub"
	claimIssuedAt  = "iat"
	claimExpiresAt = "exp"
)

var _ ports.TokenCodec = (*HMACCodec)(nil)

// ErrWeakKey is returned when the signing key is shorter than MinKeyBytes.
var ErrWeakKey = fmt.Errorf("signing key must be at least %d bytes", MinKeyBytes)

// HMACCodec signs and parses HS256 JWTs carrying sub, iat and exp.
// iat and exp are encoded as fractional NumericDates with microsecond precision.
// It holds no mutable state and is safe for concurrent use.
type HMACCodec struct {
	key    []byte
	clock  ports.TimeProvider
	parser *jwt.Parser
}

// NewHMACCodec builds a codec from a raw key.
func NewHMACCodec(key []byte, clock ports.TimeProvider) (*HMACCodec, error) {
	if len(key) < MinKeyBytes {
		return nil, ErrWeakKey
	}
	if clock == nil {
		return nil, errors.New("time provider is required")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &HMACCodec{
		key:   k,
		clock: clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			// Expiry is enforced by callers so refresh and access checks can differ.
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// NewHMACCodecFromBase64 builds a codec from a base64-encoded key.
func NewHMACCodecFromBase64(secret string, clock ports.TimeProvider) (*HMACCodec, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	return NewHMACCodec(key, clock)
}

// Issue signs a token for subject with iat = now and exp = now + lifetime.
func (c *HMACCodec) Issue(subject string, lifetime time.Duration, extra map[string]any) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	now := c.clock.Now()

	claims := make(jwt.MapClaims, len(extra)+3)
	for k, v := range extra {
		if isReserved(k) {
			continue
		}
		claims[k] = v
	}
	claims[claimSubject] = subject
	claims[claimIssuedAt] = numericDate(now)
	claims[claimExpiresAt] = numericDate(now.Add(lifetime))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and decodes the claims. It does not reject expired tokens.
func (c *HMACCodec) Parse(token string) (domainauth.Claims, error) {
	mc := jwt.MapClaims{}
	parsed, err := c.parser.ParseWithClaims(token, mc, c.keyFunc)
	if err != nil {
		return domainauth.Claims{}, fmt.Errorf("%w: %w", domainauth.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return domainauth.Claims{}, domainauth.ErrInvalidToken
	}

	sub, ok := mc[claimSubject].(string)
	if !ok || sub == "" {
		return domainauth.Claims{}, fmt.Errorf("%w: missing subject", domainauth.ErrInvalidToken)
	}
	iat, ok := numericTime(mc[claimIssuedAt])
	if !ok {
		return domainauth.Claims{}, fmt.Errorf("%w: missing issued-at", domainauth.ErrInvalidToken)
	}
	exp, ok := numericTime(mc[claimExpiresAt])
	if !ok {
		return domainauth.Claims{}, fmt.Errorf("%w: missing expiry", domainauth.ErrInvalidToken)
	}

	var extra map[string]any
	for k, v := range mc {
		if isReserved(k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}

	return domainauth.Claims{Subject: sub, IssuedAt: iat, ExpiresAt: exp, Extra: extra}, nil
}

// Subject returns the token subject.
func (c *HMACCodec) Subject(token string) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IssuedAt returns the token issue time.
func (c *HMACCodec) IssuedAt(token string) (time.Time, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.IssuedAt, nil
}

// Expiry returns the token expiry time.
func (c *HMACCodec) Expiry(token string) (time.Time, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt, nil
}

// IsValid reports whether token verifies, belongs to expectedSubject and is not expired.
func (c *HMACCodec) IsValid(token, expectedSubject string) bool {
	claims, err := c.Parse(token)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && !claims.Expired(c.clock.Now())
}

func (c *HMACCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.key, nil
}

func isReserved(claim string) bool {
	return claim == claimSubject || claim == claimIssuedAt || claim == claimExpiresAt
}

func numericDate(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func numericTime(v any) (time.Time, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		f = parsed
	default:
		return time.Time{}, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), true
}
