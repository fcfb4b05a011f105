package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

const testSecret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("JWT_REFRESH_TTL", "24h")
	t.Setenv("JWT_REFRESH_HONORS_LOGOUT", "true")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("USER_STORE", "memory")
	t.Setenv("AUTH_DEFAULT_PHONE_REGION", "us")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	expected := AuthConfig{
		Token: TokenConfig{
			SecretKey:           testSecret,
			AccessTTL:           5 * time.Minute,
			RefreshTTL:          24 * time.Hour,
			RefreshHonorsLogout: true,
		},
		BcryptCost:         12,
		Store:              UserStoreMemory,
		DefaultPhoneRegion: "US",
	}

	if !reflect.DeepEqual(cfg.Auth, expected) {
		t.Fatalf("unexpected auth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Auth)
	}
	if cfg.UsesPostgres() {
		t.Fatalf("expected memory store to disable postgres")
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", testSecret)

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Token.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.Auth.Token.AccessTTL)
	}
	if cfg.Auth.Token.RefreshTTL != 168*time.Hour {
		t.Fatalf("expected 168h refresh ttl, got %s", cfg.Auth.Token.RefreshTTL)
	}
	if cfg.Auth.BcryptCost != 10 {
		t.Fatalf("expected bcrypt cost 10, got %d", cfg.Auth.BcryptCost)
	}
	if !cfg.UsesPostgres() {
		t.Fatalf("expected postgres store by default")
	}
	if cfg.UsesRedisCache() {
		t.Fatalf("expected redis cache to be disabled by default")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTP.Addr)
	}
}

func TestAppConfig_MissingSecret(t *testing.T) {
	var cfg AppConfig
	err := env.Parse(&cfg)
	if err == nil {
		t.Fatalf("expected error when JWT_SECRET_KEY is missing")
	}
	if !strings.Contains(err.Error(), "SECRET_KEY") {
		t.Fatalf("expected error to mention SECRET_KEY, got %v", err)
	}
}

func TestUserStoreKind_UnmarshalText(t *testing.T) {
	var k UserStoreKind
	if err := k.UnmarshalText([]byte(" Memory ")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != UserStoreMemory {
		t.Fatalf("expected memory, got %q", k)
	}
	if err := k.UnmarshalText([]byte("mysql")); err == nil {
		t.Fatalf("expected error for unsupported store")
	}
}

func TestAuthConfig_Sanitize(t *testing.T) {
	cfg := AuthConfig{
		Token: TokenConfig{
			SecretKey:  "  " + testSecret + "\n",
			AccessTTL:  time.Hour,
			RefreshTTL: time.Minute,
		},
		BcryptCost: 99,
	}

	cfg.Sanitize()

	if cfg.Token.SecretKey != testSecret {
		t.Fatalf("expected secret to be trimmed, got %q", cfg.Token.SecretKey)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("expected out-of-range cost to reset to 10, got %d", cfg.BcryptCost)
	}
	if cfg.Token.RefreshTTL != time.Hour {
		t.Fatalf("expected refresh ttl raised to access ttl, got %s", cfg.Token.RefreshTTL)
	}
	if cfg.Store != UserStorePostgres {
		t.Fatalf("expected default store, got %q", cfg.Store)
	}
}

func TestTokenConfig_DecodeSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantLen int
		wantErr string
	}{
		{name: "valid", secret: testSecret, wantLen: 32},
		{name: "empty", secret: "", wantErr: "required"},
		{name: "not base64", secret: "%%%", wantErr: "decode"},
		{name: "too short", secret: "c2hvcnQta2V5", wantErr: "at least 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := TokenConfig{SecretKey: tt.secret}.DecodeSecret()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(key) != tt.wantLen {
				t.Fatalf("expected %d bytes, got %d", tt.wantLen, len(key))
			}
		})
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.Prefix != "tokengate" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestCacheConfig_Sanitize(t *testing.T) {
	cfg := CacheConfig{UserTTL: -time.Second}
	cfg.Sanitize()
	if cfg.UserTTL != 0 {
		t.Fatalf("expected negative ttl to clamp to 0, got %s", cfg.UserTTL)
	}
	if cfg.KeyPrefix == "" {
		t.Fatalf("expected default key prefix")
	}
}
