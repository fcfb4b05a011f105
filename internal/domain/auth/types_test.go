package auth

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "ADMIN", want: RoleAdmin},
		{in: " user ", want: RoleUser},
		{in: "Moderator", want: RoleModerator},
		{in: "guest", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClaims_Expired(t *testing.T) {
	exp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Claims{ExpiresAt: exp}

	if c.Expired(exp.Add(-time.Millisecond)) {
		t.Fatalf("did not expect expiry before exp")
	}
	if c.Expired(exp) {
		t.Fatalf("did not expect expiry at exp")
	}
	if !c.Expired(exp.Add(time.Millisecond)) {
		t.Fatalf("expected expiry after exp")
	}
}

func TestIdentity_HasRole(t *testing.T) {
	id := &Identity{Email: "a@x.com", Role: RoleAdmin}
	if !id.HasRole(RoleAdmin) {
		t.Fatalf("expected admin role")
	}
	if id.HasRole(RoleUser) {
		t.Fatalf("did not expect user role")
	}
	var nilID *Identity
	if nilID.HasRole(RoleAdmin) {
		t.Fatalf("nil identity must not have any role")
	}
}
