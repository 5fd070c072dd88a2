package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndParseJWT(t *testing.T) {
	id := uuid.New()
	token, err := GenerateJWT("secret", id, "0x52908400098527886E0F7030069857D2E4169EE7", "guardian", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.GuardianID != id {
		t.Errorf("GuardianID = %s, want %s", claims.GuardianID, id)
	}
	if claims.Role != "guardian" {
		t.Errorf("Role = %q", claims.Role)
	}
	if claims.Subject != claims.Address {
		t.Errorf("Subject = %q, want address", claims.Subject)
	}
}

func TestParseJWT_Rejects(t *testing.T) {
	valid, err := GenerateJWT("secret", uuid.New(), "0x52908400098527886E0F7030069857D2E4169EE7", "guardian", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := GenerateJWT("secret", uuid.New(), "0x52908400098527886E0F7030069857D2E4169EE7", "guardian", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"garbage", "secret", "not.a.token"},
		{"empty", "secret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}

	// a negative expiration falls back to the default lifetime
	if _, err := ParseJWT("secret", expired); err != nil {
		t.Errorf("default expiration token rejected: %v", err)
	}
}
