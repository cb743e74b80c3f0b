// ABOUTME: Unit tests for JWT token issuing, verification and inspection
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens and unverified claim reads

package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestIssuer(t *testing.T) *JWTIssuer {
	t.Helper()
	issuer, err := NewJWTIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTIssuer() error = %v", err)
	}
	return issuer
}

func TestNewJWTIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewJWTIssuer([]byte("short"), time.Hour)
	if !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewJWTIssuer() error = %v, want ErrWeakSecret", err)
	}
}

func TestNewJWTIssuer_DefaultLifetime(t *testing.T) {
	issuer, err := NewJWTIssuer(testSecret, 0)
	if err != nil {
		t.Fatalf("NewJWTIssuer() error = %v", err)
	}
	if issuer.Lifetime() != DefaultTokenLifetime {
		t.Errorf("Lifetime() = %v, want %v", issuer.Lifetime(), DefaultTokenLifetime)
	}
}

func TestJWTIssuer_ValidToken(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Generate("user-123", "auditor@example.com", "auditor")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
	}
	if claims.Email != "auditor@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "auditor@example.com")
	}
	if claims.Role != "auditor" {
		t.Errorf("Role = %q, want %q", claims.Role, "auditor")
	}
	if claims.Expired(time.Now()) {
		t.Error("fresh token reported as expired")
	}
}

func TestJWTIssuer_InvalidToken(t *testing.T) {
	issuer := newTestIssuer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewJWTIssuer([]byte("a-completely-different-secret-!!"), time.Hour)
				token, _ := other.Generate("user-123", "", "")
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTIssuer_ExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.GenerateWithExpiry("user-123", "", "", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateWithExpiry() error = %v", err)
	}

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestInspectToken_ReadsClaimsWithoutSecret(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _ := issuer.GenerateWithExpiry("user-9", "a@b.c", "viewer", -time.Minute)

	claims, err := InspectToken(token)
	if err != nil {
		t.Fatalf("InspectToken() error = %v", err)
	}
	if claims.UserID != "user-9" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-9")
	}
	if !claims.Expired(time.Now()) {
		t.Error("expected inspected token to be expired")
	}
}

func TestInspectToken_OpaqueToken(t *testing.T) {
	if _, err := InspectToken("opaque-session-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("InspectToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestClaims_NoExpiryNeverExpires(t *testing.T) {
	c := &Claims{UserID: "u"}
	if c.Expired(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Error("claims without exp should never expire")
	}
}

func TestFingerprint(t *testing.T) {
	if got := Fingerprint("short"); got != "****" {
		t.Errorf("Fingerprint(short) = %q", got)
	}
	if got := Fingerprint("eyJhbGciOiJIUzI1NiJ9.payload.sig"); got != "eyJhbGci…" {
		t.Errorf("Fingerprint(long) = %q", got)
	}
}
