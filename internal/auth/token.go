// ABOUTME: JWT issuing and verification for CompliAI access tokens
// ABOUTME: HS256 tokens carrying user_id, email, role and exp claims

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("jwt secret too short")
)

// MinSecretLength is the minimum HS256 secret length in bytes.
const MinSecretLength = 32

// DefaultTokenLifetime matches the backend's default of seven days.
const DefaultTokenLifetime = 7 * 24 * time.Hour

// Claims is the identity carried inside an access token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time // zero when the token has no exp claim
}

// Expired reports whether the token's exp claim is at or before now.
// Tokens without an exp claim never expire locally.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTIssuer signs and verifies HS256 access tokens.
type JWTIssuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTIssuer creates an issuer. lifetime <= 0 selects DefaultTokenLifetime.
func NewJWTIssuer(secret []byte, lifetime time.Duration) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &JWTIssuer{secret: secret, lifetime: lifetime}, nil
}

// Lifetime returns how long issued tokens stay valid.
func (v *JWTIssuer) Lifetime() time.Duration {
	return v.lifetime
}

// Verify validates the signature and expiry and extracts the claims.
func (v *JWTIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc)
}

// Generate issues a token for the user using the issuer's lifetime.
func (v *JWTIssuer) Generate(userID, email, role string) (string, error) {
	return v.GenerateWithExpiry(userID, email, role, v.lifetime)
}

// GenerateWithExpiry issues a token that expires after expiresIn (may be negative in tests).
func (v *JWTIssuer) GenerateWithExpiry(userID, email, role string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// InspectToken decodes a token's claims WITHOUT verifying its signature.
// Clients use it to read exp from a cached token; never use it for access decisions.
func InspectToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc)
}

// Fingerprint returns a short, log-safe identifier for a token.
func Fingerprint(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "…"
}

func claimsFromMap(mc jwt.MapClaims) (*Claims, error) {
	userID, ok := mc["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: user_id", ErrMissingClaim)
	}

	c := &Claims{UserID: userID}
	c.Email, _ = mc["email"].(string)
	c.Role, _ = mc["role"].(string)

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
