package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndVerifyRoundTripsSubject(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := SignJWT(Claims{
		Email:            "architect@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	claims, err := VerifyJWT(token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "architect@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := SignJWT(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	if _, err := VerifyJWT(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "one")
	token, err := SignJWT(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	t.Setenv("JWT_SECRET", "two")
	if _, err := VerifyJWT(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSecretRequiredInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	if _, err := SignJWT(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}); err == nil {
		t.Fatalf("expected error without secret in production")
	}
}

func TestVerifyChecksIssuerAndAudienceWhenConfigured(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ISSUER", "https://idp.example")
	t.Setenv("JWT_AUDIENCE", "plancheck")

	good, err := SignJWT(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "user-1",
		Issuer:   "https://idp.example",
		Audience: jwt.ClaimStrings{"plancheck"},
	}})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	if _, err := VerifyJWT(good); err != nil {
		t.Fatalf("expected matching issuer and audience to verify, got %v", err)
	}

	foreign, err := SignJWT(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "user-1",
		Issuer:   "https://other.example",
		Audience: jwt.ClaimStrings{"plancheck"},
	}})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	if _, err := VerifyJWT(foreign); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}
