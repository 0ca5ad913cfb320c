package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc, err := NewAuthService([]string{"primary-secret"}, time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	token, err := svc.GenerateToken(42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.Subject != "42" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateTokenAcceptsAnyConfiguredSecret(t *testing.T) {
	other, err := NewAuthService([]string{"secondary-secret"}, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := other.GenerateToken(7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	svc, err := NewAuthService([]string{"primary-secret", "secondary-secret"}, time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate with second secret: %v", err)
	}
	if claims.UserID != 7 {
		t.Fatalf("user id = %d, want 7", claims.UserID)
	}
}

func TestValidateTokenAcceptsHMACFamily(t *testing.T) {
	svc, err := NewAuthService([]string{"primary-secret", "secondary-secret"}, time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	methods := []jwt.SigningMethod{jwt.SigningMethodHS256, jwt.SigningMethodHS384, jwt.SigningMethodHS512}
	for _, method := range methods {
		t.Run(method.Alg(), func(t *testing.T) {
			token := jwt.NewWithClaims(method, TokenClaims{
				UserID: 11,
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			})
			signed, err := token.SignedString([]byte("secondary-secret"))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			claims, err := svc.ValidateToken(signed)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if claims.UserID != 11 {
				t.Fatalf("user id = %d, want 11", claims.UserID)
			}
		})
	}

	issued, err := svc.GenerateToken(3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(issued, &TokenClaims{})
	if err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		t.Fatalf("issued alg = %s, want HS256", parsed.Method.Alg())
	}
}

func TestValidateTokenFallsBackToSubject(t *testing.T) {
	secret := []byte("primary-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "99",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	svc, _ := NewAuthService([]string{string(secret)}, time.Hour)
	claims, err := svc.ValidateToken(signed)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 99 {
		t.Fatalf("user id = %d, want 99", claims.UserID)
	}
}

func TestValidateTokenRejectsUnknownSecretAndExpiry(t *testing.T) {
	issuer, _ := NewAuthService([]string{"rogue"}, time.Hour)
	rogue, _ := issuer.GenerateToken(1)

	svc, _ := NewAuthService([]string{"primary-secret"}, time.Hour)
	if _, err := svc.ValidateToken(rogue); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, _ := expired.SignedString([]byte("primary-secret"))
	if _, err := svc.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}

	if _, err := svc.ValidateToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestNewAuthServiceRequiresSecret(t *testing.T) {
	if _, err := NewAuthService([]string{"", ""}, time.Hour); err == nil {
		t.Fatalf("expected error without secrets")
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("密", 25)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong for 75-byte password, got %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) {
		t.Fatalf("expected match")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Fatalf("expected mismatch")
	}

	svc, _ := NewAuthService([]string{"s"}, time.Hour)
	if svc.CheckPasswordHash("anything", "") {
		t.Fatalf("empty hash must never match")
	}
}
