package security

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret-which-is-long-enough-for-hs256")

	token, err := svc.GenerateToken(42, 7, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || claims.TenantID != 7 {
		t.Errorf("expected user 42 tenant 7, got %+v", claims)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService("test-secret-which-is-long-enough-for-hs256")

	token, err := svc.GenerateToken(42, 7, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService("issuer-secret-which-is-long-enough-abcd")
	verifier := NewAuthService("different-secret-which-is-long-enough-x")

	token, err := issuer.GenerateToken(1, 1, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}
