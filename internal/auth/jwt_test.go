package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHMAC(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifierAcceptsValidHMACToken(t *testing.T) {
	v, err := NewVerifier("", "test-secret")
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	token := signHMAC(t, "test-secret", jwt.MapClaims{
		"sub":  "user-1",
		"role": "operator",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "operator" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerifierDefaultsRoleToViewer(t *testing.T) {
	v, _ := NewVerifier("", "test-secret")
	token := signHMAC(t, "test-secret", jwt.MapClaims{"sub": "user-1"})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("expected valid token: %v", err)
	}
	if claims.Role != "viewer" {
		t.Errorf("expected default role viewer, got %s", claims.Role)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	v, _ := NewVerifier("", "correct-secret")
	token := signHMAC(t, "wrong-secret", jwt.MapClaims{"sub": "user-1"})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifierRejectsMissingSubject(t *testing.T) {
	v, _ := NewVerifier("", "test-secret")
	token := signHMAC(t, "test-secret", jwt.MapClaims{"role": "operator"})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for missing subject, got %v", err)
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	v, _ := NewVerifier("", "test-secret")
	token := signHMAC(t, "test-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewVerifierRejectsMalformedPEM(t *testing.T) {
	if _, err := NewVerifier("not a pem key", "secret"); err == nil {
		t.Error("expected error for malformed PEM input")
	}
}
