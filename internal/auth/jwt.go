// Package auth verifies the bearer tokens operator sessions present on
// WebSocket and RPC connections.
package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any malformed, expired, or unverifiable token.
var ErrInvalidToken = errors.New("invalid auth token")

// Claims is the subset of the token's claims the gateway cares about.
type Claims struct {
	UserID string
	Role   string
}

// Verifier checks signed tokens against a configured public key, falling
// back to an HMAC shared secret for locally-signed dev tokens. Which path is
// used is selected per-token by its header alg, per spec §4.5.
type Verifier struct {
	publicKey interface{} // *rsa.PublicKey or *ecdsa.PublicKey
	hmacKey   []byte
}

// NewVerifier parses a PEM-encoded RSA or EC public key. An empty
// publicKeyPEM disables public-key verification and leaves only the HMAC
// fallback active, for local development.
func NewVerifier(publicKeyPEM string, hmacSecret string) (*Verifier, error) {
	v := &Verifier{hmacKey: []byte(hmacSecret)}
	if publicKeyPEM == "" {
		return v, nil
	}
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("auth: could not decode PEM public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	switch key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		v.publicKey = key
	default:
		return nil, fmt.Errorf("auth: unsupported public key type %T", key)
	}
	return v, nil
}

// Verify parses and validates token, selecting the verification key by the
// token header's alg: RS*/ES* against the configured public key, HS*
// against the shared secret.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			if v.publicKey == nil {
				return nil, fmt.Errorf("auth: no public key configured for alg %v", token.Header["alg"])
			}
			return v.publicKey, nil
		case *jwt.SigningMethodHMAC:
			if len(v.hmacKey) == 0 {
				return nil, fmt.Errorf("auth: no HMAC secret configured")
			}
			return v.hmacKey, nil
		default:
			return nil, fmt.Errorf("auth: unsupported signing method %v", token.Header["alg"])
		}
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = "viewer"
	}
	return &Claims{UserID: sub, Role: role}, nil
}
