// Package auth verifies the compact ES256 tokens that admit peers to the write
// namespace, and mints keys and tokens for operators.
package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken    = errors.New("missing token")
	ErrInvalidToken    = errors.New("invalid token")
	ErrPayloadMismatch = errors.New("token payload mismatch")
	ErrInvalidKey      = errors.New("invalid public key")
)

// Algorithm is the only accepted signature algorithm.
const Algorithm = "ES256"

type header struct {
	Alg string `json:"alg"`
}

// Verifier checks a compact JWS signed with ES256 whose payload is a fixed
// acceptance literal rather than a claims set.
type Verifier struct {
	key      *ecdsa.PublicKey
	expected string
	parser   *jwt.Parser
}

// NewVerifier accepts the SPKI public key either as PEM or as base64url-encoded
// PEM (the form printed by the keygen command).
func NewVerifier(encodedKey, expected string) (*Verifier, error) {
	pemBytes, err := decodePEM(encodedKey)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if key.Curve.Params().Name != "P-256" {
		return nil, fmt.Errorf("%w: curve %s is not P-256", ErrInvalidKey, key.Curve.Params().Name)
	}
	return &Verifier{key: key, expected: expected, parser: jwt.NewParser()}, nil
}

// Verify returns nil only when token carries a valid ES256 signature over the
// expected payload.
func (v *Verifier) Verify(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(parts))
	}

	rawHeader, err := v.parser.DecodeSegment(parts[0])
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	if h.Alg != Algorithm {
		return fmt.Errorf("%w: unexpected alg %q", ErrInvalidToken, h.Alg)
	}

	sig, err := v.parser.DecodeSegment(parts[2])
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	if err := jwt.SigningMethodES256.Verify(parts[0]+"."+parts[1], sig, v.key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	payload, err := v.parser.DecodeSegment(parts[1])
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}
	if string(payload) != v.expected {
		return ErrPayloadMismatch
	}
	return nil
}

func decodePEM(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(encoded, "-----BEGIN") {
		return []byte(encoded), nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url: %v", ErrInvalidKey, err)
	}
	return decoded, nil
}
