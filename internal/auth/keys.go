package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPair holds base64url-encoded PEM blocks: SPKI for the public half and
// PKCS#8 for the private half.
type KeyPair struct {
	Public  string
	Private string
}

func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}

	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}

	return KeyPair{
		Public:  encodeBlock("PUBLIC KEY", spki),
		Private: encodeBlock("PRIVATE KEY", pkcs8),
	}, nil
}

// ParsePrivateKey is the signing counterpart of NewVerifier's key decoding.
func ParsePrivateKey(encoded string) (*ecdsa.PrivateKey, error) {
	pemBytes, err := decodePEM(encoded)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Sign produces the compact ES256 token for payload.
func Sign(key *ecdsa.PrivateKey, payload string) (string, error) {
	rawHeader, err := json.Marshal(header{Alg: Algorithm})
	if err != nil {
		return "", err
	}
	signingString := segment(rawHeader) + "." + segment([]byte(payload))

	sig, err := jwt.SigningMethodES256.Sign(signingString, key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signingString + "." + segment(sig), nil
}

func encodeBlock(kind string, der []byte) string {
	return base64.RawURLEncoding.EncodeToString(pem.EncodeToMemory(&pem.Block{Type: kind, Bytes: der}))
}

func segment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
