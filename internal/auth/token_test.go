package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const acceptance = "motortg:post:write"

func newPair(t *testing.T) (KeyPair, *ecdsa.PrivateKey) {
	t.Helper()
	pair, err := GenerateKeyPair()
	require.NoError(t, err)
	priv, err := ParsePrivateKey(pair.Private)
	require.NoError(t, err)
	return pair, priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pair, priv := newPair(t)

	token, err := Sign(priv, acceptance)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	verifier, err := NewVerifier(pair.Public, acceptance)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(token))
}

func TestNewVerifierAcceptsRawPEM(t *testing.T) {
	pair, priv := newPair(t)
	rawPEM, err := base64.RawURLEncoding.DecodeString(pair.Public)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(rawPEM), "-----BEGIN PUBLIC KEY-----"))

	verifier, err := NewVerifier(string(rawPEM), acceptance)
	require.NoError(t, err)

	token, err := Sign(priv, acceptance)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(token))
}

func TestNewVerifierRejectsBadKeys(t *testing.T) {
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&p384.PublicKey)
	require.NoError(t, err)
	wrongCurve := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	for name, key := range map[string]string{
		"empty":       "",
		"not base64":  "%%%",
		"not pem":     base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"wrong curve": wrongCurve,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewVerifier(key, acceptance)
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestVerifyRejections(t *testing.T) {
	pair, priv := newPair(t)
	_, otherPriv := newPair(t)

	verifier, err := NewVerifier(pair.Public, acceptance)
	require.NoError(t, err)

	good, err := Sign(priv, acceptance)
	require.NoError(t, err)
	wrongPayload, err := Sign(priv, "motortg:post:read")
	require.NoError(t, err)
	wrongKey, err := Sign(otherPriv, acceptance)
	require.NoError(t, err)

	parts := strings.Split(good, ".")
	tamperedPayload := parts[0] + "." + segment([]byte("motortg:post:admin")) + "." + parts[2]

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": acceptance}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrMissingToken},
		{name: "blank", token: "   ", want: ErrMissingToken},
		{name: "two segments", token: parts[0] + "." + parts[1], want: ErrInvalidToken},
		{name: "garbage header", token: "!!." + parts[1] + "." + parts[2], want: ErrInvalidToken},
		{name: "hmac token", token: hmac, want: ErrInvalidToken},
		{name: "other key", token: wrongKey, want: ErrInvalidToken},
		{name: "tampered payload", token: tamperedPayload, want: ErrInvalidToken},
		{name: "payload mismatch", token: wrongPayload, want: ErrPayloadMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, verifier.Verify(tc.token), tc.want)
		})
	}
}
