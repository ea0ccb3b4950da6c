package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MotorTG/motortg-crud/internal/auth"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/stretchr/testify/require"
)

func TestKeygenThenToken(t *testing.T) {
	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"keygen"})
	require.NoError(t, root.Execute())

	var public, private string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		switch {
		case strings.HasPrefix(line, "public: "):
			public = strings.TrimPrefix(line, "public: ")
		case strings.HasPrefix(line, "private: "):
			private = strings.TrimPrefix(line, "private: ")
		}
	}
	require.NotEmpty(t, public)
	require.NotEmpty(t, private)

	root = newRootCommand()
	buf.Reset()
	root.SetOut(buf)
	root.SetArgs([]string{"token", "--private-key", private})
	require.NoError(t, root.Execute())

	verifier, err := auth.NewVerifier(public, config.DefaultTokenPayload)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(strings.TrimSpace(buf.String())))
}

func TestTokenReadsPrivateKeyFromEnv(t *testing.T) {
	pair, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	t.Setenv("AUTH_PRIVATE_KEY", pair.Private)

	token, err := signToken(&tokenOptions{payload: "custom:payload"})
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(pair.Public, "custom:payload")
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(token))
}

func TestTokenRequiresPrivateKey(t *testing.T) {
	t.Setenv("AUTH_PRIVATE_KEY", "")

	_, err := signToken(&tokenOptions{payload: config.DefaultTokenPayload})
	require.ErrorContains(t, err, "no private key")

	_, err = signToken(&tokenOptions{privateKey: "bm90LWEta2V5", payload: config.DefaultTokenPayload})
	require.ErrorIs(t, err, auth.ErrInvalidKey)
}
