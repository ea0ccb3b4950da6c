package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/MotorTG/motortg-crud/internal/auth"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	privateKey string
	payload    string
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an acceptance token for the /post namespace",
		Long: `Sign the acceptance payload with an ES256 private key from "server keygen".

The private key comes from --private-key or AUTH_PRIVATE_KEY. Writers send
the printed token as auth.token when connecting to /post.

Examples:
  server token --private-key "$AUTH_PRIVATE_KEY"
  server token --payload custom:payload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := signToken(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.privateKey, "private-key", "", "base64url-encoded PKCS#8 PEM private key (default: $AUTH_PRIVATE_KEY)")
	cmd.Flags().StringVar(&opts.payload, "payload", config.DefaultTokenPayload, "payload the server expects (AUTH_TOKEN_PAYLOAD)")
	return cmd
}

func signToken(opts *tokenOptions) (string, error) {
	encoded := opts.privateKey
	if encoded == "" {
		encoded = os.Getenv("AUTH_PRIVATE_KEY")
	}
	if encoded == "" {
		return "", errors.New("no private key: pass --private-key or set AUTH_PRIVATE_KEY")
	}

	key, err := auth.ParsePrivateKey(encoded)
	if err != nil {
		return "", err
	}
	return auth.Sign(key, opts.payload)
}
