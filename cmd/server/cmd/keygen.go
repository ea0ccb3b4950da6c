package cmd

import (
	"fmt"

	"github.com/MotorTG/motortg-crud/internal/auth"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ES256 key pair for the /post token gate",
		Long: `Generate a P-256 key pair and print both halves as base64url-encoded PEM.

Set AUTH_PUBLIC_KEY on the server to the public half. Keep the private half
with the writers; "server token" signs acceptance tokens with it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := auth.GenerateKeyPair()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public: %s\n", pair.Public)
			fmt.Fprintf(out, "private: %s\n", pair.Private)
			return nil
		},
	}
}
