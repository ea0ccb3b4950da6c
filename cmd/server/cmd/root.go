package cmd

import (
	"fmt"
	"os"

	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel  string
	logFormat string
}

// newRootCommand assembles the command tree. Running it without a
// subcommand starts the server.
func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	serve := newServeCommand(opts)

	root := &cobra.Command{
		Use:   "server",
		Short: "MotorTG CRUD server - real-time post storage",
		Long: `MotorTG CRUD server stores channel posts in PostgreSQL and serves them
over a namespaced WebSocket event channel.

The server supports:
- Public post:read and post:list on the "/" namespace
- Token-gated post:create, post:update and post:delete on "/post"
- Broadcasts of every write to all peers, across instances via LISTEN/NOTIFY
- A TTL page cache in front of list reads`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.RunE(cmd, args)
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	// serve's flags are also accepted on the bare root command.
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(
		serve,
		newMigrateCommand(opts),
		newKeygenCommand(),
		newTokenCommand(),
		newVersionCommand(),
		newHealthcheckCommand(),
	)
	return root
}

// Execute runs the command tree. Called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the persistent flag overrides.
func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	return cfg, nil
}
