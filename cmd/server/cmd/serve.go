package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MotorTG/motortg-crud/internal/api"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/MotorTG/motortg-crud/internal/storage/postgres"
	"github.com/MotorTG/motortg-crud/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host string
	port int
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MotorTG CRUD server",
		Long: `Start the HTTP server and accept WebSocket peers on /socket.

The server will:
- Load configuration from environment variables
- Apply pending migrations when DATABASE_AUTO_MIGRATE is set
- Fan broadcasts out to other instances when REALTIME_NOTIFY_CHANNEL is set
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 3000)")
	return cmd
}

func runServer(ctx context.Context, global *globalOptions, opts *serveOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting motortg-crud")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath(cfg)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database.URL, cfg.Database.MaxConnections)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	store, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Posts:     posts.NewCachedRepository(store.Posts(), posts.NewPageCache(cfg.Cache.TTL)),
		DB:        pool,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}

	var adapter *postgres.NotifyAdapter
	if cfg.Realtime.NotifyChannel != "" {
		adapter = postgres.NewNotifyAdapter(pool, cfg.Realtime.NotifyChannel, uuid.NewString(), cfg.Realtime.AttachmentRetention, logger)
		deps.Adapter = adapter
	} else {
		logger.Warn().Msg("REALTIME_NOTIFY_CHANNEL is empty; broadcasts stay on this instance")
	}

	router := api.NewRouter(cfg, deps, logger)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			logger.Warn().Str("addr", addr).Msg("port already in use")
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("open for business")

	server := &http.Server{
		Handler:           router.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	collector := metrics.NewDBCollector(pool)
	g.Go(func() error {
		collector.Start(gctx, 15*time.Second)
		return nil
	})

	if adapter != nil {
		g.Go(func() error {
			adapter.Run(gctx, router.Deliver)
			return nil
		})
		g.Go(func() error {
			adapter.RunPurge(gctx, cmp.Or(cfg.Realtime.AttachmentRetention, 30*time.Second))
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return gracefulShutdown(server, router, collector, logger)
	})

	return g.Wait()
}

func gracefulShutdown(server *http.Server, router *api.Router, collector *metrics.DBCollector, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	collector.Stop()
	// Upgraded sockets are hijacked, so Shutdown does not wait for them.
	router.Close()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}

func migrationsPath(cfg config.Config) string {
	return cmp.Or(cfg.Database.MigrationsPath, postgres.DefaultMigrationsPath)
}
