package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aridsondez/sqs-lite-mem/internal/api"
	"github.com/aridsondez/sqs-lite-mem/internal/catalog"
	"github.com/aridsondez/sqs-lite-mem/internal/catalog/postgres"
	"github.com/aridsondez/sqs-lite-mem/internal/catalog/sqlite"
	"github.com/aridsondez/sqs-lite-mem/internal/config"
	"github.com/aridsondez/sqs-lite-mem/internal/logging"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store/memory"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store/sqsproxy"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sqs-lite",
		Short:        "In-memory SQS-style queue server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = os.Getenv("CONFIG_FILE")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.New(cfg.LogLevel, os.Stderr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.Flags().Int("port", 0, "HTTP listen port (overrides PORT)")
	cmd.Flags().String("log-level", "", "trace|debug|info|warn|error (overrides LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := bootstrapQueues(ctx, st, cfg.Queues, logger); err != nil {
		return err
	}

	if c, ok := st.(prometheus.Collector); ok {
		if err := prometheus.Register(c); err != nil {
			return fmt.Errorf("register queue collector: %w", err)
		}
		defer prometheus.Unregister(c)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := api.NewServer(addr, st,
		api.WithLogger(logging.Component(logger, "http")),
		api.WithTimeout(cfg.RequestTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildStore wires the configured backend. The returned func releases it.
func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.StoreBackend == config.BackendSQS {
		client, err := sqsproxy.NewClient(ctx, cfg.AWSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return sqsproxy.New(client, sqsproxy.WithLogger(logging.Component(logger, "sqsproxy"))), func() {}, nil
	}

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []memory.Option{
		memory.WithLogger(logging.Component(logger, "store")),
		memory.WithRefreshInterval(cfg.SweepInterval),
	}
	if cat != nil {
		opts = append(opts, memory.WithCatalog(cat))
	}
	st := memory.New(opts...)
	closeFn := func() {
		st.Close()
		if cat != nil {
			if err := cat.Close(); err != nil {
				logger.Error().Err(err).Msg("close catalog")
			}
		}
	}
	if err := st.Load(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return st, closeFn, nil
}

func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, error) {
	switch cfg.CatalogDriver {
	case config.CatalogSQLite:
		return sqlite.Open(cfg.CatalogPath)
	case config.CatalogPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectionTimeout)
		defer cancel()
		return postgres.Connect(connectCtx, cfg.DatabaseURL)
	default:
		return nil, nil
	}
}

// bootstrapQueues creates configured queues that do not exist yet.
func bootstrapQueues(ctx context.Context, st store.Store, queues []config.QueueConfig, logger zerolog.Logger) error {
	for _, q := range queues {
		err := st.CreateQueue(ctx, q.Name, q.Attributes)
		switch {
		case err == nil:
			logger.Info().Str("queue", q.Name).Msg("bootstrapped queue")
		case errors.Is(err, store.ErrQueueAlreadyExists):
		default:
			return fmt.Errorf("bootstrap queue %s: %w", q.Name, err)
		}
	}
	return nil
}
