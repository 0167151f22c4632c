package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/config"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/handlers"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/jobs"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/log"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/queue"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/server"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/tasks"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

func main() {
	c := &cobra.Command{
		Use:           "lumen",
		Short:         "Image storage and caching engine",
		Version:       fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(serveCmd, workerCmd, sweepCmd, healthCmd)

	if err := c.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ops and media HTTP server with background jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		logger := a.logger

		config.Watch(a.viper, func(level string) {
			logger.Info().Str("level", log.SetLevel(level).String()).Msg("log level reloaded")
		})

		scheduler := jobs.NewScheduler(a.store, a.store.Usage(), a.monitor, jobs.Intervals{
			Eviction:     a.cfg.Eviction.Interval,
			UsageRefresh: a.cfg.Storage.UsageRefresh,
			Metrics:      a.cfg.Monitor.Interval,
		}, logger)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}

		handlerSet := handlers.NewHandlerSet(logger, handlers.Deps{
			Environment: a.cfg.Environment,
			BaseURL:     a.cfg.Storage.BaseURL,
			Variants:    a.photos,
			Storage:     a.store,
			Cache:       a.cache,
			Monitor:     a.monitor,
			Signer:      a.signer,
		})
		httpServer := server.NewHTTPServer(a.cfg, logger, handlerSet, a.monitor)

		errCh := make(chan error, 1)
		go func() {
			errCh <- httpServer.Start()
		}()

		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("http server failed")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}

		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("background jobs did not stop in time")
		}

		logger.Info().Msg("server exited cleanly")
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the cache warm-up queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		rc, ok := a.cache.(*cache.RedisCache)
		if !ok {
			return errors.New("worker requires a reachable redis")
		}

		consumer := queue.NewConsumer(
			rc.Client(),
			a.cfg.Redis.Stream,
			a.cfg.Redis.Group,
			a.cfg.Redis.Consumer,
			time.Minute,
			a.logger,
			tasks.NewProcessor(a.store, a.cache, a.logger),
		)

		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		a.logger.Info().Msg("worker exited cleanly")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict expired hot cache files once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.store.EvictExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("evicted %d files, freed %s, pruned %d directories in %s\n",
			report.Files, humanize.IBytes(uint64(report.BytesFreed)), report.DirsPruned, report.Duration.Round(time.Millisecond))
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the storage health check and exit non-zero when unhealthy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		status := a.store.HealthCheck(cmd.Context())
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return status.Err()
	},
}
