package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/signal-monitor/internal/api"
	"github.com/atmx/signal-monitor/internal/config"
	"github.com/atmx/signal-monitor/internal/logging"
	"github.com/atmx/signal-monitor/internal/scheduler"
	"github.com/atmx/signal-monitor/internal/store"
)

var (
	cfg       config.Config
	logCloser io.Closer

	rootCmd = &cobra.Command{
		Use:   "signal-monitor",
		Short: "Tracks trading signals against live prices and notifies communities",
		Long: `signal-monitor polls prices for every PENDING or OPEN trading signal,
moves signals through entry, targets, stop loss and cancellation, and
notifies the Telegram, Discord and WhatsApp channels of hiring communities.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logCloser = logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor scheduler and the ops HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the signals, communities and channels tables",
		RunE:  runMigrate,
	}

	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run exactly one monitor pass and print its report",
		RunE:  runTick,
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tickCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequireFeed(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := api.NewHub()
	a.monitor.WithBroadcaster(hub)

	sched := scheduler.New(cfg.CheckInterval, func(ctx context.Context) error {
		_, err := a.monitor.Tick(ctx)
		return err
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(api.NewHandler(a.signals, a.invalidator), hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("signal-monitor listening", "addr", srv.Addr, "interval", cfg.CheckInterval.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("shutting down signal-monitor...")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("signal-monitor stopped with error", "err", err)
		return err
	}
	slog.Info("signal-monitor stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}

func runTick(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequireFeed(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.monitor.Tick(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
