package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/dinetrace/internal/collector"
	"github.com/gyaneshwarpardhi/dinetrace/internal/config"
	"github.com/gyaneshwarpardhi/dinetrace/internal/logging"
)

func newCollectorCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Serve the telemetry ingestion endpoint",
		Long: `Serves POST /v1/telemetry/events and stores accepted events in SQLite.
Also exposes /healthz, /readyz and Prometheus /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runCollector(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides collector.addr)")
	return cmd
}

func (a *app) runCollector(ctx context.Context, addr string) error {
	cfg := a.config()
	if addr == "" {
		addr = cfg.Collector.Addr
	}

	store, err := collector.OpenStore(cfg.Collector.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Only log verbosity is live; listener and limits need a restart.
	a.loader.OnChange(func(c *config.Config) {
		a.level.SetBase(logging.ParseLevel(c.Logging.Level))
		a.level.SetDebug(c.Telemetry.Debug)
	})
	stopWatch, err := a.loader.Watch()
	if err != nil {
		a.logger.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	srv := &http.Server{
		Addr: addr,
		Handler: collector.New(collector.Options{
			Store:        store,
			Token:        cfg.Collector.Token,
			RateLimit:    cfg.Collector.RateLimit,
			Burst:        cfg.Collector.Burst,
			MaxBodyBytes: cfg.Collector.MaxBodyBytes,
			Logger:       a.logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("collector starting", "addr", addr, "database", cfg.Collector.DatabasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("collector server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("collector shutdown: %w", err)
	}
	a.logger.Info("goodbye")
	return nil
}
