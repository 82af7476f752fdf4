package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
	"github.com/gyaneshwarpardhi/dinetrace/internal/seed"
	"github.com/gyaneshwarpardhi/dinetrace/internal/telemetry"
)

type emitOptions struct {
	sessions int
	pages    int
	seed     int64
}

func newEmitCmd(a *app) *cobra.Command {
	var opts emitOptions
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Replay synthetic browsing sessions through the client pipeline",
		Long: `Generates fake browsing sessions and feeds them to a telemetry client
configured from the config file. Think time runs on a simulated clock, so
periodic flushes and retries fire without waiting in real time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runEmit(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.sessions, "sessions", 1, "number of sessions to replay")
	cmd.Flags().IntVar(&opts.pages, "pages", 5, "page visits per session")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (0 picks one from the clock)")
	return cmd
}

func (a *app) runEmit(cmd *cobra.Command, opts emitOptions) error {
	ctx := cmd.Context()
	cfg := a.config()
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}

	// One durable store across sessions keeps the anonymous id stable.
	durable, err := telemetry.OpenStore(ctx, cfg.Storage, a.logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer durable.Close()

	clock := scheduler.NewFake(time.Now())
	gen := seed.New(opts.seed)
	var sent, left int
	for i := 0; i < opts.sessions; i++ {
		client, err := telemetry.New(ctx, telemetry.Options{
			Config:           cfg,
			Logger:           a.logger,
			Level:            a.level,
			Scheduler:        clock,
			Durable:          durable,
			InitiallyVisible: true,
		})
		if err != nil {
			return err
		}
		client.Start()
		seed.Play(gen.Session(opts.pages), client, clock.Advance)
		report, err := client.Shutdown(ctx)
		if err != nil {
			return err
		}
		sent += report.Sent
		left = client.QueueSize()
		a.logger.Debug("session replayed", "session", i+1, "session_id", client.SessionID(), "sent", report.Sent)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sessions: %d\nsent in final flushes: %d\nleft in queue: %d\n", opts.sessions, sent, left)
	return nil
}
