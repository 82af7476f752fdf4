package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/dinetrace/internal/config"
	"github.com/gyaneshwarpardhi/dinetrace/internal/logging"
)

// app is the state shared by subcommands once the root has loaded config.
type app struct {
	cfgFile string
	loader  *config.Loader
	level   *logging.Level
	logger  *slog.Logger
}

func (a *app) config() *config.Config { return a.loader.Config() }

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dinetrace",
		Short: "Restaurant app user-activity telemetry",
		Long: `dinetrace collects user-activity telemetry from the restaurant app.

Run the reference ingestion collector, replay synthetic browsing sessions
through the client pipeline, or inspect the persisted client queue.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./dinetrace.yaml if present)")

	root.AddCommand(newCollectorCmd(a), newEmitCmd(a), newQueueCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	// Logs go to stderr until the config says otherwise.
	a.level = logging.NewLevel(slog.LevelInfo)
	a.logger = logging.New(cmd.ErrOrStderr(), "text", a.level)

	loader, err := config.NewLoader(a.cfgFile, a.logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.loader = loader

	cfg := loader.Config()
	a.level.SetBase(logging.ParseLevel(cfg.Logging.Level))
	a.level.SetDebug(cfg.Telemetry.Debug)
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.Logging.Format, a.level)
	slog.SetDefault(a.logger)
	return nil
}
