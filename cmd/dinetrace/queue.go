package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/identity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/queue"
	"github.com/gyaneshwarpardhi/dinetrace/internal/telemetry"
)

func newQueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the persisted client queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.config()
			store, err := telemetry.OpenStore(cmd.Context(), cfg.Storage, a.logger)
			if err != nil {
				return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
			}
			defer store.Close()

			q := queue.New(store, queue.Options{MaxSize: cfg.Telemetry.MaxQueueSize})
			anon, ok, err := store.Get(cmd.Context(), identity.AnonymousKey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "storage: %s\n", cfg.Storage.Driver)
			if ok {
				fmt.Fprintf(out, "anonymous id: %s\n", anon)
			} else {
				fmt.Fprintln(out, "anonymous id: (none)")
			}
			fmt.Fprintf(out, "queued events: %d / %d\n", q.Size(), q.Capacity())

			counts := map[event.Name]int{}
			for _, ev := range q.Events() {
				counts[ev.Name]++
			}
			names := make([]string, 0, len(counts))
			for n := range counts {
				names = append(names, string(n))
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(out, "  %-28s %d\n", n, counts[event.Name(n)])
			}
			return nil
		},
	}
}
