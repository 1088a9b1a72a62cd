package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fleetsim/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	db    string
	kind  string
	since time.Duration
	tail  int
}

// newLogsCmd creates the "fleetsim logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [unit-id]",
		Short: "Query the event log",
		Long:  "Displays recorded command and telemetry events.\nOptionally filter by unit-id, event kind, and age.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var unitID string
			if len(args) == 1 {
				unitID = args[0]
			}

			store, err := eventlog.Open(cfg.db)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() { _ = store.Close() }()

			opts := eventlog.QueryOpts{
				UnitID: unitID,
				Kind:   cfg.kind,
				Limit:  cfg.tail,
			}
			if cfg.since > 0 {
				after := time.Now().Add(-cfg.since)
				opts.After = &after
			}

			events, err := store.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(w, "no events found")
				return nil
			}

			// Query returns newest first; print oldest first.
			for i := len(events) - 1; i >= 0; i-- {
				formatEvent(w, events[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.db, "db", "fleetsim.db", "path to the SQLite event log")
	cmd.Flags().StringVar(&cfg.kind, "kind", "", "filter by event kind (command_sent, command_completed, command_failed, telemetry)")
	cmd.Flags().DurationVar(&cfg.since, "since", 0, "only show events newer than this age, e.g. 10m")
	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	return cmd
}

// formatEvent writes a single event in a human-readable format.
func formatEvent(w io.Writer, evt eventlog.Event) {
	fmt.Fprintf(w, "%s | %-12s | %-18s | %-12s | %s\n",
		evt.CreatedAt.Format(time.RFC3339), evt.UnitID, evt.Kind, evt.CommandID, evt.Detail)
}
