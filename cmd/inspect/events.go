package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mobtransit.ai/internal/persistence/indexdb"
	persistlog "mobtransit.ai/internal/persistence/log"
	"mobtransit.ai/internal/sim/world"
)

type eventsOptions struct {
	*rootOptions
	Database string
	Kind     string
	ActorID  string
	FromTick uint64
	Limit    int
	Counts   bool
}

func newEventsCommand(root *rootOptions) *cobra.Command {
	opts := &eventsOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query transit events from the index database",
		Long: `Query transit events recorded in the SQLite index.

Examples:
  inspect events --db ./data/worlds/world_1/index/world.sqlite
  inspect events --db world.sqlite --kind release --limit 20
  inspect events --db world.sqlite --counts --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the index database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter by event kind (CAPTURE, TRANSFER, TRANSFER_FAIL, RELEASE, DROP)")
	cmd.Flags().StringVar(&opts.ActorID, "actor", "", "filter by actor id")
	cmd.Flags().Uint64Var(&opts.FromTick, "from_tick", 0, "only events at or after this tick")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "max events to print")
	cmd.Flags().BoolVar(&opts.Counts, "counts", false, "print per-kind totals instead of events")
	return cmd
}

func runEvents(ctx context.Context, opts *eventsOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// OpenSQLite creates missing files; inspection must not.
	if _, err := os.Stat(opts.Database); err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	idx, err := indexdb.OpenSQLite(opts.Database)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	if opts.Counts {
		counts, err := idx.EventCounts(ctx)
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return writeJSON(out, counts)
		}
		for _, k := range []string{"CAPTURE", "TRANSFER", "TRANSFER_FAIL", "RELEASE", "DROP"} {
			fmt.Fprintf(out, "%-14s %d\n", k, counts[k])
		}
		return nil
	}

	evs, err := idx.RecentEvents(ctx, indexdb.EventFilter{
		Kind:     strings.ToUpper(opts.Kind),
		ActorID:  opts.ActorID,
		FromTick: opts.FromTick,
		Limit:    opts.Limit,
	})
	if err != nil {
		return err
	}
	return printEntries(out, opts.Format, evs)
}

func newLogCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <file.jsonl.zst>",
		Short: "Print a transit log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := persistlog.ReadTransitFile(args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), root.Format, evs)
		},
	}
}

func printEntries(out io.Writer, format string, evs []world.TransitLogEntry) error {
	if format == "json" {
		if evs == nil {
			evs = []world.TransitLogEntry{}
		}
		return writeJSON(out, evs)
	}
	if len(evs) == 0 {
		fmt.Fprintln(out, "no events")
		return nil
	}
	for _, e := range evs {
		line := fmt.Sprintf("tick=%-8d %-13s node=%v pos=%v", e.Tick, e.Kind, e.Node, e.Pos)
		if e.ActorType != "" {
			line += " " + e.ActorType
		}
		if e.ActorID != "" {
			line += " " + e.ActorID
		}
		if e.Backoff > 0 {
			line += fmt.Sprintf(" backoff=%d", e.Backoff)
		}
		if e.Reason != "" {
			line += fmt.Sprintf(" reason=%q", e.Reason)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
