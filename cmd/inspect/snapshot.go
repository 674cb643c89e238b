package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/world/feature/persistence/digest"
)

type snapshotSource struct {
	DataDir string
	WorldID string
}

func (s *snapshotSource) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.DataDir, "data", "./data", "runtime data directory (used when no path is given)")
	cmd.Flags().StringVar(&s.WorldID, "world", "world_1", "world id (used when no path is given)")
}

// resolve returns args[0] or the latest snapshot of the selected world.
func (s *snapshotSource) resolve(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	dir := filepath.Join(s.DataDir, "worlds", s.WorldID, "snapshots")
	p := snapshot.Latest(dir)
	if p == "" {
		return "", fmt.Errorf("no snapshots in %s", dir)
	}
	return p, nil
}

type snapshotSummary struct {
	Path     string         `json:"path"`
	WorldID  string         `json:"world_id"`
	Tick     uint64         `json:"tick"`
	Seed     int64          `json:"seed"`
	TickRate int            `json:"tick_rate"`
	Actors   int            `json:"actors"`
	ByType   map[string]int `json:"actors_by_type"`
	Markers  int            `json:"markers"`
	Lured    int            `json:"lured"`
	Inputs   int            `json:"inputs"`
	Paired   int            `json:"paired_inputs"`
	Outputs  int            `json:"outputs"`
	Buffered int            `json:"buffered"`
	Pending  int            `json:"pending"`
	Captures uint64         `json:"captures"`
	Releases uint64         `json:"releases"`
	Digest   string         `json:"digest"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:     path,
		WorldID:  snap.Header.WorldID,
		Tick:     snap.Header.Tick,
		Seed:     snap.Seed,
		TickRate: snap.TickRate,
		Actors:   len(snap.Actors),
		ByType:   map[string]int{},
		Markers:  len(snap.Markers),
		Inputs:   len(snap.Inputs),
		Outputs:  len(snap.Outputs),
		Digest:   digest.StateDigest(snap),
	}
	for _, a := range snap.Actors {
		s.ByType[a.Type]++
	}
	for _, m := range snap.Markers {
		if m.LuredBy != nil {
			s.Lured++
		}
	}
	for _, in := range snap.Inputs {
		if in.PairedOutput != nil {
			s.Paired++
		}
		s.Buffered += len(in.Tickets)
	}
	for _, out := range snap.Outputs {
		s.Pending += len(out.Pending)
	}
	if m := snap.Metrics; m != nil {
		s.Captures = m.Captures
		s.Releases = m.Releases
	}
	return s
}

func newSnapshotCommand(root *rootOptions) *cobra.Command {
	src := &snapshotSource{}
	cmd := &cobra.Command{
		Use:   "snapshot [path]",
		Short: "Summarize a snapshot file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := src.resolve(args)
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			s := summarize(path, snap)
			if root.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot %s\n", s.Path)
			fmt.Fprintf(out, "  world=%s tick=%d seed=%d tick_rate=%d\n", s.WorldID, s.Tick, s.Seed, s.TickRate)
			fmt.Fprintf(out, "  actors=%d markers=%d lured=%d\n", s.Actors, s.Markers, s.Lured)
			types := make([]string, 0, len(s.ByType))
			for t := range s.ByType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Fprintf(out, "    %-14s %d\n", t, s.ByType[t])
			}
			fmt.Fprintf(out, "  inputs=%d paired=%d buffered=%d\n", s.Inputs, s.Paired, s.Buffered)
			fmt.Fprintf(out, "  outputs=%d pending=%d\n", s.Outputs, s.Pending)
			fmt.Fprintf(out, "  captures=%d releases=%d\n", s.Captures, s.Releases)
			fmt.Fprintf(out, "  digest=%s\n", s.Digest)
			return nil
		},
	}
	src.bind(cmd)
	return cmd
}

type ticketRow struct {
	Stage      string  `json:"stage"`
	Node       [3]int  `json:"node"`
	ActorType  string  `json:"actor_type"`
	CapturedAt uint64  `json:"captured_at"`
	ReadyAt    uint64  `json:"ready_at"`
	ETA        uint64  `json:"eta"`
	Dest       *[3]int `json:"dest,omitempty"`
	DebugID    string  `json:"debug_id,omitempty"`
}

func ticketRows(snap snapshot.SnapshotV1) []ticketRow {
	var rows []ticketRow
	add := func(stage string, node [3]int, ts []snapshot.TicketV1) {
		for _, t := range ts {
			r := ticketRow{Stage: stage, Node: node, ActorType: t.ActorType, CapturedAt: t.CapturedAt, ReadyAt: t.ReadyAt, DebugID: t.DebugID}
			if t.ReadyAt > snap.Header.Tick {
				r.ETA = t.ReadyAt - snap.Header.Tick
			}
			if t.Dest != nil {
				d := t.Dest.Pos
				r.Dest = &d
			}
			rows = append(rows, r)
		}
	}
	for _, in := range snap.Inputs {
		add("buffered", in.Pos, in.Tickets)
	}
	for _, out := range snap.Outputs {
		add("pending", out.Pos, out.Pending)
	}
	return rows
}

func newTicketsCommand(root *rootOptions) *cobra.Command {
	src := &snapshotSource{}
	cmd := &cobra.Command{
		Use:   "tickets [path]",
		Short: "List tickets held by inputs and outputs in a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := src.resolve(args)
			if err != nil {
				return err
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			rows := ticketRows(snap)
			if root.Format == "json" {
				if rows == nil {
					rows = []ticketRow{}
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no tickets")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%-8s node=%v %-10s captured=%d ready=%d (eta %d) %s\n", r.Stage, r.Node, r.ActorType, r.CapturedAt, r.ReadyAt, r.ETA, r.DebugID)
			}
			return nil
		},
	}
	src.bind(cmd)
	return cmd
}
