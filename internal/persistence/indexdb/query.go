package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"mobtransit.ai/internal/sim/world"
)

// EventFilter narrows RecentEvents. Zero values match everything.
type EventFilter struct {
	Kind     string
	ActorID  string
	Node     *[3]int
	FromTick uint64
	Limit    int
}

type SnapshotInfo struct {
	Tick     uint64 `json:"tick"`
	Path     string `json:"path"`
	WorldID  string `json:"world_id"`
	Seed     int64  `json:"seed"`
	Actors   int    `json:"actors"`
	Markers  int    `json:"markers"`
	Inputs   int    `json:"inputs"`
	Outputs  int    `json:"outputs"`
	Buffered int    `json:"buffered"`
	Pending  int    `json:"pending"`
	Digest   string `json:"digest"`
}

// RecentEvents returns matching transit events, newest first.
func (s *SQLiteIndex) RecentEvents(ctx context.Context, f EventFilter) ([]world.TransitLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Node != nil {
		where = append(where, "node_x = ? AND node_y = ? AND node_z = ?")
		args = append(args, f.Node[0], f.Node[1], f.Node[2])
	}
	if f.FromTick > 0 {
		where = append(where, "tick >= ?")
		args = append(args, int64(f.FromTick))
	}
	limit := f.Limit
	if limit <= 0 || limit > 10000 {
		limit = 100
	}

	q := "SELECT raw_json FROM transit_events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tick DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.TransitLogEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e world.TransitLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventCounts returns the number of indexed events per kind.
func (s *SQLiteIndex) EventCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM transit_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// Snapshots lists recorded snapshots, newest first.
func (s *SQLiteIndex) Snapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,path,world_id,seed,actors,markers,inputs,outputs,buffered,pending,digest FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotInfo
	for rows.Next() {
		var (
			si   SnapshotInfo
			tick int64
		)
		if err := rows.Scan(&tick, &si.Path, &si.WorldID, &si.Seed, &si.Actors, &si.Markers, &si.Inputs, &si.Outputs, &si.Buffered, &si.Pending, &si.Digest); err != nil {
			return nil, err
		}
		si.Tick = uint64(tick)
		out = append(out, si)
	}
	return out, rows.Err()
}

// CatalogDigest returns the stored digest for a catalog row.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}
