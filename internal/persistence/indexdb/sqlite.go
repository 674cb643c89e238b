package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/tuning"
	"mobtransit.ai/internal/sim/world"
	"mobtransit.ai/internal/sim/world/feature/persistence/digest"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTransit  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTransit reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	transit  world.TransitLogEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick     uint64
	Path     string
	WorldID  string
	Seed     int64
	Actors   int
	Markers  int
	Inputs   int
	Outputs  int
	Buffered int
	Pending  int
	Digest   string
}

// Stats reports writer queue pressure. Drops happen when the tick loop
// outpaces the writer; the JSONL log stays complete.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTransitTotal  uint64 `json:"drop_transit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transit_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			world_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			node_x INTEGER NOT NULL,
			node_y INTEGER NOT NULL,
			node_z INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			actor_type TEXT,
			actor_id TEXT,
			backoff INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transit_kind_tick ON transit_events(kind, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_transit_node_tick ON transit_events(node_x, node_z, node_y, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_transit_actor_tick ON transit_events(actor_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			markers INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			outputs INTEGER NOT NULL,
			buffered INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			digest TEXT NOT NULL DEFAULT ''
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTransitTotal:  s.dropTransit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTransit(entry world.TransitLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTransit, transit: entry}:
	default:
		s.dropTransit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		WorldID: snap.Header.WorldID,
		Seed:    snap.Seed,
		Actors:  len(snap.Actors),
		Markers: len(snap.Markers),
		Inputs:  len(snap.Inputs),
		Outputs: len(snap.Outputs),
		Digest:  digest.StateDigest(snap),
	}
	for _, in := range snap.Inputs {
		r.Buffered += len(in.Tickets)
	}
	for _, out := range snap.Outputs {
		r.Pending += len(out.Pending)
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync blocks until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "actors.json")); err == nil && cats != nil {
			rows = append(rows, kv{name: "actors_defs", digest: cats.Actors.DefsDigest, json: b})
		}
	}
	if cats != nil {
		if b, _ := json.Marshal(cats.Actors.Palette); len(b) > 0 {
			rows = append(rows, kv{name: "actors_palette", digest: cats.Actors.PaletteDigest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTransit, _ := s.db.Prepare(`INSERT OR REPLACE INTO transit_events(tick,seq,world_id,kind,node_x,node_y,node_z,x,y,z,actor_type,actor_id,backoff,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,seed,actors,markers,inputs,outputs,buffered,pending,digest) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTransit != nil {
			_ = insertTransit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 500 * time.Millisecond

		lastTick uint64
		seq      int
	)
	// Resume sequencing after a restart that lands on an already indexed tick.
	_ = s.db.QueryRow(`SELECT tick, seq+1 FROM transit_events ORDER BY tick DESC, seq DESC LIMIT 1`).Scan(&lastTick, &seq)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	handle := func(r req) {
		if r.kind == reqSync {
			commit()
			close(r.done)
			return
		}
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqTransit:
			e := r.transit
			if e.Tick != lastTick {
				lastTick = e.Tick
				seq = 0
			}
			cur := seq
			seq++
			raw, _ := json.Marshal(e)
			if insertTransit != nil {
				if _, err := tx.Stmt(insertTransit).Exec(
					int64(e.Tick),
					cur,
					e.WorldID,
					e.Kind,
					e.Node[0], e.Node[1], e.Node[2],
					e.Pos[0], e.Pos[1], e.Pos[2],
					e.ActorType,
					e.ActorID,
					int64(e.Backoff),
					e.Reason,
					string(raw),
				); err != nil {
					rollback()
					return
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.WorldID,
					sn.Seed,
					sn.Actors,
					sn.Markers,
					sn.Inputs,
					sn.Outputs,
					sn.Buffered,
					sn.Pending,
					sn.Digest,
				); err != nil {
					rollback()
					return
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	// The ticker bounds how long an idle writer holds the only connection.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-ticker.C:
			flushIfNeeded()
		}
	}
}
