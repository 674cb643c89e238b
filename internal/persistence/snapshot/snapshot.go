package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	TickRate int   `json:"tick_rate_hz"`

	// Operational parameters (captured so a resume keeps the same pipeline behavior).
	SnapshotEveryTicks int        `json:"snapshot_every_ticks,omitempty"`
	LureStepEveryTicks int        `json:"lure_step_every_ticks,omitempty"`
	Transit            TransitV1  `json:"transit"`
	Actors             []ActorV1  `json:"actors"`
	Markers            []MarkerV1 `json:"markers,omitempty"`
	Inputs             []InputV1  `json:"inputs"`
	Outputs            []OutputV1 `json:"outputs"`
	Counters           CountersV1 `json:"counters"`
	Metrics            *MetricsV1 `json:"metrics,omitempty"`
}

type TransitV1 struct {
	LureRadius           int      `json:"lure_radius"`
	CaptureRadius        int      `json:"capture_radius"`
	LureEveryTicks       int      `json:"lure_every_ticks"`
	CaptureEveryTicks    int      `json:"capture_every_ticks"`
	TransferEveryTicks   int      `json:"transfer_every_ticks"`
	ReleaseEveryTicks    int      `json:"release_every_ticks"`
	ChompTicks           int      `json:"chomp_ticks"`
	MinDelayTicks        uint64   `json:"min_delay_ticks"`
	MaxDelayTicks        uint64   `json:"max_delay_ticks"`
	BufferSize           int      `json:"buffer_size"`
	BackoffBaseTicks     uint64   `json:"backoff_base_ticks"`
	BackoffCapTicks      uint64   `json:"backoff_cap_ticks"`
	ReleaseImmunityTicks uint64   `json:"release_immunity_ticks"`
	MaxInputs            int      `json:"max_inputs"`
	AllowUnbonded        bool     `json:"allow_unbonded_capture,omitempty"`
	ExcludedActorTypes   []string `json:"excluded_actor_types,omitempty"`
}

type CountersV1 struct {
	NextActor uint64 `json:"next_actor"`
}

type MetricsV1 struct {
	Captures      uint64 `json:"captures"`
	Transfers     uint64 `json:"transfers"`
	TransferFails uint64 `json:"transfer_fails"`
	Releases      uint64 `json:"releases"`
	Drops         uint64 `json:"drops"`
}

type ActorV1 struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Pos   [3]int `json:"pos"`
	State []byte `json:"state"`
}

type MarkerV1 struct {
	ActorID     string     `json:"actor_id"`
	LuredBy     *NodeRefV1 `json:"lured_by,omitempty"`
	ImmuneUntil uint64     `json:"immune_until,omitempty"`
}

type NodeRefV1 struct {
	WorldID string `json:"world_id"`
	Pos     [3]int `json:"pos"`
}

type TicketV1 struct {
	ActorType  string     `json:"actor_type"`
	State      []byte     `json:"state"`
	CapturedAt uint64     `json:"captured_at"`
	ReadyAt    uint64     `json:"ready_at"`
	Dest       *NodeRefV1 `json:"dest,omitempty"`
	DebugID    string     `json:"debug_id,omitempty"`
}

type InputV1 struct {
	Pos              [3]int     `json:"pos"`
	PairedOutput     *NodeRefV1 `json:"paired_output,omitempty"`
	Visual           string     `json:"visual"`
	ChompLeft        int        `json:"chomp_left,omitempty"`
	BackoffCurrent   uint64     `json:"backoff_current,omitempty"`
	BackoffRemaining uint64     `json:"backoff_remaining,omitempty"`
	Tickets          []TicketV1 `json:"tickets"`
	ClosestTarget    *[3]int    `json:"closest_target,omitempty"`
}

type OutputV1 struct {
	Pos     [3]int      `json:"pos"`
	Inputs  []NodeRefV1 `json:"inputs"`
	Pending []TicketV1  `json:"pending"`
}

// WriteSnapshot writes snap to a temp file in the same directory and renames it
// into place, so path never holds a partial snapshot.
func WriteSnapshot(path string, snap SnapshotV1) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err := encodeSnapshot(f, snap); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return nil
}

func encodeSnapshot(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// gob carries the header too; the JSON line is for ReadHeader.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func FileName(tick uint64) string { return fmt.Sprintf("%d.snap.zst", tick) }

// Latest returns the highest-tick snapshot in dir, or "" when none exists.
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
