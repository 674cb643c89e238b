package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobtransit.ai/internal/persistence/indexdb"
	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/protocol"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/tuning"
	"mobtransit.ai/internal/sim/world"
	"mobtransit.ai/internal/transport/ws"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

type serverFixture struct {
	w        *world.World
	idx      *indexdb.SQLiteIndex
	worldDir string
	url      string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	require.NoError(t, err)
	tune, err := tuning.Load(filepath.Join(root, "configs", "tuning.yaml"))
	require.NoError(t, err)
	tune.TickRateHz = 200

	w, err := world.New(world.ConfigFromTuning("world_http", 9, tune, cats), cats, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.NoError(t, seedDemoWorld(w))

	worldDir := t.TempDir()
	idx, err := indexdb.OpenSQLite(indexPath(worldDir))
	require.NoError(t, err)
	w.SetTransitLogger(multiTransitLogger{b: idx})

	ctx, cancel := context.WithCancel(context.Background())
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	logger := log.New(io.Discard, "", 0)
	wait := runBackground(ctx, w, worldDir, snapCh, idx, logger)

	mux := http.NewServeMux()
	registerHandlers(mux, w, idx, ws.NewServer(w, logger), logger)
	hs := httptest.NewServer(mux)
	t.Cleanup(func() {
		hs.Close()
		cancel()
		wait()
		_ = idx.Close()
	})
	return &serverFixture{w: w, idx: idx, worldDir: worldDir, url: hs.URL}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newServerFixture(t)

	resp, err := http.Get(f.url + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "ok", string(b))

	require.Eventually(t, func() bool { return f.w.Metrics().Tick > 0 }, 5*time.Second, 10*time.Millisecond)
	resp, err = http.Get(f.url + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(b)
	require.Contains(t, body, `mobtransit_nodes{world="world_http",kind="input"} 1`)
	require.Contains(t, body, `mobtransit_nodes{world="world_http",kind="output"} 1`)
	require.Contains(t, body, "mobtransit_index_queue_depth")
}

func TestServer_AdminNodes(t *testing.T) {
	f := newServerFixture(t)

	var got struct {
		WorldID string                `json:"world_id"`
		Nodes   []protocol.NodeStatus `json:"nodes"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, f.url+"/admin/v1/nodes", &got))
	require.Equal(t, "world_http", got.WorldID)
	require.Len(t, got.Nodes, 2)
	kinds := map[string]protocol.NodeStatus{}
	for _, n := range got.Nodes {
		kinds[n.Kind] = n
	}
	require.True(t, kinds[protocol.NodeKindInput].Paired)
	require.Len(t, kinds[protocol.NodeKindOutput].PairedInputs, 1)
}

func TestServer_AdminSnapshotIsWrittenAndIndexed(t *testing.T) {
	f := newServerFixture(t)
	require.Eventually(t, func() bool { return f.w.CurrentTick() > 2 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Post(f.url+"/admin/v1/snapshot", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	var out struct {
		OK   bool   `json:"ok"`
		Tick uint64 `json:"tick"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.True(t, out.OK)

	path := filepath.Join(f.worldDir, "snapshots", snapshot.FileName(out.Tick))
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	snap, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, "world_http", snap.Header.WorldID)
	require.Len(t, snap.Inputs, 1)

	require.Eventually(t, func() bool {
		_ = f.idx.Sync(context.Background())
		infos, err := f.idx.Snapshots(context.Background(), 5)
		return err == nil && len(infos) == 1 && infos[0].Tick == out.Tick
	}, 5*time.Second, 20*time.Millisecond)

	resp, err = http.Get(f.url + "/admin/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_AdminEventsFromIndex(t *testing.T) {
	f := newServerFixture(t)

	// The demo herd walks into the input within a few hundred ticks.
	require.Eventually(t, func() bool { return f.w.Metrics().Captures > 0 }, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, f.idx.Sync(context.Background()))

	var got struct {
		OK     bool                    `json:"ok"`
		Events []world.TransitLogEntry `json:"events"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, f.url+"/admin/v1/events?kind=capture&limit=10", &got))
	require.True(t, got.OK)
	require.NotEmpty(t, got.Events)
	for _, e := range got.Events {
		require.Equal(t, "CAPTURE", e.Kind)
		require.Equal(t, "world_http", e.WorldID)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.3:1234":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MT_TEST_FLAG", "yes")
	if !envBool("MT_TEST_FLAG", false) {
		t.Fatalf("yes should be true")
	}
	t.Setenv("MT_TEST_FLAG", "off")
	if envBool("MT_TEST_FLAG", true) {
		t.Fatalf("off should be false")
	}
	t.Setenv("MT_TEST_FLAG", "")
	if !envBool("MT_TEST_FLAG", true) {
		t.Fatalf("empty should use default")
	}
}

type closeTrackingLogger struct {
	closed     atomic.Bool
	writes     atomic.Int64
	afterClose atomic.Int64
}

func (l *closeTrackingLogger) WriteTransit(world.TransitLogEntry) error {
	l.writes.Add(1)
	if l.closed.Load() {
		l.afterClose.Add(1)
	}
	return nil
}

func TestRunBackground_WaitJoinsWorldBeforeSinksClose(t *testing.T) {
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	require.NoError(t, err)
	tune, err := tuning.Load(filepath.Join(root, "configs", "tuning.yaml"))
	require.NoError(t, err)
	tune.TickRateHz = 500
	tune.Input.MinDelayTicks = 1
	tune.Input.MaxDelayTicks = 2

	w, err := world.New(world.ConfigFromTuning("world_bg", 3, tune, cats), cats, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.NoError(t, seedDemoWorld(w))
	sink := &closeTrackingLogger{}
	w.SetTransitLogger(sink)

	ctx, cancel := context.WithCancel(context.Background())
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	wait := runBackground(ctx, w, t.TempDir(), snapCh, nil, log.New(io.Discard, "", 0))

	require.Eventually(t, func() bool { return sink.writes.Load() > 0 }, 10*time.Second, 5*time.Millisecond)
	cancel()
	wait()
	sink.closed.Store(true)

	tick := w.CurrentTick()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, tick, w.CurrentTick(), "world kept stepping after wait returned")
	require.Zero(t, sink.afterClose.Load())
}
