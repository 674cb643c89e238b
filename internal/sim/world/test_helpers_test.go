package world

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/protocol"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/world/feature/transit/backoff"
	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:                 "world_test",
		TickRateHz:         100,
		Seed:               1,
		LureStepEveryTicks: 1,
		Transit: runtime.Params{
			LureRadius:           8,
			CaptureRadius:        2,
			LureEveryTicks:       1,
			CaptureEveryTicks:    1,
			TransferEveryTicks:   1,
			ReleaseEveryTicks:    1,
			ChompTicks:           0,
			MinDelayTicks:        5,
			MaxDelayTicks:        5,
			BufferSize:           4,
			Backoff:              backoff.Policy{Base: 3, Cap: 12},
			ReleaseImmunityTicks: 10,
			MaxInputs:            2,
		},
	}
}

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	require.NoError(t, err)
	return cats
}

func newTestWorld(t *testing.T, mutate func(*WorldConfig)) *World {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := New(cfg, testCatalogs(t), nil)
	require.NoError(t, err)
	return w
}

func v(x, y, z int) Vec3i { return Vec3i{X: x, Y: y, Z: z} }

func posPtr(p Vec3i) *[3]int {
	a := p.ToArray()
	return &a
}

func req(typ, initiator string, pos *Vec3i) protocol.ControlRequest {
	r := protocol.ControlRequest{Type: typ, Initiator: initiator}
	if pos != nil {
		r.Pos = posPtr(*pos)
	}
	return r
}

// linkPair places an input and an output and pairs them through the control surface.
func linkPair(t *testing.T, w *World, inPos, outPos Vec3i) (NodeRef, NodeRef) {
	t.Helper()
	inRef, err := w.PlaceInput(inPos)
	require.NoError(t, err)
	outRef, err := w.PlaceOutput(outPos)
	require.NoError(t, err)
	resps := w.StepOnce(
		req(protocol.TypeBeginLink, "P1", &inPos),
		req(protocol.TypeCompleteLink, "P1", &outPos),
	)
	require.Len(t, resps, 2)
	require.True(t, resps[0].OK, "begin: %+v", resps[0])
	require.True(t, resps[1].OK, "complete: %+v", resps[1])
	return inRef, outRef
}

func spawnSheep(t *testing.T, w *World, pos Vec3i) *Actor {
	t.Helper()
	a, err := w.SpawnNew("SHEEP", pos, true)
	require.NoError(t, err)
	return a
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.StepOnce()
	}
}

type snapshotV1 = snapshot.SnapshotV1
