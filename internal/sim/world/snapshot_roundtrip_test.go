package world

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/protocol"
)

// buildRunningPipeline leaves tickets buffered, a lured actor and an immune one.
func buildRunningPipeline(t *testing.T) (*World, NodeRef, NodeRef) {
	t.Helper()
	w := newTestWorld(t, func(c *WorldConfig) {
		c.Transit.MinDelayTicks = 30
		c.Transit.MaxDelayTicks = 40
	})
	inRef, outRef := linkPair(t, w, v(0, 0, 0), v(20, 0, 0))
	spawnSheep(t, w, v(1, 0, 0))
	spawnSheep(t, w, v(0, 0, 1))
	spawnSheep(t, w, v(6, 0, 0))
	stepN(w, 3)

	far := spawnSheep(t, w, v(30, 0, 0))
	w.markers.SetImmunity(far.ID, 500)
	w.Sessions().Begin("P1", inRef)
	return w, inRef, outRef
}

func TestSnapshot_RoundTripInMemory(t *testing.T) {
	w, inRef, _ := buildRunningPipeline(t)
	tick := w.CurrentTick() - 1
	snap := w.ExportSnapshot(tick)
	require.Len(t, snap.Inputs, 1)
	require.Len(t, snap.Inputs[0].Tickets, 2)
	require.NotNil(t, snap.Inputs[0].PairedOutput)
	require.NotEmpty(t, snap.Markers)

	w2, err := NewFromSnapshot(snap, testCatalogs(t), nil)
	require.NoError(t, err)
	require.Equal(t, w.CurrentTick(), w2.CurrentTick())
	require.Equal(t, snap, w2.ExportSnapshot(tick))
	require.Equal(t, w.StateDigest(tick), w2.StateDigest(tick))
	require.Zero(t, w2.Sessions().Len(), "sessions must not survive a resume")

	st, err := w2.Status(inRef)
	require.NoError(t, err)
	require.True(t, st.Paired)
	require.Equal(t, 2, st.Buffered)
}

func TestSnapshot_ResumeFromFileFinishesTransport(t *testing.T) {
	w, inRef, outRef := buildRunningPipeline(t)
	tick := w.CurrentTick() - 1
	path := filepath.Join(t.TempDir(), snapshot.FileName(tick))
	require.NoError(t, snapshot.WriteSnapshot(path, w.ExportSnapshot(tick)))

	snap, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	w2, err := NewFromSnapshot(snap, testCatalogs(t), nil)
	require.NoError(t, err)

	stepN(w2, 60)
	in, _ := w2.Input(inRef)
	require.Zero(t, in.BufferSize())
	got := 0
	for _, a := range w2.sortedActors() {
		if a.Pos == outRef.Pos {
			got++
		}
	}
	require.GreaterOrEqual(t, got, 2)
	require.GreaterOrEqual(t, w2.Metrics().Releases, uint64(2))

	r := w2.HandleControl(req(protocol.TypeStatus, "P1", &outRef.Pos))
	require.True(t, r.OK)
	require.Len(t, r.Status.PairedInputs, 1)
}

func TestSnapshot_ImportReconcilesPairing(t *testing.T) {
	w, inRef, outRef := buildRunningPipeline(t)
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	// The output forgot its input; the input still points at it.
	snap.Outputs[0].Inputs = nil
	// And a second input points at an output that does not exist.
	ghost := snapshot.NodeRefV1{WorldID: "world_test", Pos: [3]int{99, 0, 0}}
	snap.Inputs = append(snap.Inputs, snapshot.InputV1{Pos: [3]int{5, 0, 5}, PairedOutput: &ghost, Visual: "IDLE"})

	w2, err := NewFromSnapshot(snap, testCatalogs(t), nil)
	require.NoError(t, err)

	out, _ := w2.Output(outRef)
	require.True(t, out.HasInput(inRef), "free slot should take the input back")
	other, _ := w2.Input(w2.ref(v(5, 0, 5)))
	_, paired := other.PairedOutput()
	require.False(t, paired)
}

func TestSnapshot_ImportReleasesOverflow(t *testing.T) {
	w, inRef, _ := buildRunningPipeline(t)
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	snap.Transit.BufferSize = 1

	before := len(snap.Actors)
	w2, err := NewFromSnapshot(snap, testCatalogs(t), nil)
	require.NoError(t, err)
	in, _ := w2.Input(inRef)
	require.Equal(t, 1, in.BufferSize())
	require.Equal(t, before+1, w2.ActorCount())
	require.EqualValues(t, 1, w2.Metrics().Releases-snap.Metrics.Releases)
}

func TestSnapshot_RejectsOtherWorld(t *testing.T) {
	w, _, _ := buildRunningPipeline(t)
	snap := w.ExportSnapshot(1)
	other := newTestWorld(t, func(c *WorldConfig) { c.ID = "world_other" })
	require.Error(t, other.ImportSnapshot(snap))
}
