package digest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mobtransit.ai/internal/persistence/snapshot"
)

func sampleSnapshot() snapshot.SnapshotV1 {
	out := snapshot.NodeRefV1{WorldID: "W1", Pos: [3]int{20, 0, 0}}
	return snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: snapshot.Version, WorldID: "W1", Tick: 42},
		Seed:    7,
		Transit: snapshot.TransitV1{LureRadius: 5, CaptureRadius: 1, MinDelayTicks: 30, MaxDelayTicks: 40, BufferSize: 20},
		Actors: []snapshot.ActorV1{
			{ID: "A1", Type: "SHEEP", Pos: [3]int{1, 0, 0}, State: []byte(`{"hp":8}`)},
		},
		Markers: []snapshot.MarkerV1{{ActorID: "A1", LuredBy: &snapshot.NodeRefV1{WorldID: "W1"}}},
		Inputs: []snapshot.InputV1{{
			PairedOutput: &out,
			Visual:       "IDLE",
			Tickets:      []snapshot.TicketV1{{ActorType: "COW", CapturedAt: 10, ReadyAt: 45}},
		}},
		Outputs:  []snapshot.OutputV1{{Pos: out.Pos, Inputs: []snapshot.NodeRefV1{{WorldID: "W1"}}}},
		Counters: snapshot.CountersV1{NextActor: 3},
	}
}

func TestStateDigest_Stable(t *testing.T) {
	a := StateDigest(sampleSnapshot())
	require.Len(t, a, 64)
	require.Equal(t, a, StateDigest(sampleSnapshot()))
}

func TestStateDigest_IgnoresMetricsAndCadence(t *testing.T) {
	base := StateDigest(sampleSnapshot())
	s := sampleSnapshot()
	s.Metrics = &snapshot.MetricsV1{Captures: 9}
	s.SnapshotEveryTicks = 100
	s.TickRate = 20
	require.Equal(t, base, StateDigest(s))
}

func TestStateDigest_SensitiveToPipelineState(t *testing.T) {
	base := StateDigest(sampleSnapshot())

	s := sampleSnapshot()
	s.Inputs[0].Tickets[0].ReadyAt++
	require.NotEqual(t, base, StateDigest(s), "ticket ready tick")

	s = sampleSnapshot()
	s.Markers[0].LuredBy = nil
	require.NotEqual(t, base, StateDigest(s), "marker lure")

	s = sampleSnapshot()
	s.Outputs[0].Pending = append(s.Outputs[0].Pending, snapshot.TicketV1{ActorType: "PIG"})
	require.NotEqual(t, base, StateDigest(s), "pending ticket")

	s = sampleSnapshot()
	s.Header.Tick++
	require.NotEqual(t, base, StateDigest(s), "tick")
}
