package digest

import (
	"crypto/sha256"
	"encoding/hex"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/world/io/digestcodec"
)

// StateDigest hashes the pipeline state carried by snap: header, seed,
// transit parameters, actors, markers, nodes and their tickets. Metrics and
// cadence fields are excluded, so two worlds that differ only in counters or
// snapshot interval share a digest. Slices are hashed in the order given;
// ExportSnapshot already sorts them.
func StateDigest(snap snapshot.SnapshotV1) string {
	h := sha256.New()
	var tmp [8]byte

	digestcodec.WriteString(h, &tmp, snap.Header.WorldID)
	digestcodec.WriteU64(h, &tmp, snap.Header.Tick)
	digestcodec.WriteI64(h, &tmp, snap.Seed)
	digestTransit(h, &tmp, snap.Transit)
	digestcodec.WriteU64(h, &tmp, snap.Counters.NextActor)

	digestcodec.WriteU64(h, &tmp, uint64(len(snap.Actors)))
	for _, a := range snap.Actors {
		digestcodec.WriteString(h, &tmp, a.ID)
		digestcodec.WriteString(h, &tmp, a.Type)
		digestcodec.WritePos(h, &tmp, a.Pos)
		digestcodec.WriteBytes(h, &tmp, a.State)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(snap.Markers)))
	for _, m := range snap.Markers {
		digestcodec.WriteString(h, &tmp, m.ActorID)
		digestRef(h, &tmp, m.LuredBy)
		digestcodec.WriteU64(h, &tmp, m.ImmuneUntil)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(snap.Inputs)))
	for _, in := range snap.Inputs {
		digestcodec.WritePos(h, &tmp, in.Pos)
		digestRef(h, &tmp, in.PairedOutput)
		digestcodec.WriteString(h, &tmp, in.Visual)
		digestcodec.WriteI64(h, &tmp, int64(in.ChompLeft))
		digestcodec.WriteU64(h, &tmp, in.BackoffCurrent)
		digestcodec.WriteU64(h, &tmp, in.BackoffRemaining)
		digestTickets(h, &tmp, in.Tickets)
	}

	digestcodec.WriteU64(h, &tmp, uint64(len(snap.Outputs)))
	for _, out := range snap.Outputs {
		digestcodec.WritePos(h, &tmp, out.Pos)
		digestcodec.WriteU64(h, &tmp, uint64(len(out.Inputs)))
		for i := range out.Inputs {
			digestRef(h, &tmp, &out.Inputs[i])
		}
		digestTickets(h, &tmp, out.Pending)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestTransit(h digestcodec.Writer, tmp *[8]byte, t snapshot.TransitV1) {
	for _, v := range []int{
		t.LureRadius, t.CaptureRadius, t.LureEveryTicks, t.CaptureEveryTicks,
		t.TransferEveryTicks, t.ReleaseEveryTicks, t.ChompTicks, t.BufferSize, t.MaxInputs,
	} {
		digestcodec.WriteI64(h, tmp, int64(v))
	}
	for _, v := range []uint64{
		t.MinDelayTicks, t.MaxDelayTicks, t.BackoffBaseTicks, t.BackoffCapTicks, t.ReleaseImmunityTicks,
	} {
		digestcodec.WriteU64(h, tmp, v)
	}
	h.Write([]byte{digestcodec.BoolByte(t.AllowUnbonded)})
	digestcodec.WriteU64(h, tmp, uint64(len(t.ExcludedActorTypes)))
	for _, s := range t.ExcludedActorTypes {
		digestcodec.WriteString(h, tmp, s)
	}
}

func digestRef(h digestcodec.Writer, tmp *[8]byte, r *snapshot.NodeRefV1) {
	if r == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	digestcodec.WriteString(h, tmp, r.WorldID)
	digestcodec.WritePos(h, tmp, r.Pos)
}

func digestTickets(h digestcodec.Writer, tmp *[8]byte, ts []snapshot.TicketV1) {
	digestcodec.WriteU64(h, tmp, uint64(len(ts)))
	for i := range ts {
		t := &ts[i]
		digestcodec.WriteString(h, tmp, t.ActorType)
		digestcodec.WriteBytes(h, tmp, t.State)
		digestcodec.WriteU64(h, tmp, t.CapturedAt)
		digestcodec.WriteU64(h, tmp, t.ReadyAt)
		digestRef(h, tmp, t.Dest)
		digestcodec.WriteString(h, tmp, t.DebugID)
	}
}
