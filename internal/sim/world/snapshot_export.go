package world

import (
	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/world/feature/persistence/digest"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	p := w.cfg.Transit
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		LureStepEveryTicks: w.cfg.LureStepEveryTicks,
		Transit: snapshot.TransitV1{
			LureRadius:           p.LureRadius,
			CaptureRadius:        p.CaptureRadius,
			LureEveryTicks:       p.LureEveryTicks,
			CaptureEveryTicks:    p.CaptureEveryTicks,
			TransferEveryTicks:   p.TransferEveryTicks,
			ReleaseEveryTicks:    p.ReleaseEveryTicks,
			ChompTicks:           p.ChompTicks,
			MinDelayTicks:        p.MinDelayTicks,
			MaxDelayTicks:        p.MaxDelayTicks,
			BufferSize:           p.BufferSize,
			BackoffBaseTicks:     p.Backoff.Base,
			BackoffCapTicks:      p.Backoff.Cap,
			ReleaseImmunityTicks: p.ReleaseImmunityTicks,
			MaxInputs:            p.MaxInputs,
			AllowUnbonded:        w.cfg.AllowUnbondedCapture,
			ExcludedActorTypes:   append([]string(nil), w.cfg.ExcludedActorTypes...),
		},
		Counters: snapshot.CountersV1{NextActor: w.nextActorNum.Load()},
		Metrics: &snapshot.MetricsV1{
			Captures:      w.counters.Captures,
			Transfers:     w.counters.Transfers,
			TransferFails: w.counters.TransferFails,
			Releases:      w.counters.Releases,
			Drops:         w.counters.Drops,
		},
	}

	for _, a := range w.sortedActors() {
		state, err := modelpkg.EncodeActorState(a)
		if err != nil {
			w.logger.Printf("snapshot: encode actor %s: %v", a.ID, err)
			continue
		}
		snap.Actors = append(snap.Actors, snapshot.ActorV1{ID: a.ID, Type: a.Type, Pos: a.Pos.ToArray(), State: state})
	}

	for _, id := range w.markers.SortedActorIDs() {
		m, _ := w.markers.Get(id)
		mv := snapshot.MarkerV1{ActorID: id, ImmuneUntil: m.ImmuneUntil}
		if m.LuredBy != nil {
			r := refV1(*m.LuredBy)
			mv.LuredBy = &r
		}
		snap.Markers = append(snap.Markers, mv)
	}

	for _, ref := range sortedRefs(w.inputs) {
		st := w.inputs[ref].ExportState()
		iv := snapshot.InputV1{
			Pos:              ref.Pos.ToArray(),
			Visual:           string(st.Visual),
			ChompLeft:        st.ChompLeft,
			BackoffCurrent:   st.Backoff.Current,
			BackoffRemaining: st.Backoff.Remaining,
			Tickets:          ticketsV1(st.Tickets),
		}
		if st.PairedOutput != nil {
			r := refV1(*st.PairedOutput)
			iv.PairedOutput = &r
		}
		if st.ClosestTarget != nil {
			c := st.ClosestTarget.ToArray()
			iv.ClosestTarget = &c
		}
		snap.Inputs = append(snap.Inputs, iv)
	}

	for _, ref := range sortedRefs(w.outputs) {
		st := w.outputs[ref].ExportState()
		ov := snapshot.OutputV1{Pos: ref.Pos.ToArray(), Pending: ticketsV1(st.Pending)}
		for _, in := range st.Inputs {
			ov.Inputs = append(ov.Inputs, refV1(in))
		}
		snap.Outputs = append(snap.Outputs, ov)
	}
	return snap
}

// StateDigest hashes the exported pipeline state at nowTick.
func (w *World) StateDigest(nowTick uint64) string {
	return digest.StateDigest(w.ExportSnapshot(nowTick))
}

func refV1(r NodeRef) snapshot.NodeRefV1 {
	return snapshot.NodeRefV1{WorldID: r.WorldID, Pos: r.Pos.ToArray()}
}

func ticketsV1(recs []ticket.Record) []snapshot.TicketV1 {
	out := make([]snapshot.TicketV1, 0, len(recs))
	for _, r := range recs {
		tv := snapshot.TicketV1{
			ActorType:  r.ActorType,
			State:      r.State,
			CapturedAt: r.CapturedAt,
			ReadyAt:    r.ReadyAt,
			DebugID:    r.DebugID,
		}
		if r.Dest != nil {
			tv.Dest = &snapshot.NodeRefV1{WorldID: r.Dest.WorldID, Pos: r.Dest.Pos}
		}
		out = append(out, tv)
	}
	return out
}
