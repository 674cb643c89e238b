package world

import (
	"fmt"
	"log"

	"mobtransit.ai/internal/persistence/snapshot"
	"mobtransit.ai/internal/sim/catalogs"
	"mobtransit.ai/internal/sim/world/feature/transit/backoff"
	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type overflowTicket struct {
	ref NodeRef
	t   ticket.Ticket
}

// ConfigFromSnapshot restores the operational parameters recorded in snap.
func ConfigFromSnapshot(snap snapshot.SnapshotV1) WorldConfig {
	t := snap.Transit
	return WorldConfig{
		ID:                 snap.Header.WorldID,
		TickRateHz:         snap.TickRate,
		Seed:               snap.Seed,
		SnapshotEveryTicks: snap.SnapshotEveryTicks,
		LureStepEveryTicks: snap.LureStepEveryTicks,
		Transit: runtime.Params{
			LureRadius:           t.LureRadius,
			CaptureRadius:        t.CaptureRadius,
			LureEveryTicks:       t.LureEveryTicks,
			CaptureEveryTicks:    t.CaptureEveryTicks,
			TransferEveryTicks:   t.TransferEveryTicks,
			ReleaseEveryTicks:    t.ReleaseEveryTicks,
			ChompTicks:           t.ChompTicks,
			MinDelayTicks:        t.MinDelayTicks,
			MaxDelayTicks:        t.MaxDelayTicks,
			BufferSize:           t.BufferSize,
			Backoff:              backoff.Policy{Base: t.BackoffBaseTicks, Cap: t.BackoffCapTicks},
			ReleaseImmunityTicks: t.ReleaseImmunityTicks,
			MaxInputs:            t.MaxInputs,
		},
		ExcludedActorTypes:   append([]string(nil), t.ExcludedActorTypes...),
		AllowUnbondedCapture: t.AllowUnbonded,
	}
}

// NewFromSnapshot builds a world that resumes at the tick after snap.
func NewFromSnapshot(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	w, err := New(ConfigFromSnapshot(snap), cats, logger)
	if err != nil {
		return nil, err
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, err
	}
	return w, nil
}

// ImportSnapshot replaces all world state with snap. Pairing is reconciled so
// both sides agree, and tickets that no longer fit a buffer are released at
// their input rather than lost.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match world %q", snap.Header.WorldID, w.cfg.ID)
	}
	nowTick := snap.Header.Tick + 1
	w.tick.Store(nowTick)
	w.nextActorNum.Store(snap.Counters.NextActor)
	if m := snap.Metrics; m != nil {
		w.counters = transitCounters{
			Captures:      m.Captures,
			Transfers:     m.Transfers,
			TransferFails: m.TransferFails,
			Releases:      m.Releases,
			Drops:         m.Drops,
		}
	}

	w.actors = map[string]*Actor{}
	for _, av := range snap.Actors {
		a, err := modelpkg.DecodeActorState(av.Type, av.State, modelpkg.Vec3iFromArray(av.Pos))
		if err != nil {
			w.logger.Printf("snapshot import: actor %s: %v", av.ID, err)
			continue
		}
		a.ID = av.ID
		w.actors[a.ID] = a
		w.reserveActorID(a.ID)
	}

	w.inputs = map[NodeRef]*runtime.InputNode{}
	w.outputs = map[NodeRef]*runtime.OutputNode{}
	for _, ov := range snap.Outputs {
		ref := w.ref(modelpkg.Vec3iFromArray(ov.Pos))
		n := runtime.NewOutputNode(ref, w.cfg.Transit)
		st := runtime.OutputState{Pending: ticketRecords(ov.Pending)}
		for _, r := range ov.Inputs {
			st.Inputs = append(st.Inputs, nodeRefFromV1(r))
		}
		if skipped := n.ImportState(st); skipped > 0 {
			w.logger.Printf("snapshot import: output %s: skipped %d malformed tickets", ref, skipped)
		}
		w.outputs[ref] = n
	}

	var overflow []overflowTicket
	for _, iv := range snap.Inputs {
		ref := w.ref(modelpkg.Vec3iFromArray(iv.Pos))
		if w.outputs[ref] != nil {
			w.logger.Printf("snapshot import: input %s overlaps an output; skipped", ref)
			continue
		}
		n := runtime.NewInputNode(ref, w.cfg.Transit)
		st := runtime.InputState{
			Visual:    runtime.VisualState(iv.Visual),
			ChompLeft: iv.ChompLeft,
			Backoff:   backoff.State{Current: iv.BackoffCurrent, Remaining: iv.BackoffRemaining},
			Tickets:   ticketRecords(iv.Tickets),
		}
		if iv.PairedOutput != nil {
			r := nodeRefFromV1(*iv.PairedOutput)
			st.PairedOutput = &r
		}
		if iv.ClosestTarget != nil {
			c := modelpkg.Vec3iFromArray(*iv.ClosestTarget)
			st.ClosestTarget = &c
		}
		extra, skipped := n.ImportState(st)
		if skipped > 0 {
			w.logger.Printf("snapshot import: input %s: skipped %d malformed tickets", ref, skipped)
		}
		for _, t := range extra {
			overflow = append(overflow, overflowTicket{ref: ref, t: t})
		}
		w.inputs[ref] = n
	}

	w.importMarkers(snap.Markers)
	w.reconcilePairing()
	w.sessions.Clear()

	for _, o := range overflow {
		w.releaseOverflow(nowTick, o.ref, o.t)
	}
	w.publishMetrics(nowTick)
	return nil
}

// importMarkers refills the existing table in place; the env and the
// eligibility filter hold references to it.
func (w *World) importMarkers(ms []snapshot.MarkerV1) {
	t := w.markers
	t.Reset()
	for _, m := range ms {
		if w.actors[m.ActorID] == nil {
			continue
		}
		if m.LuredBy != nil {
			ref := nodeRefFromV1(*m.LuredBy)
			if w.inputs[ref] != nil {
				t.SetLure(m.ActorID, ref)
			}
		}
		if m.ImmuneUntil > 0 {
			t.SetImmunity(m.ActorID, m.ImmuneUntil)
		}
	}
}

// reconcilePairing makes every link symmetric after an import. An input keeps
// its output only if the output lists it (or has a free slot to add it).
func (w *World) reconcilePairing() {
	for _, ref := range sortedRefs(w.inputs) {
		in := w.inputs[ref]
		outRef, ok := in.PairedOutput()
		if !ok {
			continue
		}
		out := w.outputs[outRef]
		if out == nil {
			in.ClearPairedOutput()
			w.logger.Printf("snapshot import: input %s linked to missing output %s; link cleared", ref, outRef)
			continue
		}
		if !out.HasInput(ref) && !out.AddInput(ref) {
			in.ClearPairedOutput()
			w.logger.Printf("snapshot import: output %s full; input %s unlinked", outRef, ref)
		}
	}
	for _, ref := range sortedRefs(w.outputs) {
		w.registry.InputsOf(ref)
	}
}

func (w *World) releaseOverflow(nowTick uint64, ref NodeRef, t ticket.Ticket) {
	a, err := w.SpawnActor(t.ActorType(), t.State(), ref.Pos)
	if err != nil {
		w.logger.Printf("snapshot import: input %s: dropping overflow %s ticket: %v", ref, t.ActorType(), err)
		w.recordEvent(runtime.Event{Tick: nowTick, Kind: runtime.EventDrop, Node: ref, Pos: ref.Pos, ActorType: t.ActorType(), Reason: err.Error()})
		return
	}
	if imm := w.cfg.Transit.ReleaseImmunityTicks; imm > 0 {
		w.markers.SetImmunity(a.ID, nowTick+imm)
	}
	w.recordEvent(runtime.Event{Tick: nowTick, Kind: runtime.EventRelease, Node: ref, Pos: ref.Pos, ActorType: a.Type, ActorID: a.ID, Reason: "buffer overflow on import"})
}

func nodeRefFromV1(r snapshot.NodeRefV1) NodeRef {
	return NodeRef{WorldID: r.WorldID, Pos: modelpkg.Vec3iFromArray(r.Pos)}
}

func ticketRecords(ts []snapshot.TicketV1) []ticket.Record {
	out := make([]ticket.Record, 0, len(ts))
	for _, tv := range ts {
		r := ticket.Record{
			ActorType:  tv.ActorType,
			State:      tv.State,
			CapturedAt: tv.CapturedAt,
			ReadyAt:    tv.ReadyAt,
			DebugID:    tv.DebugID,
		}
		if tv.Dest != nil {
			r.Dest = &ticket.DestRecord{WorldID: tv.Dest.WorldID, Pos: tv.Dest.Pos}
		}
		out = append(out, r)
	}
	return out
}
