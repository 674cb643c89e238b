package runtime

import (
	"errors"
	"fmt"
	"sort"

	"mobtransit.ai/internal/sim/world/feature/transit/backoff"
	"mobtransit.ai/internal/sim/world/feature/transit/eligibility"
	"mobtransit.ai/internal/sim/world/feature/transit/markers"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type fakeWorld struct {
	actors  map[string]*modelpkg.Actor
	marks   *markers.Table
	outputs map[modelpkg.NodeRef]*OutputNode
	links   map[modelpkg.NodeRef]modelpkg.NodeRef
	known   map[string]bool

	delay       uint64
	failHandOff bool
	notifyErr   error
	notified    int
	nextID      int

	events []Event
	spawns []*modelpkg.Actor
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		actors:  map[string]*modelpkg.Actor{},
		marks:   markers.NewTable(),
		outputs: map[modelpkg.NodeRef]*OutputNode{},
		links:   map[modelpkg.NodeRef]modelpkg.NodeRef{},
		known:   map[string]bool{"SHEEP": true, "COW": true},
	}
}

func testParams() Params {
	return Params{
		LureRadius:           8,
		CaptureRadius:        2,
		LureEveryTicks:       1,
		CaptureEveryTicks:    1,
		TransferEveryTicks:   1,
		ReleaseEveryTicks:    1,
		ChompTicks:           0,
		MinDelayTicks:        50,
		MaxDelayTicks:        50,
		BufferSize:           8,
		Backoff:              backoff.Policy{Base: 5, Cap: 100},
		ReleaseImmunityTicks: 20,
		MaxInputs:            4,
	}
}

func nodeRef(x, z int) modelpkg.NodeRef {
	return modelpkg.NodeRef{WorldID: "W", Pos: modelpkg.Vec3i{X: x, Z: z}}
}

func (w *fakeWorld) addMob(id, typ string, pos modelpkg.Vec3i) *modelpkg.Actor {
	a := &modelpkg.Actor{ID: id, Type: typ, Kind: modelpkg.ActorKindMob, Pos: pos, HP: 10, Bonded: true, Attractable: true}
	w.actors[id] = a
	return a
}

func (w *fakeWorld) link(in *InputNode, out *OutputNode) {
	in.SetPairedOutput(out.Ref())
	out.AddInput(in.Ref())
	w.outputs[out.Ref()] = out
	w.links[in.Ref()] = out.Ref()
}

func (w *fakeWorld) count(kind EventKind) int {
	n := 0
	for _, e := range w.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (w *fakeWorld) env() Env {
	return Env{
		Eligibility: eligibility.New(nil, false, w.marks.ImmuneUntil),
		ActorsInRadiusFn: func(center modelpkg.Vec3i, radius int) []*modelpkg.Actor {
			var out []*modelpkg.Actor
			for _, id := range modelpkg.SortedActorIDs(w.actors) {
				if a := w.actors[id]; modelpkg.InRadius(center, a.Pos, radius) {
					out = append(out, a)
				}
			}
			return out
		},
		RemoveActorFn: func(id string) {
			delete(w.actors, id)
			w.marks.Forget(id)
		},
		SpawnActorFn: func(typeID string, state []byte, pos modelpkg.Vec3i) (*modelpkg.Actor, error) {
			if !w.known[typeID] {
				return nil, fmt.Errorf("unknown actor type %q", typeID)
			}
			a, err := modelpkg.DecodeActorState(typeID, state, pos)
			if err != nil {
				return nil, err
			}
			if _, taken := w.actors[a.ID]; taken || a.ID == "" {
				w.nextID++
				a.ID = fmt.Sprintf("R%d", w.nextID)
			}
			w.actors[a.ID] = a
			w.spawns = append(w.spawns, a)
			return a, nil
		},
		SetLureFn:     w.marks.SetLure,
		ClearLureFn:   w.marks.ClearLure,
		LuredActorsFn: w.marks.LuredActors,
		SetImmunityFn: w.marks.SetImmunity,
		HandOffFn: func(from modelpkg.NodeRef, t ticket.Ticket) error {
			if w.failHandOff {
				return ErrPeerRejected
			}
			outRef, ok := w.links[from]
			if !ok {
				return ErrUnpaired
			}
			out := w.outputs[outRef]
			if out == nil {
				return ErrPeerMissing
			}
			if !out.AcceptTicket(t) {
				return ErrPeerRejected
			}
			return nil
		},
		RandDelayFn: func(min, max uint64) uint64 {
			if w.delay != 0 {
				return w.delay
			}
			return min
		},
		EventFn: func(e Event) { w.events = append(w.events, e) },
		NotifyCaptureFn: func(string, modelpkg.Vec3i) error {
			w.notified++
			return w.notifyErr
		},
	}
}

func actorIDs(m map[string]*modelpkg.Actor) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var errNotify = errors.New("dialogue system offline")
