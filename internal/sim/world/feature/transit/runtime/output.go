package runtime

import (
	"sort"

	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// OutputNode receives tickets from its inputs and reconstructs their actors once ready.
type OutputNode struct {
	ref    modelpkg.NodeRef
	params Params

	inputs  []modelpkg.NodeRef
	pending []ticket.Ticket

	releaseCD Cooldown
	removed   bool
}

type OutputTick struct {
	Released bool
	Dropped  bool
}

func NewOutputNode(ref modelpkg.NodeRef, params Params) *OutputNode {
	return &OutputNode{ref: ref, params: params}
}

func (n *OutputNode) Ref() modelpkg.NodeRef { return n.ref }
func (n *OutputNode) Removed() bool         { return n.removed }
func (n *OutputNode) PendingCount() int     { return len(n.pending) }

func (n *OutputNode) MaxInputs() int {
	if n.params.MaxInputs <= 0 {
		return 1
	}
	return n.params.MaxInputs
}

func (n *OutputNode) Pending() []ticket.Ticket {
	out := make([]ticket.Ticket, len(n.pending))
	copy(out, n.pending)
	return out
}

func (n *OutputNode) HasInput(ref modelpkg.NodeRef) bool {
	for _, r := range n.inputs {
		if r == ref {
			return true
		}
	}
	return false
}

// AddInput records ref in the fan-in set; it fails once every slot is taken.
func (n *OutputNode) AddInput(ref modelpkg.NodeRef) bool {
	if n.HasInput(ref) {
		return true
	}
	if len(n.inputs) >= n.MaxInputs() {
		return false
	}
	n.inputs = append(n.inputs, ref)
	sort.Slice(n.inputs, func(i, j int) bool { return modelpkg.LessNodeRef(n.inputs[i], n.inputs[j]) })
	return true
}

func (n *OutputNode) RemoveInput(ref modelpkg.NodeRef) {
	for i, r := range n.inputs {
		if r == ref {
			n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
			return
		}
	}
}

func (n *OutputNode) Inputs() []modelpkg.NodeRef {
	out := make([]modelpkg.NodeRef, len(n.inputs))
	copy(out, n.inputs)
	return out
}

func (n *OutputNode) InputCount() int { return len(n.inputs) }

// CanGrow reports whether another input may be attached.
func (n *OutputNode) CanGrow() bool { return !n.removed && len(n.inputs) < n.MaxInputs() }

// AcceptTicket queues t for release. There is no backpressure here; buffering is
// bounded upstream. Only a removed node refuses.
func (n *OutputNode) AcceptTicket(t ticket.Ticket) bool {
	if n.removed {
		return false
	}
	n.pending = append(n.pending, t.WithDestination(n.ref))
	return true
}

// NextReleaseETA mirrors the input buffer's ETA over the pending list.
func (n *OutputNode) NextReleaseETA(now uint64) int64 {
	if len(n.pending) == 0 {
		return -1
	}
	soonest := n.pending[0].ReadyAt()
	for _, t := range n.pending[1:] {
		if t.ReadyAt() < soonest {
			soonest = t.ReadyAt()
		}
	}
	if soonest <= now {
		return 0
	}
	return int64(soonest - now)
}

// Tick releases at most one ready ticket.
func (n *OutputNode) Tick(now uint64, env Env) OutputTick {
	var r OutputTick
	if n.removed || !n.releaseCD.Ready(n.params.ReleaseEveryTicks) {
		return r
	}
	idx := -1
	for i, t := range n.pending {
		if t.IsReady(now) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return r
	}
	t := n.pending[idx]
	n.pending = append(n.pending[:idx], n.pending[idx+1:]...)
	if _, ok := releaseTicket(now, env, n.ref, n.ref.Pos, t, n.params.ReleaseImmunityTicks); ok {
		r.Released = true
	} else {
		r.Dropped = true
	}
	return r
}

// OnRemoved releases every pending ticket here immediately. Unpairing the
// inputs is the registry's job and must happen before this call.
func (n *OutputNode) OnRemoved(now uint64, env Env) int {
	if n.removed {
		return 0
	}
	n.removed = true
	pending := n.pending
	n.pending = nil
	released := 0
	for _, t := range pending {
		if _, ok := releaseTicket(now, env, n.ref, n.ref.Pos, t.WithImmediateRelease(), n.params.ReleaseImmunityTicks); ok {
			released++
		}
	}
	return released
}

// GrowOffsets are the relative positions a grown input may occupy, in preference order.
func GrowOffsets() []modelpkg.Vec3i {
	return []modelpkg.Vec3i{
		{X: 1, Y: 0, Z: 0},
		{X: -1, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 0, Y: 0, Z: -1},
	}
}

type OutputState struct {
	Inputs  []modelpkg.NodeRef
	Pending []ticket.Record
}

func (n *OutputNode) ExportState() OutputState {
	s := OutputState{Inputs: n.Inputs()}
	for _, t := range n.pending {
		s.Pending = append(s.Pending, t.Record())
	}
	return s
}

// ImportState replaces inputs and pending tickets. Inputs beyond the slot limit
// are ignored; the registry heals the other side.
func (n *OutputNode) ImportState(s OutputState) (skipped int) {
	n.inputs = nil
	for _, r := range s.Inputs {
		n.AddInput(r)
	}
	n.pending = nil
	for _, rec := range s.Pending {
		t, err := ticket.FromRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		n.pending = append(n.pending, t)
	}
	return skipped
}
