package runtime

import (
	"sort"

	"mobtransit.ai/internal/sim/world/feature/transit/backoff"
	"mobtransit.ai/internal/sim/world/feature/transit/buffer"
	"mobtransit.ai/internal/sim/world/feature/transit/eligibility"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type VisualState string

const (
	VisualIdle     VisualState = "IDLE"
	VisualOpen     VisualState = "OPEN"
	VisualChomping VisualState = "CHOMPING"
)

// InputNode captures actors into its buffer and forwards ready tickets to its paired output.
type InputNode struct {
	ref    modelpkg.NodeRef
	params Params

	buf    *buffer.CaptureBuffer
	paired *modelpkg.NodeRef

	visual    VisualState
	chompLeft int
	closest   *modelpkg.Vec3i

	lureCD     Cooldown
	captureCD  Cooldown
	transferCD Cooldown

	backoff backoff.State
	removed bool
}

// InputTick reports what a single Tick did; the world turns it into metrics.
type InputTick struct {
	Paused            bool
	Lured             int
	Captured          bool
	TransferAttempted bool
	Transferred       bool
}

func NewInputNode(ref modelpkg.NodeRef, params Params) *InputNode {
	return &InputNode{
		ref:    ref,
		params: params,
		buf:    buffer.New(params.BufferSize),
		visual: VisualIdle,
	}
}

func (n *InputNode) Ref() modelpkg.NodeRef { return n.ref }

func (n *InputNode) PairedOutput() (modelpkg.NodeRef, bool) {
	if n.paired == nil {
		return modelpkg.NodeRef{}, false
	}
	return *n.paired, true
}

func (n *InputNode) SetPairedOutput(ref modelpkg.NodeRef) { n.paired = &ref }
func (n *InputNode) ClearPairedOutput()                   { n.paired = nil }

func (n *InputNode) Visual() VisualState      { return n.visual }
func (n *InputNode) Backoff() backoff.State   { return n.backoff }
func (n *InputNode) Removed() bool            { return n.removed }
func (n *InputNode) BufferSize() int          { return n.buf.Size() }
func (n *InputNode) Capacity() int            { return n.buf.MaxSize() }
func (n *InputNode) Tickets() []ticket.Ticket { return n.buf.Tickets() }

func (n *InputNode) NextReleaseETA(now uint64) int64 { return n.buf.NextReleaseETA(now) }

// ClosestTarget is a UI hint for the capture animation, not authoritative state.
func (n *InputNode) ClosestTarget() (modelpkg.Vec3i, bool) {
	if n.closest == nil {
		return modelpkg.Vec3i{}, false
	}
	return *n.closest, true
}

// Tick runs lure, capture and transfer, each on its own cooldown. A pending
// backoff pauses the whole node.
func (n *InputNode) Tick(now uint64, env Env) InputTick {
	var r InputTick
	if n.removed {
		return r
	}
	if n.backoff.Tick() {
		r.Paused = true
		return r
	}
	n.advanceAnimation()

	if n.lureCD.Ready(n.params.LureEveryTicks) {
		r.Lured = n.lure(now, env)
	}
	if n.visual != VisualChomping && n.captureCD.Ready(n.params.CaptureEveryTicks) {
		r.Captured = n.capture(now, env)
	}
	if n.transferCD.Ready(n.params.TransferEveryTicks) {
		r.TransferAttempted, r.Transferred = n.transfer(now, env)
	}
	return r
}

func (n *InputNode) advanceAnimation() {
	if n.visual != VisualChomping {
		return
	}
	if n.chompLeft > 0 {
		n.chompLeft--
	}
	if n.chompLeft == 0 {
		n.visual = n.restingVisual()
	}
}

func (n *InputNode) restingVisual() VisualState {
	if n.closest != nil && n.buf.CanAccept() {
		return VisualOpen
	}
	return VisualIdle
}

// lure pulls attractable, eligible actors toward the node and releases every
// actor it no longer wants. Releasing walks the lure index rather than a
// radius, so actors that wandered far away are released too.
func (n *InputNode) lure(now uint64, env Env) int {
	room := n.buf.CanAccept()
	accepted := map[string]struct{}{}
	var closest *modelpkg.Vec3i
	bestD := 0

	for _, a := range env.ActorsInRadius(n.ref.Pos, n.params.LureRadius) {
		if a == nil || !a.Attractable {
			continue
		}
		if !env.Eligibility.Eligible(a, now) {
			continue
		}
		accepted[a.ID] = struct{}{}
		if room {
			env.SetLure(a.ID, n.ref)
		}
		d := modelpkg.DistSq(n.ref.Pos, a.Pos)
		if closest == nil || d < bestD {
			p := a.Pos
			closest = &p
			bestD = d
		}
	}

	for _, id := range env.LuredActors(n.ref) {
		if _, ok := accepted[id]; ok && room {
			continue
		}
		env.ClearLure(id)
	}

	n.closest = closest
	if n.visual != VisualChomping {
		n.visual = n.restingVisual()
	}
	if !room {
		return 0
	}
	return len(accepted)
}

func (n *InputNode) capture(now uint64, env Env) bool {
	if n.paired == nil || !n.buf.CanAccept() {
		return false
	}
	dest := *n.paired

	cands := make([]*modelpkg.Actor, 0, 4)
	for _, a := range env.ActorsInRadius(n.ref.Pos, n.params.CaptureRadius) {
		if a != nil && env.Eligibility.Eligible(a, now) {
			cands = append(cands, a)
		}
	}
	if len(cands) == 0 {
		return false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		pi, pj := eligibility.HasPriorityMarker(cands[i]), eligibility.HasPriorityMarker(cands[j])
		if pi != pj {
			return pi
		}
		di, dj := modelpkg.DistSq(n.ref.Pos, cands[i].Pos), modelpkg.DistSq(n.ref.Pos, cands[j].Pos)
		if di != dj {
			return di < dj
		}
		return cands[i].ID < cands[j].ID
	})

	for _, a := range cands {
		state, err := env.Serialize(a)
		if err != nil {
			env.Logf("input %s: serialize %s: %v", n.ref, a.ID, err)
			continue
		}
		readyAt := now + env.RandDelay(n.params.MinDelayTicks, n.params.MaxDelayTicks)
		t := ticket.New(a.Type, state, now, readyAt, &dest, env.NewDebugID())
		if !n.buf.Add(t) {
			return false
		}
		env.ClearLure(a.ID)
		env.RemoveActor(a.ID)

		n.visual = VisualChomping
		n.chompLeft = n.params.ChompTicks
		env.Emit(Event{Tick: now, Kind: EventCapture, Node: n.ref, Pos: n.ref.Pos, ActorType: a.Type, ActorID: a.ID})
		if err := env.NotifyCapture(n.ref.WorldID, n.ref.Pos); err != nil {
			env.Logf("input %s: capture notification: %v", n.ref, err)
		}
		return true
	}
	return false
}

func (n *InputNode) transfer(now uint64, env Env) (attempted, ok bool) {
	if n.paired == nil || n.buf.Empty() {
		return false, false
	}
	t, found := n.buf.ReadyTicket(now)
	if !found {
		return false, false
	}
	if err := env.HandOff(n.ref, t); err != nil {
		next := n.backoff.Fail(n.params.Backoff)
		env.Emit(Event{Tick: now, Kind: EventTransferFail, Node: n.ref, Pos: n.ref.Pos, ActorType: t.ActorType(), Backoff: next, Reason: err.Error()})
		return true, false
	}
	n.buf.PollReadyTicket(now)
	n.backoff.Succeed()
	env.Emit(Event{Tick: now, Kind: EventTransfer, Node: n.ref, Pos: n.ref.Pos, ActorType: t.ActorType()})
	return true, true
}

// OnRemoved releases every buffered ticket at the node itself, ignoring ready
// times, and drops all lures pointing here. Pairing is handled by the registry
// before the node leaves the world. Calling it twice is harmless.
func (n *InputNode) OnRemoved(now uint64, env Env) int {
	if n.removed {
		return 0
	}
	n.removed = true
	released := 0
	for _, t := range n.buf.Drain() {
		if _, ok := releaseTicket(now, env, n.ref, n.ref.Pos, t.WithImmediateRelease(), n.params.ReleaseImmunityTicks); ok {
			released++
		}
	}
	for _, id := range env.LuredActors(n.ref) {
		env.ClearLure(id)
	}
	n.closest = nil
	n.visual = VisualIdle
	return released
}

// releaseTicket reconstructs the ticket's actor at pos. Unknown or corrupt
// actors are dropped with a DROP event; the ticket is consumed either way.
func releaseTicket(now uint64, env Env, node modelpkg.NodeRef, pos modelpkg.Vec3i, t ticket.Ticket, immunity uint64) (*modelpkg.Actor, bool) {
	a, err := env.SpawnActor(t.ActorType(), t.State(), pos)
	if err != nil || a == nil {
		reason := "spawn failed"
		if err != nil {
			reason = err.Error()
		}
		env.Logf("node %s: dropping %s ticket: %s", node, t.ActorType(), reason)
		env.Emit(Event{Tick: now, Kind: EventDrop, Node: node, Pos: pos, ActorType: t.ActorType(), Reason: reason})
		return nil, false
	}
	if immunity > 0 {
		env.SetImmunity(a.ID, now+immunity)
	}
	env.Emit(Event{Tick: now, Kind: EventRelease, Node: node, Pos: pos, ActorType: a.Type, ActorID: a.ID})
	return a, true
}

type InputState struct {
	PairedOutput  *modelpkg.NodeRef
	Visual        VisualState
	ChompLeft     int
	Backoff       backoff.State
	Tickets       []ticket.Record
	ClosestTarget *modelpkg.Vec3i
}

func (n *InputNode) ExportState() InputState {
	s := InputState{
		Visual:    n.visual,
		ChompLeft: n.chompLeft,
		Backoff:   n.backoff,
		Tickets:   n.buf.Export(),
	}
	if n.paired != nil {
		p := *n.paired
		s.PairedOutput = &p
	}
	if n.closest != nil {
		c := *n.closest
		s.ClosestTarget = &c
	}
	return s
}

// ImportState replaces the node's state. Tickets beyond capacity are returned
// so the caller can release them.
func (n *InputNode) ImportState(s InputState) (overflow []ticket.Ticket, skipped int) {
	n.paired = nil
	if s.PairedOutput != nil {
		p := *s.PairedOutput
		n.paired = &p
	}
	n.closest = nil
	if s.ClosestTarget != nil {
		c := *s.ClosestTarget
		n.closest = &c
	}
	n.visual = s.Visual
	switch n.visual {
	case VisualIdle, VisualOpen, VisualChomping:
	default:
		n.visual = VisualIdle
	}
	n.chompLeft = s.ChompLeft
	n.backoff = s.Backoff
	return n.buf.Import(s.Tickets)
}
