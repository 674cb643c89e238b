// Package ticket defines the durable record of a captured actor awaiting transport.
package ticket

import (
	"bytes"

	"github.com/google/uuid"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// Ticket is immutable: fields are unexported and every "With" method returns a copy.
type Ticket struct {
	actorType  string
	state      []byte
	capturedAt uint64
	readyAt    uint64
	dest       *modelpkg.NodeRef
	debugID    *uuid.UUID
}

// New builds a ticket. readyAt is raised to capturedAt when it would precede it.
func New(actorType string, state []byte, capturedAt, readyAt uint64, dest *modelpkg.NodeRef, debugID *uuid.UUID) Ticket {
	if readyAt < capturedAt {
		readyAt = capturedAt
	}
	t := Ticket{
		actorType:  actorType,
		state:      cloneBytes(state),
		capturedAt: capturedAt,
		readyAt:    readyAt,
	}
	if dest != nil {
		d := *dest
		t.dest = &d
	}
	if debugID != nil {
		id := *debugID
		t.debugID = &id
	}
	return t
}

func (t Ticket) ActorType() string  { return t.actorType }
func (t Ticket) CapturedAt() uint64 { return t.capturedAt }
func (t Ticket) ReadyAt() uint64    { return t.readyAt }

// State returns a copy of the serialized actor.
func (t Ticket) State() []byte { return cloneBytes(t.state) }

func (t Ticket) Destination() (modelpkg.NodeRef, bool) {
	if t.dest == nil {
		return modelpkg.NodeRef{}, false
	}
	return *t.dest, true
}

func (t Ticket) DebugID() (uuid.UUID, bool) {
	if t.debugID == nil {
		return uuid.Nil, false
	}
	return *t.debugID, true
}

func (t Ticket) IsReady(now uint64) bool { return t.readyAt <= now }

// WithImmediateRelease returns a copy that is ready at any tick.
func (t Ticket) WithImmediateRelease() Ticket {
	out := t
	out.readyAt = 0
	return out
}

func (t Ticket) WithDestination(ref modelpkg.NodeRef) Ticket {
	out := t
	out.dest = &ref
	return out
}

func Equal(a, b Ticket) bool {
	if a.actorType != b.actorType || a.capturedAt != b.capturedAt || a.readyAt != b.readyAt {
		return false
	}
	if !bytes.Equal(a.state, b.state) {
		return false
	}
	if (a.dest == nil) != (b.dest == nil) || (a.dest != nil && *a.dest != *b.dest) {
		return false
	}
	if (a.debugID == nil) != (b.debugID == nil) || (a.debugID != nil && *a.debugID != *b.debugID) {
		return false
	}
	return true
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
