package runtime

import (
	"errors"

	"github.com/google/uuid"

	"mobtransit.ai/internal/sim/world/feature/transit/eligibility"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

var (
	ErrPeerMissing  = errors.New("transit: paired output missing")
	ErrPeerRejected = errors.New("transit: paired output rejected ticket")
	ErrUnpaired     = errors.New("transit: input not paired")
)

// Env is the world-facing callback set used by the node state machines.
// Mutations of world state stay in the caller; a nil callback means the
// capability is absent.
type Env struct {
	Eligibility eligibility.Filter

	ActorsInRadiusFn func(center modelpkg.Vec3i, radius int) []*modelpkg.Actor
	SerializeFn      func(a *modelpkg.Actor) ([]byte, error)
	RemoveActorFn    func(actorID string)
	SpawnActorFn     func(typeID string, state []byte, pos modelpkg.Vec3i) (*modelpkg.Actor, error)

	SetLureFn     func(actorID string, node modelpkg.NodeRef)
	ClearLureFn   func(actorID string)
	LuredActorsFn func(node modelpkg.NodeRef) []string
	SetImmunityFn func(actorID string, until uint64)

	HandOffFn       func(from modelpkg.NodeRef, t ticket.Ticket) error
	RandDelayFn     func(min, max uint64) uint64
	NewDebugIDFn    func() *uuid.UUID
	EventFn         func(e Event)
	NotifyCaptureFn func(worldID string, pos modelpkg.Vec3i) error
	LogfFn          func(format string, args ...any)
}

func (e Env) ActorsInRadius(center modelpkg.Vec3i, radius int) []*modelpkg.Actor {
	if e.ActorsInRadiusFn == nil {
		return nil
	}
	return e.ActorsInRadiusFn(center, radius)
}

func (e Env) Serialize(a *modelpkg.Actor) ([]byte, error) {
	if e.SerializeFn == nil {
		return modelpkg.EncodeActorState(a)
	}
	return e.SerializeFn(a)
}

func (e Env) RemoveActor(actorID string) {
	if e.RemoveActorFn != nil {
		e.RemoveActorFn(actorID)
	}
}

func (e Env) SpawnActor(typeID string, state []byte, pos modelpkg.Vec3i) (*modelpkg.Actor, error) {
	if e.SpawnActorFn == nil {
		return nil, errors.New("transit: no spawner")
	}
	return e.SpawnActorFn(typeID, state, pos)
}

func (e Env) SetLure(actorID string, node modelpkg.NodeRef) {
	if e.SetLureFn != nil {
		e.SetLureFn(actorID, node)
	}
}

func (e Env) ClearLure(actorID string) {
	if e.ClearLureFn != nil {
		e.ClearLureFn(actorID)
	}
}

func (e Env) LuredActors(node modelpkg.NodeRef) []string {
	if e.LuredActorsFn == nil {
		return nil
	}
	return e.LuredActorsFn(node)
}

func (e Env) SetImmunity(actorID string, until uint64) {
	if e.SetImmunityFn != nil {
		e.SetImmunityFn(actorID, until)
	}
}

func (e Env) HandOff(from modelpkg.NodeRef, t ticket.Ticket) error {
	if e.HandOffFn == nil {
		return ErrPeerMissing
	}
	return e.HandOffFn(from, t)
}

func (e Env) RandDelay(min, max uint64) uint64 {
	if max < min {
		max = min
	}
	if e.RandDelayFn == nil {
		return min
	}
	return e.RandDelayFn(min, max)
}

func (e Env) NewDebugID() *uuid.UUID {
	if e.NewDebugIDFn == nil {
		return nil
	}
	return e.NewDebugIDFn()
}

func (e Env) Emit(ev Event) {
	if e.EventFn != nil {
		e.EventFn(ev)
	}
}

func (e Env) NotifyCapture(worldID string, pos modelpkg.Vec3i) error {
	if e.NotifyCaptureFn == nil {
		return nil
	}
	return e.NotifyCaptureFn(worldID, pos)
}

func (e Env) Logf(format string, args ...any) {
	if e.LogfFn != nil {
		e.LogfFn(format, args...)
	}
}
