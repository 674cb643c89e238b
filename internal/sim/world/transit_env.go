package world

import (
	"math"

	"github.com/google/uuid"

	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

func (w *World) transitEnv() runtime.Env {
	return runtime.Env{
		Eligibility:      w.filter,
		ActorsInRadiusFn: w.ActorsInRadius,
		SerializeFn:      modelpkg.EncodeActorState,
		RemoveActorFn:    w.RemoveActor,
		SpawnActorFn:     w.SpawnActor,
		SetLureFn:        w.markers.SetLure,
		ClearLureFn:      w.markers.ClearLure,
		LuredActorsFn:    w.markers.LuredActors,
		SetImmunityFn:    w.markers.SetImmunity,
		HandOffFn:        w.handOff,
		RandDelayFn:      w.randDelay,
		NewDebugIDFn:     newDebugID,
		EventFn:          w.recordEvent,
		NotifyCaptureFn:  w.notifyCapture,
		LogfFn:           w.logger.Printf,
	}
}

// handOff moves t from the input at from to its paired output. A stale pairing
// is healed by the registry and reported as a missing peer.
func (w *World) handOff(from NodeRef, t ticket.Ticket) error {
	in := w.inputs[from]
	if in == nil {
		return runtime.ErrPeerMissing
	}
	if _, ok := in.PairedOutput(); !ok {
		return runtime.ErrUnpaired
	}
	out, ok := w.registry.OutputOf(from)
	if !ok {
		return runtime.ErrPeerMissing
	}
	node, ok := out.(*runtime.OutputNode)
	if !ok || !node.AcceptTicket(t) {
		return runtime.ErrPeerRejected
	}
	return nil
}

func (w *World) randDelay(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	span := max - min
	if span >= math.MaxInt64 {
		span = math.MaxInt64 - 1
	}
	return min + uint64(w.rng.Int63n(int64(span)+1))
}

func newDebugID() *uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return nil
	}
	return &id
}

func (w *World) notifyCapture(worldID string, pos Vec3i) error {
	var first error
	for _, fn := range w.captureListeners {
		if err := fn(worldID, pos); err != nil && first == nil {
			first = err
		}
	}
	return first
}
