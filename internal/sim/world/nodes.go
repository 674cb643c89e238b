package world

import (
	"fmt"

	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
)

func (w *World) PlaceInput(pos Vec3i) (NodeRef, error) {
	ref := w.ref(pos)
	if w.nodeAt(pos) {
		return ref, fmt.Errorf("%w: %s", ErrNodeOccupied, ref)
	}
	w.inputs[ref] = runtime.NewInputNode(ref, w.cfg.Transit)
	return ref, nil
}

func (w *World) PlaceOutput(pos Vec3i) (NodeRef, error) {
	ref := w.ref(pos)
	if w.nodeAt(pos) {
		return ref, fmt.Errorf("%w: %s", ErrNodeOccupied, ref)
	}
	w.outputs[ref] = runtime.NewOutputNode(ref, w.cfg.Transit)
	return ref, nil
}

func (w *World) Input(ref NodeRef) (*runtime.InputNode, bool) {
	n := w.inputs[ref]
	return n, n != nil
}

func (w *World) Output(ref NodeRef) (*runtime.OutputNode, bool) {
	n := w.outputs[ref]
	return n, n != nil
}

func (w *World) InputRefs() []NodeRef  { return sortedRefs(w.inputs) }
func (w *World) OutputRefs() []NodeRef { return sortedRefs(w.outputs) }

// Pair links an input to an output directly, bypassing linking sessions.
func (w *World) Pair(in, out NodeRef) error {
	if err := w.registry.Pair(in, out); err != nil {
		return fmt.Errorf("pair %s -> %s: %w", in, out, err)
	}
	return nil
}

// RemoveNode breaks the node's links first, then lets it release everything it
// holds at its own position. Removing an unknown ref reports ErrNodeNotFound.
func (w *World) RemoveNode(ref NodeRef) error {
	now := w.tick.Load()
	if n := w.inputs[ref]; n != nil {
		w.registry.UnpairInput(ref)
		released := n.OnRemoved(now, w.env)
		w.markers.ClearNode(ref)
		dropped := w.sessions.DropInput(ref)
		delete(w.inputs, ref)
		w.logger.Printf("input %s removed: released=%d sessions_dropped=%d", ref, released, dropped)
		return nil
	}
	if n := w.outputs[ref]; n != nil {
		unlinked := w.registry.UnpairOutput(ref)
		released := n.OnRemoved(now, w.env)
		delete(w.outputs, ref)
		w.logger.Printf("output %s removed: released=%d unlinked=%d", ref, released, len(unlinked))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
}

// GrowInput places a new input beside out at the first free offset and pairs it.
func (w *World) GrowInput(outRef NodeRef) (NodeRef, error) {
	out := w.outputs[outRef]
	if out == nil {
		return NodeRef{}, fmt.Errorf("%w: %s", ErrNodeNotFound, outRef)
	}
	// Drop stale fan-in refs before judging the slot limit.
	w.registry.InputsOf(outRef)
	if !out.CanGrow() {
		return NodeRef{}, ErrOutputFull
	}
	for _, off := range runtime.GrowOffsets() {
		pos := outRef.Pos.Add(off)
		if w.nodeAt(pos) {
			continue
		}
		inRef, err := w.PlaceInput(pos)
		if err != nil {
			return NodeRef{}, err
		}
		if err := w.registry.Pair(inRef, outRef); err != nil {
			delete(w.inputs, inRef)
			return NodeRef{}, err
		}
		return inRef, nil
	}
	return NodeRef{}, ErrNoSpace
}
