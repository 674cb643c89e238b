package world

import (
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
	"mobtransit.ai/internal/sim/world/logic/movement"
)

const lureDetourDepth = 4

// systemLureMovement walks every lured actor one block toward the input that
// lures it. Actors stop beside the node and walk around other nodes in the way.
func (w *World) systemLureMovement(nowTick uint64) int {
	every := uint64(w.cfg.LureStepEveryTicks)
	if every == 0 || nowTick%every != 0 {
		return 0
	}
	moved := 0
	for _, a := range w.sortedActors() {
		ref, ok := w.markers.LuredBy(a.ID)
		if !ok {
			continue
		}
		if n := w.inputs[ref]; n == nil || n.Removed() {
			w.markers.ClearLure(a.ID)
			continue
		}
		if modelpkg.Manhattan(a.Pos, ref.Pos) <= 1 {
			continue
		}
		next := modelpkg.StepToward(a.Pos, ref.Pos)
		if w.nodeAt(next) {
			var ok bool
			next, ok = movement.DetourStep(a.Pos, ref.Pos, lureDetourDepth, w.nodeAt)
			if !ok {
				continue
			}
		}
		a.Pos = next
		moved++
	}
	return moved
}
