package main

import (
	"mobtransit.ai/internal/sim/world"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// seedDemoWorld places one linked pipeline with a small herd near its input.
// It must run before the world loop starts.
func seedDemoWorld(w *world.World) error {
	in, err := w.PlaceInput(modelpkg.Vec3i{X: 0, Y: 64, Z: 0})
	if err != nil {
		return err
	}
	out, err := w.PlaceOutput(modelpkg.Vec3i{X: 32, Y: 64, Z: 0})
	if err != nil {
		return err
	}
	if err := w.Pair(in, out); err != nil {
		return err
	}
	herd := []struct {
		typ string
		pos modelpkg.Vec3i
	}{
		{"SHEEP", modelpkg.Vec3i{X: 3, Y: 64, Z: 1}},
		{"SHEEP", modelpkg.Vec3i{X: -2, Y: 64, Z: 4}},
		{"COW", modelpkg.Vec3i{X: 5, Y: 64, Z: -3}},
		{"PIG", modelpkg.Vec3i{X: -4, Y: 64, Z: -2}},
		{"VILLAGER", modelpkg.Vec3i{X: 2, Y: 64, Z: 6}},
	}
	for _, h := range herd {
		if _, err := w.SpawnNew(h.typ, h.pos, true); err != nil {
			return err
		}
	}
	return nil
}
