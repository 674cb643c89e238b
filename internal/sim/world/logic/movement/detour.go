package movement

import modelpkg "mobtransit.ai/internal/sim/world/kernel/model"

// DetourStep finds a free neighbor of start, on start's Y plane, that leads to
// a cell strictly closer to target within maxDepth steps. The search uses a
// fixed neighbor order so the same world always picks the same step.
//
// Returns (nextStep, true) on success. nextStep is always one of the four
// horizontal neighbors of start.
func DetourStep(start, target modelpkg.Vec3i, maxDepth int, blocked func(modelpkg.Vec3i) bool) (modelpkg.Vec3i, bool) {
	if maxDepth <= 0 {
		return modelpkg.Vec3i{}, false
	}
	startDist := modelpkg.Manhattan(start, target)

	type qItem struct {
		p     modelpkg.Vec3i
		depth int
		first modelpkg.Vec3i
	}

	dirs := []modelpkg.Vec3i{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

	visited := make(map[modelpkg.Vec3i]bool, 64)
	visited[start] = true

	queue := make([]qItem, 0, 64)
	for _, d := range dirs {
		np := start.Add(d)
		if blocked(np) {
			continue
		}
		visited[np] = true
		queue = append(queue, qItem{p: np, depth: 1, first: np})
	}

	bestDist := startDist
	bestDepth := 0
	var bestFirst modelpkg.Vec3i
	found := false

	better := func(dist, depth int, first modelpkg.Vec3i) bool {
		if !found {
			return true
		}
		if dist != bestDist {
			return dist < bestDist
		}
		if depth != bestDepth {
			return depth < bestDepth
		}
		if first.X != bestFirst.X {
			return first.X < bestFirst.X
		}
		return first.Z < bestFirst.Z
	}

	for head := 0; head < len(queue); head++ {
		it := queue[head]

		if d := modelpkg.Manhattan(it.p, target); d < startDist && better(d, it.depth, it.first) {
			found = true
			bestDist = d
			bestDepth = it.depth
			bestFirst = it.first
		}

		if it.depth >= maxDepth {
			continue
		}
		for _, dir := range dirs {
			np := it.p.Add(dir)
			if visited[np] || blocked(np) {
				continue
			}
			visited[np] = true
			queue = append(queue, qItem{p: np, depth: it.depth + 1, first: it.first})
		}
	}

	if !found {
		return modelpkg.Vec3i{}, false
	}
	return bestFirst, true
}
