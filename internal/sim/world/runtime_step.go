package world

// stepInternal runs one tick: queued player requests, lure movement, marker
// expiry, inputs, then outputs. Nodes run in position order.
func (w *World) stepInternal(controls []controlReq) {
	nowTick := w.tick.Load()

	w.handleControlRequests(controls)

	w.systemLureMovement(nowTick)
	w.markers.Expire(nowTick)

	for _, ref := range sortedRefs(w.inputs) {
		if n := w.inputs[ref]; n != nil {
			n.Tick(nowTick, w.env)
		}
	}
	for _, ref := range sortedRefs(w.outputs) {
		if n := w.outputs[ref]; n != nil {
			n.Tick(nowTick, w.env)
		}
	}

	w.publishMetrics(nowTick)
	w.maybeSnapshot(nowTick)

	w.tick.Add(1)
}

func (w *World) maybeSnapshot(nowTick uint64) {
	if w.snapshotSink == nil || w.cfg.SnapshotEveryTicks <= 0 || nowTick == 0 {
		return
	}
	if nowTick%uint64(w.cfg.SnapshotEveryTicks) != 0 {
		return
	}
	snap := w.ExportSnapshot(nowTick)
	select {
	case w.snapshotSink <- snap:
	default:
		w.logger.Printf("snapshot sink busy; skipped tick %d", nowTick)
	}
}
