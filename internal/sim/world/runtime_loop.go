package world

import (
	"context"
	"time"

	"mobtransit.ai/internal/protocol"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.teardown()

	var pendingControl []controlReq
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.control:
			pendingControl = append(pendingControl, req)
		case req := <-w.nodesReq:
			w.handleNodesReq(req)
		case req := <-w.adminSnap:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.stepInternal(pendingControl)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingControl = pendingControl[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// teardown wipes linking sessions so none outlive the loop.
func (w *World) teardown() {
	if n := w.sessions.Len(); n > 0 {
		w.logger.Printf("teardown: clearing %d linking sessions", n)
	}
	w.sessions.Clear()
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server loop. It is intended for tests and tools.
func (w *World) StepOnce(reqs ...protocol.ControlRequest) []protocol.ControlResponse {
	pending := make([]controlReq, 0, len(reqs))
	for _, r := range reqs {
		pending = append(pending, controlReq{Req: r, Resp: make(chan protocol.ControlResponse, 1)})
	}
	w.stepInternal(pending)
	out := make([]protocol.ControlResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, <-p.Resp)
	}
	return out
}

// Teardown is the synchronous counterpart of stopping Run.
func (w *World) Teardown() { w.teardown() }
