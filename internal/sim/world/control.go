package world

import (
	"context"
	"errors"

	"mobtransit.ai/internal/protocol"
)

var ErrWorldBusy = errors.New("world request queue full")

type controlReq struct {
	Req  protocol.ControlRequest
	Resp chan protocol.ControlResponse
}

type nodesReq struct {
	Resp chan []protocol.NodeStatus
}

// Control queues req for the next tick boundary and waits for its result.
// It is safe to call from other goroutines (e.g. transport handlers).
func (w *World) Control(ctx context.Context, req protocol.ControlRequest) (protocol.ControlResponse, error) {
	resp := make(chan protocol.ControlResponse, 1)
	select {
	case w.control <- controlReq{Req: req, Resp: resp}:
	case <-ctx.Done():
		return protocol.ControlResponse{}, ctx.Err()
	default:
		return protocol.ErrorResponse(req, protocol.ErrWorldBusy, ErrWorldBusy.Error()), ErrWorldBusy
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return protocol.ControlResponse{}, ctx.Err()
	}
}

// NodeStatuses asks the world loop for the status of every node.
func (w *World) NodeStatuses(ctx context.Context) ([]protocol.NodeStatus, error) {
	resp := make(chan []protocol.NodeStatus, 1)
	select {
	case w.nodesReq <- nodesReq{Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *World) handleControlRequests(reqs []controlReq) {
	for _, r := range reqs {
		r.Resp <- w.HandleControl(r.Req)
	}
}

func (w *World) handleNodesReq(req nodesReq) {
	req.Resp <- w.AllStatuses()
}
