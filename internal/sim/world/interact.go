package world

import (
	"errors"
	"fmt"
	"strings"

	"mobtransit.ai/internal/protocol"
	"mobtransit.ai/internal/sim/world/feature/transit/pairing"
)

// BeginLink starts a link from an unpaired input. Beginning again replaces the
// initiator's previous session.
func (w *World) BeginLink(initiator string, inRef NodeRef) (protocol.NodeStatus, error) {
	in := w.inputs[inRef]
	if in == nil {
		if w.outputs[inRef] != nil {
			return protocol.NodeStatus{}, ErrNotInput
		}
		return protocol.NodeStatus{}, fmt.Errorf("%w: %s", ErrNodeNotFound, inRef)
	}
	if _, ok := w.registry.OutputOf(inRef); ok {
		return w.inputStatus(inRef), ErrAlreadyPaired
	}
	w.sessions.Begin(initiator, inRef)
	return w.inputStatus(inRef), nil
}

// CompleteLink pairs the initiator's session input with outRef and clears the
// session. The session survives a refused pairing so the player can try
// another output.
func (w *World) CompleteLink(initiator string, outRef NodeRef) (protocol.NodeStatus, error) {
	if w.outputs[outRef] == nil {
		if w.inputs[outRef] != nil {
			return protocol.NodeStatus{}, ErrNotOutput
		}
		return protocol.NodeStatus{}, fmt.Errorf("%w: %s", ErrNodeNotFound, outRef)
	}
	inRef, ok := w.sessions.Peek(initiator)
	if !ok {
		return protocol.NodeStatus{}, ErrNoSession
	}
	if w.inputs[inRef] == nil {
		w.sessions.Take(initiator)
		return protocol.NodeStatus{}, ErrNoSession
	}
	// Heal stale fan-in refs so they do not hold slots.
	w.registry.InputsOf(outRef)
	if err := w.registry.Pair(inRef, outRef); err != nil {
		return w.outputStatus(outRef), err
	}
	w.sessions.Take(initiator)
	return w.outputStatus(outRef), nil
}

func (w *World) CancelLink(initiator string) bool {
	return w.sessions.Cancel(initiator)
}

// Unpair detaches an input from its output, or every input from an output.
// A node with no link returns ErrNotPaired.
func (w *World) Unpair(ref NodeRef) (protocol.NodeStatus, error) {
	if w.inputs[ref] != nil {
		if _, ok := w.registry.UnpairInput(ref); !ok {
			return w.inputStatus(ref), ErrNotPaired
		}
		return w.inputStatus(ref), nil
	}
	if w.outputs[ref] != nil {
		if refs := w.registry.UnpairOutput(ref); len(refs) == 0 {
			return w.outputStatus(ref), ErrNotPaired
		}
		return w.outputStatus(ref), nil
	}
	return protocol.NodeStatus{}, fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
}

func (w *World) Status(ref NodeRef) (protocol.NodeStatus, error) {
	if w.inputs[ref] != nil {
		return w.inputStatus(ref), nil
	}
	if w.outputs[ref] != nil {
		return w.outputStatus(ref), nil
	}
	return protocol.NodeStatus{}, fmt.Errorf("%w: %s", ErrNodeNotFound, ref)
}

// Grow adds an input around the output and reports the new input's status.
func (w *World) Grow(outRef NodeRef) (protocol.NodeStatus, error) {
	if w.outputs[outRef] == nil && w.inputs[outRef] != nil {
		return protocol.NodeStatus{}, ErrNotOutput
	}
	inRef, err := w.GrowInput(outRef)
	if err != nil {
		return protocol.NodeStatus{}, err
	}
	return w.inputStatus(inRef), nil
}

// AllStatuses lists every node, inputs first, each group in position order.
func (w *World) AllStatuses() []protocol.NodeStatus {
	out := make([]protocol.NodeStatus, 0, len(w.inputs)+len(w.outputs))
	for _, ref := range sortedRefs(w.inputs) {
		out = append(out, w.inputStatus(ref))
	}
	for _, ref := range sortedRefs(w.outputs) {
		out = append(out, w.outputStatus(ref))
	}
	return out
}

func (w *World) inputStatus(ref NodeRef) protocol.NodeStatus {
	n := w.inputs[ref]
	st := protocol.NodeStatus{
		Node:     protoRef(ref),
		Kind:     protocol.NodeKindInput,
		Buffered: n.BufferSize(),
		Capacity: n.Capacity(),
	}
	if out, ok := w.registry.OutputOf(ref); ok {
		r := protoRef(out.Ref())
		st.Paired = true
		st.PairedOutput = &r
	}
	st.VisualState = string(n.Visual())
	b := n.Backoff()
	st.Backoff = b.Current
	st.BackoffRemaining = b.Remaining
	if eta := n.NextReleaseETA(w.tick.Load()); eta >= 0 {
		st.NextReleaseETA = &eta
	}
	return st
}

func (w *World) outputStatus(ref NodeRef) protocol.NodeStatus {
	n := w.outputs[ref]
	live := w.registry.InputsOf(ref)
	st := protocol.NodeStatus{
		Node:      protoRef(ref),
		Kind:      protocol.NodeKindOutput,
		Paired:    len(live) > 0,
		Pending:   n.PendingCount(),
		MaxInputs: n.MaxInputs(),
	}
	for _, r := range live {
		st.PairedInputs = append(st.PairedInputs, protoRef(r))
	}
	if eta := n.NextReleaseETA(w.tick.Load()); eta >= 0 {
		st.NextReleaseETA = &eta
	}
	return st
}

func protoRef(ref NodeRef) protocol.NodeRef {
	return protocol.NodeRef{WorldID: ref.WorldID, Pos: ref.Pos.ToArray()}
}

// HandleControl applies req immediately. Loop goroutine only; other
// goroutines use Control.
func (w *World) HandleControl(req protocol.ControlRequest) protocol.ControlResponse {
	if strings.TrimSpace(req.Initiator) == "" {
		return protocol.ErrorResponse(req, protocol.ErrBadRequest, "missing initiator")
	}
	if req.Type == protocol.TypeCancelLink {
		if !w.CancelLink(req.Initiator) {
			return protocol.ErrorResponse(req, protocol.ErrNoSession, ErrNoSession.Error())
		}
		return protocol.OKResponse(req, nil)
	}
	if req.Pos == nil {
		return protocol.ErrorResponse(req, protocol.ErrBadRequest, "missing pos")
	}
	if req.WorldID != "" && req.WorldID != w.cfg.ID {
		return protocol.ErrorResponse(req, protocol.ErrBadRequest, ErrWrongWorld.Error())
	}
	ref := w.ref(Vec3i{X: req.Pos[0], Y: req.Pos[1], Z: req.Pos[2]})

	var (
		st  protocol.NodeStatus
		err error
	)
	switch req.Type {
	case protocol.TypeBeginLink:
		st, err = w.BeginLink(req.Initiator, ref)
	case protocol.TypeCompleteLink:
		st, err = w.CompleteLink(req.Initiator, ref)
	case protocol.TypeUnpair:
		st, err = w.Unpair(ref)
	case protocol.TypeStatus:
		st, err = w.Status(ref)
	case protocol.TypeGrow:
		st, err = w.Grow(ref)
	default:
		return protocol.ErrorResponse(req, protocol.ErrBadRequest, "unknown request type: "+req.Type)
	}
	if err != nil {
		resp := protocol.ErrorResponse(req, ErrorCode(err), err.Error())
		if st.Kind != "" {
			resp.Status = &st
		}
		return resp
	}
	return protocol.OKResponse(req, &st)
}

// ErrorCode maps world errors to wire codes.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNodeNotFound), errors.Is(err, pairing.ErrInputNotFound), errors.Is(err, pairing.ErrOutputNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrNoSession):
		return protocol.ErrNoSession
	case errors.Is(err, ErrNotPaired):
		return protocol.ErrNotPaired
	case errors.Is(err, ErrOutputFull):
		return protocol.ErrOutputFull
	case errors.Is(err, ErrNoSpace):
		return protocol.ErrNoSpace
	case errors.Is(err, ErrNotInput), errors.Is(err, ErrNotOutput), errors.Is(err, ErrAlreadyPaired), errors.Is(err, ErrWrongWorld):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
