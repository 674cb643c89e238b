// Package pairing keeps the Input→Output link symmetric. Nodes only store refs;
// every mutation goes through Registry so both sides change together.
package pairing

import (
	"errors"
	"log"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

var (
	ErrInputNotFound  = errors.New("pairing: input not found")
	ErrOutputNotFound = errors.New("pairing: output not found")
	ErrOutputFull     = errors.New("pairing: output has no free input slot")
)

type Input interface {
	Ref() modelpkg.NodeRef
	PairedOutput() (modelpkg.NodeRef, bool)
	SetPairedOutput(ref modelpkg.NodeRef)
	ClearPairedOutput()
}

type Output interface {
	Ref() modelpkg.NodeRef
	HasInput(ref modelpkg.NodeRef) bool
	AddInput(ref modelpkg.NodeRef) bool
	RemoveInput(ref modelpkg.NodeRef)
	Inputs() []modelpkg.NodeRef
	InputCount() int
	MaxInputs() int
}

// Resolver looks nodes up by ref. A missing node is a normal answer, not an error.
type Resolver interface {
	Input(ref modelpkg.NodeRef) (Input, bool)
	Output(ref modelpkg.NodeRef) (Output, bool)
}

type Registry struct {
	res Resolver
	log *log.Logger
}

func NewRegistry(res Resolver, logger *log.Logger) *Registry {
	return &Registry{res: res, log: logger}
}

// Pair links in to out, first detaching in from any previous output. The slot
// limit is checked before anything is touched.
func (r *Registry) Pair(inRef, outRef modelpkg.NodeRef) error {
	in, ok := r.res.Input(inRef)
	if !ok {
		return ErrInputNotFound
	}
	out, ok := r.res.Output(outRef)
	if !ok {
		return ErrOutputNotFound
	}
	if cur, ok := in.PairedOutput(); ok && cur == outRef && out.HasInput(inRef) {
		return nil
	}
	if !out.HasInput(inRef) && out.InputCount() >= out.MaxInputs() {
		return ErrOutputFull
	}
	r.UnpairInput(inRef)
	in.SetPairedOutput(outRef)
	if !out.AddInput(inRef) {
		in.ClearPairedOutput()
		return ErrOutputFull
	}
	return nil
}

// UnpairInput clears in's link and removes in from its output. It returns the
// output that was linked, if any.
func (r *Registry) UnpairInput(inRef modelpkg.NodeRef) (modelpkg.NodeRef, bool) {
	in, ok := r.res.Input(inRef)
	if !ok {
		return modelpkg.NodeRef{}, false
	}
	old, ok := in.PairedOutput()
	if !ok {
		return modelpkg.NodeRef{}, false
	}
	in.ClearPairedOutput()
	if out, ok := r.res.Output(old); ok {
		out.RemoveInput(inRef)
	}
	return old, true
}

// UnpairOutput detaches every input linked to out and returns their refs.
func (r *Registry) UnpairOutput(outRef modelpkg.NodeRef) []modelpkg.NodeRef {
	out, ok := r.res.Output(outRef)
	if !ok {
		return nil
	}
	refs := out.Inputs()
	for _, inRef := range refs {
		out.RemoveInput(inRef)
		in, ok := r.res.Input(inRef)
		if !ok {
			continue
		}
		if cur, ok := in.PairedOutput(); ok && cur == outRef {
			in.ClearPairedOutput()
		}
	}
	return refs
}

// OutputOf dereferences in's paired output. A link that no longer resolves, or
// that the output does not acknowledge, is cleared on the spot.
func (r *Registry) OutputOf(inRef modelpkg.NodeRef) (Output, bool) {
	in, ok := r.res.Input(inRef)
	if !ok {
		return nil, false
	}
	outRef, ok := in.PairedOutput()
	if !ok {
		return nil, false
	}
	out, ok := r.res.Output(outRef)
	if !ok {
		in.ClearPairedOutput()
		r.warnf("pairing: input %s linked to missing output %s; link cleared", inRef, outRef)
		return nil, false
	}
	if !out.HasInput(inRef) {
		in.ClearPairedOutput()
		r.warnf("pairing: output %s does not list input %s; link cleared", outRef, inRef)
		return nil, false
	}
	return out, true
}

// InputsOf returns out's live inputs, dropping refs whose input vanished or moved on.
func (r *Registry) InputsOf(outRef modelpkg.NodeRef) []modelpkg.NodeRef {
	out, ok := r.res.Output(outRef)
	if !ok {
		return nil
	}
	var live []modelpkg.NodeRef
	for _, inRef := range out.Inputs() {
		in, ok := r.res.Input(inRef)
		if !ok {
			out.RemoveInput(inRef)
			r.warnf("pairing: output %s lists missing input %s; link cleared", outRef, inRef)
			continue
		}
		if cur, ok := in.PairedOutput(); !ok || cur != outRef {
			out.RemoveInput(inRef)
			r.warnf("pairing: input %s no longer points at output %s; link cleared", inRef, outRef)
			continue
		}
		live = append(live, inRef)
	}
	return live
}

// Paired reports whether in and out are linked on both sides.
func (r *Registry) Paired(inRef, outRef modelpkg.NodeRef) bool {
	in, ok := r.res.Input(inRef)
	if !ok {
		return false
	}
	out, ok := r.res.Output(outRef)
	if !ok {
		return false
	}
	cur, ok := in.PairedOutput()
	return ok && cur == outRef && out.HasInput(inRef)
}

func (r *Registry) warnf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
