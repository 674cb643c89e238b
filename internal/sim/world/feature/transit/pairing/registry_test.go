package pairing

import (
	"bytes"
	"log"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type fakeInput struct {
	ref    modelpkg.NodeRef
	paired *modelpkg.NodeRef
}

func (f *fakeInput) Ref() modelpkg.NodeRef { return f.ref }
func (f *fakeInput) PairedOutput() (modelpkg.NodeRef, bool) {
	if f.paired == nil {
		return modelpkg.NodeRef{}, false
	}
	return *f.paired, true
}
func (f *fakeInput) SetPairedOutput(ref modelpkg.NodeRef) { f.paired = &ref }
func (f *fakeInput) ClearPairedOutput()                   { f.paired = nil }

type fakeOutput struct {
	ref    modelpkg.NodeRef
	max    int
	inputs map[modelpkg.NodeRef]bool
}

func (f *fakeOutput) Ref() modelpkg.NodeRef              { return f.ref }
func (f *fakeOutput) HasInput(ref modelpkg.NodeRef) bool { return f.inputs[ref] }
func (f *fakeOutput) RemoveInput(ref modelpkg.NodeRef)   { delete(f.inputs, ref) }
func (f *fakeOutput) InputCount() int                    { return len(f.inputs) }
func (f *fakeOutput) MaxInputs() int                     { return f.max }
func (f *fakeOutput) AddInput(ref modelpkg.NodeRef) bool {
	if !f.inputs[ref] && len(f.inputs) >= f.max {
		return false
	}
	f.inputs[ref] = true
	return true
}
func (f *fakeOutput) Inputs() []modelpkg.NodeRef {
	out := make([]modelpkg.NodeRef, 0, len(f.inputs))
	for r := range f.inputs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return modelpkg.LessNodeRef(out[i], out[j]) })
	return out
}

type fakeWorld struct {
	inputs  map[modelpkg.NodeRef]*fakeInput
	outputs map[modelpkg.NodeRef]*fakeOutput
}

func (w *fakeWorld) Input(ref modelpkg.NodeRef) (Input, bool) {
	n, ok := w.inputs[ref]
	if !ok {
		return nil, false
	}
	return n, true
}

func (w *fakeWorld) Output(ref modelpkg.NodeRef) (Output, bool) {
	n, ok := w.outputs[ref]
	if !ok {
		return nil, false
	}
	return n, true
}

func ref(x int) modelpkg.NodeRef { return modelpkg.NodeRef{WorldID: "W", Pos: modelpkg.Vec3i{X: x}} }

func newFakeWorld() *fakeWorld {
	return &fakeWorld{inputs: map[modelpkg.NodeRef]*fakeInput{}, outputs: map[modelpkg.NodeRef]*fakeOutput{}}
}

func (w *fakeWorld) addInput(x int) *fakeInput {
	n := &fakeInput{ref: ref(x)}
	w.inputs[n.ref] = n
	return n
}

func (w *fakeWorld) addOutput(x, max int) *fakeOutput {
	n := &fakeOutput{ref: ref(x), max: max, inputs: map[modelpkg.NodeRef]bool{}}
	w.outputs[n.ref] = n
	return n
}

func TestPair_Symmetry(t *testing.T) {
	w := newFakeWorld()
	in := w.addInput(1)
	out := w.addOutput(10, 4)
	reg := NewRegistry(w, nil)

	require.NoError(t, reg.Pair(in.ref, out.ref))
	got, ok := in.PairedOutput()
	require.True(t, ok)
	require.Equal(t, out.ref, got)
	require.True(t, out.HasInput(in.ref))
	require.True(t, reg.Paired(in.ref, out.ref))

	old, ok := reg.UnpairInput(in.ref)
	require.True(t, ok)
	require.Equal(t, out.ref, old)
	_, ok = in.PairedOutput()
	require.False(t, ok)
	require.False(t, out.HasInput(in.ref))
}

func TestPair_RepairMovesInputOffOldOutput(t *testing.T) {
	w := newFakeWorld()
	in := w.addInput(1)
	a := w.addOutput(10, 4)
	b := w.addOutput(20, 4)
	reg := NewRegistry(w, nil)

	require.NoError(t, reg.Pair(in.ref, a.ref))
	require.NoError(t, reg.Pair(in.ref, b.ref))
	require.False(t, a.HasInput(in.ref), "old output still lists input")
	require.True(t, b.HasInput(in.ref))
	require.NoError(t, reg.Pair(in.ref, b.ref), "re-pairing to same output is a no-op")
	require.Equal(t, 1, b.InputCount())
}

func TestPair_SlotLimitLeavesNoHalfLink(t *testing.T) {
	w := newFakeWorld()
	in1 := w.addInput(1)
	in2 := w.addInput(2)
	prev := w.addOutput(5, 4)
	out := w.addOutput(10, 1)
	reg := NewRegistry(w, nil)

	require.NoError(t, reg.Pair(in1.ref, out.ref))
	require.NoError(t, reg.Pair(in2.ref, prev.ref))
	require.ErrorIs(t, reg.Pair(in2.ref, out.ref), ErrOutputFull)
	require.True(t, reg.Paired(in2.ref, prev.ref), "failed pair must keep the previous link")
	require.False(t, out.HasInput(in2.ref))
}

func TestPair_MissingNodes(t *testing.T) {
	w := newFakeWorld()
	in := w.addInput(1)
	out := w.addOutput(10, 4)
	reg := NewRegistry(w, nil)
	require.ErrorIs(t, reg.Pair(ref(99), out.ref), ErrInputNotFound)
	require.ErrorIs(t, reg.Pair(in.ref, ref(99)), ErrOutputNotFound)
}

func TestUnpairOutput_Cascades(t *testing.T) {
	w := newFakeWorld()
	out := w.addOutput(10, 4)
	var ins []*fakeInput
	reg := NewRegistry(w, nil)
	for i := 1; i <= 3; i++ {
		in := w.addInput(i)
		ins = append(ins, in)
		require.NoError(t, reg.Pair(in.ref, out.ref))
	}
	refs := reg.UnpairOutput(out.ref)
	require.Len(t, refs, 3)
	require.Zero(t, out.InputCount())
	for _, in := range ins {
		_, ok := in.PairedOutput()
		require.False(t, ok)
	}
}

func TestOutputOf_SelfHealsDanglingLink(t *testing.T) {
	w := newFakeWorld()
	in := w.addInput(1)
	out := w.addOutput(10, 4)
	var logs bytes.Buffer
	reg := NewRegistry(w, log.New(&logs, "", 0))
	require.NoError(t, reg.Pair(in.ref, out.ref))

	delete(w.outputs, out.ref)
	_, ok := reg.OutputOf(in.ref)
	require.False(t, ok)
	_, ok = in.PairedOutput()
	require.False(t, ok, "stale link should be cleared on read")
	require.Contains(t, logs.String(), "missing output")

	logs.Reset()
	_, ok = reg.OutputOf(in.ref)
	require.False(t, ok)
	require.Empty(t, logs.String(), "healed link must not warn again")
}

func TestInputsOf_SelfHeals(t *testing.T) {
	w := newFakeWorld()
	in1 := w.addInput(1)
	in2 := w.addInput(2)
	out := w.addOutput(10, 4)
	reg := NewRegistry(w, nil)
	require.NoError(t, reg.Pair(in1.ref, out.ref))
	require.NoError(t, reg.Pair(in2.ref, out.ref))

	delete(w.inputs, in1.ref)
	in2.ClearPairedOutput()
	require.Empty(t, reg.InputsOf(out.ref))
	require.Zero(t, out.InputCount())
}
