package runtime

import (
	"testing"

	"mobtransit.ai/internal/sim/world/feature/transit/ticket"
	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

func sheepTicket(t *testing.T, id string, readyAt uint64) ticket.Ticket {
	t.Helper()
	state, err := modelpkg.EncodeActorState(&modelpkg.Actor{ID: id, Type: "SHEEP", Kind: modelpkg.ActorKindMob, HP: 7, Name: "n-" + id})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return ticket.New("SHEEP", state, 0, readyAt, nil, nil)
}

func TestOutput_AcceptsRaceReleasesOnePerTick(t *testing.T) {
	w := newFakeWorld()
	out := NewOutputNode(nodeRef(10, 10), testParams())
	for i, id := range []string{"M1", "M2", "M3"} {
		if !out.AcceptTicket(sheepTicket(t, id, uint64(i))) {
			t.Fatalf("accept %s rejected", id)
		}
	}
	if out.PendingCount() != 3 {
		t.Fatalf("pending=%d, want 3", out.PendingCount())
	}
	r := out.Tick(100, w.env())
	if !r.Released || out.PendingCount() != 2 {
		t.Fatalf("tick: %+v pending=%d", r, out.PendingCount())
	}
	a := w.spawns[0]
	if a.ID != "M1" || a.Name != "n-M1" || a.HP != 7 || a.Pos != out.Ref().Pos {
		t.Fatalf("reconstructed actor=%+v", a)
	}
	if w.marks.ImmuneUntil("M1") != 120 {
		t.Fatalf("immunity=%d, want 120", w.marks.ImmuneUntil("M1"))
	}
}

func TestOutput_ReleaseWaitsForReadyAndCooldown(t *testing.T) {
	w := newFakeWorld()
	p := testParams()
	p.ReleaseEveryTicks = 5
	out := NewOutputNode(nodeRef(0, 0), p)
	out.AcceptTicket(sheepTicket(t, "M1", 30))
	out.AcceptTicket(sheepTicket(t, "M2", 2))
	env := w.env()

	if r := out.Tick(0, env); r.Released {
		t.Fatalf("released before ready")
	}
	var releasedAt []uint64
	for now := uint64(1); now <= 40; now++ {
		if r := out.Tick(now, env); r.Released {
			releasedAt = append(releasedAt, now)
		}
	}
	if len(releasedAt) != 2 || releasedAt[0] != 5 || releasedAt[1] != 30 {
		t.Fatalf("releasedAt=%v, want [5 30]", releasedAt)
	}
	if w.spawns[0].ID != "M2" {
		t.Fatalf("first release=%s, want the ready ticket M2", w.spawns[0].ID)
	}
}

func TestOutput_UnknownTypeDropped(t *testing.T) {
	w := newFakeWorld()
	out := NewOutputNode(nodeRef(0, 0), testParams())
	out.AcceptTicket(ticket.New("DRAGON", []byte(`{"type":"DRAGON"}`), 0, 0, nil, nil))
	r := out.Tick(1, w.env())
	if !r.Dropped || r.Released {
		t.Fatalf("tick=%+v, want dropped", r)
	}
	if out.PendingCount() != 0 {
		t.Fatalf("dropped ticket must leave pending")
	}
	if w.count(EventDrop) != 1 {
		t.Fatalf("drop events=%d", w.count(EventDrop))
	}
}

func TestOutput_RemovalReleasesEverythingAndRejects(t *testing.T) {
	w := newFakeWorld()
	out := NewOutputNode(nodeRef(7, 7), testParams())
	out.AcceptTicket(sheepTicket(t, "M1", 1000))
	out.AcceptTicket(sheepTicket(t, "M2", 2000))
	if n := out.OnRemoved(5, w.env()); n != 2 {
		t.Fatalf("released=%d, want 2", n)
	}
	for _, a := range w.spawns {
		if a.Pos != out.Ref().Pos {
			t.Fatalf("released at %v", a.Pos)
		}
	}
	if out.AcceptTicket(sheepTicket(t, "M3", 0)) {
		t.Fatalf("removed output accepted a ticket")
	}
	if out.OnRemoved(6, w.env()) != 0 {
		t.Fatalf("OnRemoved not idempotent")
	}
}

func TestOutput_InputSlots(t *testing.T) {
	p := testParams()
	p.MaxInputs = 2
	out := NewOutputNode(nodeRef(0, 0), p)
	if !out.AddInput(nodeRef(2, 0)) || !out.AddInput(nodeRef(1, 0)) {
		t.Fatalf("add within limit failed")
	}
	if !out.AddInput(nodeRef(1, 0)) {
		t.Fatalf("re-adding a present input should succeed")
	}
	if out.AddInput(nodeRef(3, 0)) || out.CanGrow() {
		t.Fatalf("slot limit not enforced")
	}
	if got := out.Inputs(); got[0] != nodeRef(1, 0) {
		t.Fatalf("inputs not sorted: %v", got)
	}
	out.RemoveInput(nodeRef(1, 0))
	if out.InputCount() != 1 || !out.CanGrow() {
		t.Fatalf("remove failed: %v", out.Inputs())
	}
}

func TestOutputState_RoundTrip(t *testing.T) {
	out := NewOutputNode(nodeRef(0, 0), testParams())
	out.AddInput(nodeRef(1, 0))
	out.AcceptTicket(sheepTicket(t, "M1", 9))
	st := out.ExportState()
	st.Pending = append(st.Pending, ticket.Record{})

	cp := NewOutputNode(out.Ref(), testParams())
	if skipped := cp.ImportState(st); skipped != 1 {
		t.Fatalf("skipped=%d, want 1", skipped)
	}
	if !cp.HasInput(nodeRef(1, 0)) || cp.PendingCount() != 1 {
		t.Fatalf("imported inputs=%v pending=%d", cp.Inputs(), cp.PendingCount())
	}
	if !ticket.Equal(cp.Pending()[0], out.Pending()[0]) {
		t.Fatalf("pending ticket mismatch")
	}
	if eta := cp.NextReleaseETA(4); eta != 5 {
		t.Fatalf("eta=%d, want 5", eta)
	}
}

func TestCooldown(t *testing.T) {
	var c Cooldown
	var runs []int
	for i := 0; i < 10; i++ {
		if c.Ready(4) {
			runs = append(runs, i)
		}
	}
	if len(runs) != 3 || runs[0] != 0 || runs[1] != 4 || runs[2] != 8 {
		t.Fatalf("runs=%v, want [0 4 8]", runs)
	}
}
