package ticket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// Record is the wire/persistence form. Optional fields are omitted when absent
// and unknown fields are ignored on decode.
type Record struct {
	ActorType  string      `json:"actor_type"`
	State      []byte      `json:"state"`
	CapturedAt uint64      `json:"captured_at"`
	ReadyAt    uint64      `json:"ready_at"`
	Dest       *DestRecord `json:"dest,omitempty"`
	DebugID    string      `json:"debug_id,omitempty"`
}

type DestRecord struct {
	WorldID string `json:"world_id"`
	Pos     [3]int `json:"pos"`
}

var ErrMissingActorType = errors.New("ticket: missing actor_type")

func (t Ticket) Record() Record {
	r := Record{
		ActorType:  t.actorType,
		State:      cloneBytes(t.state),
		CapturedAt: t.capturedAt,
		ReadyAt:    t.readyAt,
	}
	if t.dest != nil {
		r.Dest = &DestRecord{WorldID: t.dest.WorldID, Pos: t.dest.Pos.ToArray()}
	}
	if t.debugID != nil {
		r.DebugID = t.debugID.String()
	}
	return r
}

// FromRecord restores a ticket without re-validating readyAt, so tickets made by
// WithImmediateRelease survive persistence unchanged. A malformed debug id is
// treated as absent.
func FromRecord(r Record) (Ticket, error) {
	if r.ActorType == "" {
		return Ticket{}, ErrMissingActorType
	}
	t := Ticket{
		actorType:  r.ActorType,
		state:      cloneBytes(r.State),
		capturedAt: r.CapturedAt,
		readyAt:    r.ReadyAt,
	}
	if r.Dest != nil {
		t.dest = &modelpkg.NodeRef{WorldID: r.Dest.WorldID, Pos: modelpkg.Vec3iFromArray(r.Dest.Pos)}
	}
	if r.DebugID != "" {
		if id, err := uuid.Parse(r.DebugID); err == nil {
			t.debugID = &id
		}
	}
	return t, nil
}

func Encode(t Ticket) ([]byte, error) { return json.Marshal(t.Record()) }

func Decode(b []byte) (Ticket, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Ticket{}, fmt.Errorf("ticket: %w", err)
	}
	return FromRecord(r)
}

func EncodeList(ts []Ticket) ([]byte, error) {
	rs := make([]Record, 0, len(ts))
	for _, t := range ts {
		rs = append(rs, t.Record())
	}
	return json.Marshal(rs)
}

// DecodeList skips entries that cannot be restored and reports how many were skipped.
func DecodeList(b []byte) ([]Ticket, int, error) {
	var rs []Record
	if err := json.Unmarshal(b, &rs); err != nil {
		return nil, 0, fmt.Errorf("ticket list: %w", err)
	}
	out := make([]Ticket, 0, len(rs))
	skipped := 0
	for _, r := range rs {
		t, err := FromRecord(r)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, t)
	}
	return out, skipped, nil
}
