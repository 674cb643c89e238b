package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

type ActorKind string

const (
	ActorKindPlayer ActorKind = "PLAYER"
	ActorKindMob    ActorKind = "MOB"
	// Static entities (item frames, projectiles, ...) are never mobile.
	ActorKindObject ActorKind = "OBJECT"
)

// Actor is a mobile entity in the world. Pipeline markers (lure target, release
// immunity) are not stored here; they live in the transit marker table.
type Actor struct {
	ID   string
	Type string
	Kind ActorKind
	Name string

	Pos Vec3i
	HP  int

	Equipment  map[string]string
	Attributes map[string]int

	// Bonded actors are bound to a player companion; unbonded capture is a config switch.
	Bonded bool
	// Attractable actors react to an Input's lure.
	Attractable bool
	// Priority actors are tried first when several candidates are in capture range.
	Priority bool
}

func (a *Actor) IsPlayer() bool { return a != nil && a.Kind == ActorKindPlayer }

func (a *Actor) IsMobile() bool { return a != nil && a.Kind == ActorKindMob }

// ActorState is the serialized form of an actor captured into a ticket.
// Position is not part of it: reconstruction places the actor at the releasing node.
type ActorState struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Kind        ActorKind         `json:"kind"`
	Name        string            `json:"name,omitempty"`
	HP          int               `json:"hp"`
	Equipment   map[string]string `json:"equipment,omitempty"`
	Attributes  map[string]int    `json:"attributes,omitempty"`
	Bonded      bool              `json:"bonded,omitempty"`
	Attractable bool              `json:"attractable,omitempty"`
	Priority    bool              `json:"priority,omitempty"`
}

var ErrCorruptState = errors.New("corrupt actor state")

func EncodeActorState(a *Actor) ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil actor")
	}
	st := ActorState{
		ID:          a.ID,
		Type:        a.Type,
		Kind:        a.Kind,
		Name:        a.Name,
		HP:          a.HP,
		Equipment:   copyStringMap(a.Equipment),
		Attributes:  copyIntMap(a.Attributes),
		Bonded:      a.Bonded,
		Attractable: a.Attractable,
		Priority:    a.Priority,
	}
	return json.Marshal(st)
}

// DecodeActorState rebuilds an actor of typeID from blob. The blob's own type
// must agree with typeID; disagreement is treated as corruption.
func DecodeActorState(typeID string, blob []byte, pos Vec3i) (*Actor, error) {
	if len(blob) == 0 {
		return nil, ErrCorruptState
	}
	var st ActorState
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if st.Type == "" {
		st.Type = typeID
	}
	if st.Type != typeID {
		return nil, fmt.Errorf("%w: type %q in blob, want %q", ErrCorruptState, st.Type, typeID)
	}
	if st.Kind == "" {
		st.Kind = ActorKindMob
	}
	return &Actor{
		ID:          st.ID,
		Type:        st.Type,
		Kind:        st.Kind,
		Name:        st.Name,
		Pos:         pos,
		HP:          st.HP,
		Equipment:   copyStringMap(st.Equipment),
		Attributes:  copyIntMap(st.Attributes),
		Bonded:      st.Bonded,
		Attractable: st.Attractable,
		Priority:    st.Priority,
	}, nil
}

func SortedActorIDs(actors map[string]*Actor) []string {
	if len(actors) == 0 {
		return nil
	}
	out := make([]string, 0, len(actors))
	for id, a := range actors {
		if id == "" || a == nil {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyIntMap(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
