package world

import (
	"fmt"
	"strconv"
	"strings"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// newActorID returns the next counter id that is not live.
func (w *World) newActorID() string {
	for {
		id := fmt.Sprintf("A%06d", w.nextActorNum.Add(1))
		if w.actors[id] == nil {
			return id
		}
	}
}

// reserveActorID raises the id counter to at least the numeric part of id.
func (w *World) reserveActorID(id string) {
	num, ok := strings.CutPrefix(id, "A")
	if !ok {
		return
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return
	}
	for {
		cur := w.nextActorNum.Load()
		if cur >= n || w.nextActorNum.CompareAndSwap(cur, n) {
			return
		}
	}
}

// AddActor places a. An empty ID gets a fresh one; the type must be in the catalog.
func (w *World) AddActor(a *Actor) (string, error) {
	if a == nil {
		return "", fmt.Errorf("nil actor")
	}
	def, ok := w.catalogs.Actors.Lookup(a.Type)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownActorType, a.Type)
	}
	if a.Kind == "" {
		a.Kind = def.Kind
	}
	if a.HP <= 0 {
		a.HP = def.MaxHP
	}
	if a.ID == "" || w.actors[a.ID] != nil {
		a.ID = w.newActorID()
	}
	w.actors[a.ID] = a
	return a.ID, nil
}

// SpawnNew creates a catalog-default actor of typeID at pos.
func (w *World) SpawnNew(typeID string, pos Vec3i, bonded bool) (*Actor, error) {
	def, ok := w.catalogs.Actors.Lookup(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActorType, typeID)
	}
	a := &Actor{
		Type:        typeID,
		Kind:        def.Kind,
		Pos:         pos,
		HP:          def.MaxHP,
		Bonded:      bonded,
		Attractable: def.Attractable,
	}
	if _, err := w.AddActor(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (w *World) Actor(id string) (*Actor, bool) {
	a := w.actors[id]
	return a, a != nil
}

func (w *World) ActorCount() int { return len(w.actors) }

// ActorsInRadius returns live actors within radius of center, ordered by id.
func (w *World) ActorsInRadius(center Vec3i, radius int) []*Actor {
	var out []*Actor
	for _, id := range modelpkg.SortedActorIDs(w.actors) {
		a := w.actors[id]
		if modelpkg.InRadius(center, a.Pos, radius) {
			out = append(out, a)
		}
	}
	return out
}

// RemoveActor discards the live actor and its markers.
func (w *World) RemoveActor(id string) {
	delete(w.actors, id)
	w.markers.Forget(id)
}

func (w *World) reconstruct(typeID string, blob []byte, pos Vec3i) (*Actor, error) {
	if _, ok := w.catalogs.Actors.Lookup(typeID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActorType, typeID)
	}
	return modelpkg.DecodeActorState(typeID, blob, pos)
}

// SpawnActor reconstructs and places an actor. The original id is kept unless
// it is already taken. Unknown types and corrupt blobs return a nil actor and
// an error.
func (w *World) SpawnActor(typeID string, blob []byte, pos Vec3i) (*Actor, error) {
	a, err := w.reconstruct(typeID, blob, pos)
	if err != nil {
		return nil, err
	}
	if a.ID == "" || w.actors[a.ID] != nil {
		a.ID = w.newActorID()
	}
	w.actors[a.ID] = a
	return a, nil
}

func (w *World) sortedActors() []*Actor {
	ids := modelpkg.SortedActorIDs(w.actors)
	out := make([]*Actor, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.actors[id])
	}
	return out
}

// nodeAt reports whether any node occupies pos.
func (w *World) nodeAt(pos Vec3i) bool {
	ref := w.ref(pos)
	return w.inputs[ref] != nil || w.outputs[ref] != nil
}

func sortedRefs[T any](m map[NodeRef]T) []NodeRef {
	out := make([]NodeRef, 0, len(m))
	for ref := range m {
		out = append(out, ref)
	}
	modelpkg.SortNodeRefs(out)
	return out
}
