// Package markers holds per-actor pipeline state that must not live on the actor record:
// which Input is luring an actor and until which tick a released actor is immune to capture.
package markers

import (
	"sort"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

type Marker struct {
	LuredBy     *modelpkg.NodeRef
	ImmuneUntil uint64
}

func (m Marker) empty() bool { return m.LuredBy == nil && m.ImmuneUntil == 0 }

// Table is owned by the world and mutated only from the tick goroutine.
type Table struct {
	byActor map[string]Marker
	lured   map[modelpkg.NodeRef]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		byActor: map[string]Marker{},
		lured:   map[modelpkg.NodeRef]map[string]struct{}{},
	}
}

func (t *Table) Get(actorID string) (Marker, bool) {
	m, ok := t.byActor[actorID]
	return m, ok
}

func (t *Table) ImmuneUntil(actorID string) uint64 { return t.byActor[actorID].ImmuneUntil }

func (t *Table) LuredBy(actorID string) (modelpkg.NodeRef, bool) {
	m := t.byActor[actorID]
	if m.LuredBy == nil {
		return modelpkg.NodeRef{}, false
	}
	return *m.LuredBy, true
}

// SetLure points actorID at node. An actor is lured by at most one node; the
// previous lure (if any) is replaced.
func (t *Table) SetLure(actorID string, node modelpkg.NodeRef) {
	if actorID == "" {
		return
	}
	m := t.byActor[actorID]
	if m.LuredBy != nil {
		if *m.LuredBy == node {
			return
		}
		t.unindex(*m.LuredBy, actorID)
	}
	ref := node
	m.LuredBy = &ref
	t.byActor[actorID] = m
	set := t.lured[node]
	if set == nil {
		set = map[string]struct{}{}
		t.lured[node] = set
	}
	set[actorID] = struct{}{}
}

func (t *Table) ClearLure(actorID string) {
	m, ok := t.byActor[actorID]
	if !ok || m.LuredBy == nil {
		return
	}
	t.unindex(*m.LuredBy, actorID)
	m.LuredBy = nil
	t.store(actorID, m)
}

// LuredActors returns, sorted, every actor currently lured by node regardless of where it is.
func (t *Table) LuredActors(node modelpkg.NodeRef) []string {
	set := t.lured[node]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearNode drops every lure pointing at node and returns the affected actors.
func (t *Table) ClearNode(node modelpkg.NodeRef) []string {
	ids := t.LuredActors(node)
	for _, id := range ids {
		t.ClearLure(id)
	}
	return ids
}

func (t *Table) SetImmunity(actorID string, until uint64) {
	if actorID == "" {
		return
	}
	m := t.byActor[actorID]
	m.ImmuneUntil = until
	t.store(actorID, m)
}

// Forget removes all markers of an actor that left the world.
func (t *Table) Forget(actorID string) {
	t.ClearLure(actorID)
	delete(t.byActor, actorID)
}

// Expire drops immunity windows that ended before now.
func (t *Table) Expire(now uint64) {
	for id, m := range t.byActor {
		if m.ImmuneUntil != 0 && m.ImmuneUntil <= now {
			m.ImmuneUntil = 0
			t.store(id, m)
		}
	}
}

// Reset drops every marker.
func (t *Table) Reset() {
	t.byActor = map[string]Marker{}
	t.lured = map[modelpkg.NodeRef]map[string]struct{}{}
}

func (t *Table) Len() int { return len(t.byActor) }

// SortedActorIDs lists actors with any marker set.
func (t *Table) SortedActorIDs() []string {
	out := make([]string, 0, len(t.byActor))
	for id := range t.byActor {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Table) store(actorID string, m Marker) {
	if m.empty() {
		delete(t.byActor, actorID)
		return
	}
	t.byActor[actorID] = m
}

func (t *Table) unindex(node modelpkg.NodeRef, actorID string) {
	set := t.lured[node]
	if set == nil {
		return
	}
	delete(set, actorID)
	if len(set) == 0 {
		delete(t.lured, node)
	}
}
