package world

import (
	"sort"

	"mobtransit.ai/internal/sim/world/feature/transit/runtime"
)

type TransitLogger interface {
	WriteTransit(entry TransitLogEntry) error
}

type TransitLogEntry struct {
	Tick      uint64 `json:"tick"`
	WorldID   string `json:"world_id"`
	Kind      string `json:"kind"`
	Node      [3]int `json:"node"`
	Pos       [3]int `json:"pos"`
	ActorType string `json:"actor_type,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	Backoff   uint64 `json:"backoff,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func TransitLogEntryFromEvent(ev runtime.Event) TransitLogEntry {
	return TransitLogEntry{
		Tick:      ev.Tick,
		WorldID:   ev.Node.WorldID,
		Kind:      string(ev.Kind),
		Node:      ev.Node.Pos.ToArray(),
		Pos:       ev.Pos.ToArray(),
		ActorType: ev.ActorType,
		ActorID:   ev.ActorID,
		Backoff:   ev.Backoff,
		Reason:    ev.Reason,
	}
}

func (w *World) recordEvent(ev runtime.Event) {
	w.counters.count(ev.Kind)
	if w.transitLogger != nil {
		if err := w.transitLogger.WriteTransit(TransitLogEntryFromEvent(ev)); err != nil {
			w.logger.Printf("transit log: %v", err)
		}
	}

	w.eventMu.Lock()
	ids := make([]int, 0, len(w.eventListeners))
	for id := range w.eventListeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(runtime.Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, w.eventListeners[id])
	}
	w.eventMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
