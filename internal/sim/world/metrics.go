package world

import "mobtransit.ai/internal/sim/world/feature/transit/runtime"

// WorldMetrics is a thread-safe read-only view of key pipeline signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Actors   int `json:"actors"`
	Inputs   int `json:"inputs"`
	Outputs  int `json:"outputs"`
	Sessions int `json:"sessions"`

	Buffered  int `json:"buffered"`
	Pending   int `json:"pending"`
	BackedOff int `json:"backed_off"`

	Captures      uint64 `json:"captures"`
	Transfers     uint64 `json:"transfers"`
	TransferFails uint64 `json:"transfer_fails"`
	Releases      uint64 `json:"releases"`
	Drops         uint64 `json:"drops"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Control int `json:"control"`
	Nodes   int `json:"nodes"`
}

type transitCounters struct {
	Captures      uint64
	Transfers     uint64
	TransferFails uint64
	Releases      uint64
	Drops         uint64
}

func (c *transitCounters) count(kind runtime.EventKind) {
	switch kind {
	case runtime.EventCapture:
		c.Captures++
	case runtime.EventTransfer:
		c.Transfers++
	case runtime.EventTransferFail:
		c.TransferFails++
	case runtime.EventRelease:
		c.Releases++
	case runtime.EventDrop:
		c.Drops++
	}
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(tick uint64) {
	m := WorldMetrics{
		Tick:          tick,
		Actors:        len(w.actors),
		Inputs:        len(w.inputs),
		Outputs:       len(w.outputs),
		Sessions:      w.sessions.Len(),
		Captures:      w.counters.Captures,
		Transfers:     w.counters.Transfers,
		TransferFails: w.counters.TransferFails,
		Releases:      w.counters.Releases,
		Drops:         w.counters.Drops,
		QueueDepths: QueueDepths{
			Control: len(w.control),
			Nodes:   len(w.nodesReq),
		},
	}
	for _, n := range w.inputs {
		m.Buffered += n.BufferSize()
		if n.Backoff().Remaining > 0 {
			m.BackedOff++
		}
	}
	for _, n := range w.outputs {
		m.Pending += n.PendingCount()
	}
	w.metrics.Store(m)
}
