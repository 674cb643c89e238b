// Package buffer implements the bounded ticket store owned by a single Input node.
package buffer

import "mobtransit.ai/internal/sim/world/feature/transit/ticket"

// NoETA is returned by NextReleaseETA when the buffer is empty.
const NoETA int64 = -1

// CaptureBuffer keeps tickets in insertion order. Retrieval returns the first
// ready ticket in that order, not the earliest-ready one.
type CaptureBuffer struct {
	maxSize int
	tickets []ticket.Ticket
}

func New(maxSize int) *CaptureBuffer {
	if maxSize < 0 {
		maxSize = 0
	}
	return &CaptureBuffer{maxSize: maxSize}
}

func (b *CaptureBuffer) Size() int    { return len(b.tickets) }
func (b *CaptureBuffer) MaxSize() int { return b.maxSize }
func (b *CaptureBuffer) Empty() bool  { return len(b.tickets) == 0 }

func (b *CaptureBuffer) CanAccept() bool { return len(b.tickets) < b.maxSize }

// Add appends t. A full buffer rejects the ticket and is left unchanged.
func (b *CaptureBuffer) Add(t ticket.Ticket) bool {
	if !b.CanAccept() {
		return false
	}
	b.tickets = append(b.tickets, t)
	return true
}

func (b *CaptureBuffer) readyIndex(now uint64) int {
	for i, t := range b.tickets {
		if t.IsReady(now) {
			return i
		}
	}
	return -1
}

// ReadyTicket returns the first ready ticket without removing it.
func (b *CaptureBuffer) ReadyTicket(now uint64) (ticket.Ticket, bool) {
	i := b.readyIndex(now)
	if i < 0 {
		return ticket.Ticket{}, false
	}
	return b.tickets[i], true
}

// PollReadyTicket removes and returns the first ready ticket. When nothing is
// ready the buffer is untouched.
func (b *CaptureBuffer) PollReadyTicket(now uint64) (ticket.Ticket, bool) {
	i := b.readyIndex(now)
	if i < 0 {
		return ticket.Ticket{}, false
	}
	t := b.tickets[i]
	b.tickets = append(b.tickets[:i], b.tickets[i+1:]...)
	return t, true
}

// NextReleaseETA is the number of ticks until the soonest ticket is ready, 0 if
// one already is, or NoETA when empty.
func (b *CaptureBuffer) NextReleaseETA(now uint64) int64 {
	if len(b.tickets) == 0 {
		return NoETA
	}
	soonest := b.tickets[0].ReadyAt()
	for _, t := range b.tickets[1:] {
		if t.ReadyAt() < soonest {
			soonest = t.ReadyAt()
		}
	}
	if soonest <= now {
		return 0
	}
	return int64(soonest - now)
}

// Drain empties the buffer and returns its contents in order.
func (b *CaptureBuffer) Drain() []ticket.Ticket {
	out := b.tickets
	b.tickets = nil
	return out
}

func (b *CaptureBuffer) Tickets() []ticket.Ticket {
	out := make([]ticket.Ticket, len(b.tickets))
	copy(out, b.tickets)
	return out
}

func (b *CaptureBuffer) Export() []ticket.Record {
	out := make([]ticket.Record, 0, len(b.tickets))
	for _, t := range b.tickets {
		out = append(out, t.Record())
	}
	return out
}

// Import replaces the buffer contents with records. Records that cannot be
// restored are counted in skipped; tickets beyond capacity are returned as
// overflow so the caller can release them instead of losing them.
func (b *CaptureBuffer) Import(records []ticket.Record) (overflow []ticket.Ticket, skipped int) {
	b.tickets = nil
	for _, r := range records {
		t, err := ticket.FromRecord(r)
		if err != nil {
			skipped++
			continue
		}
		if !b.Add(t) {
			overflow = append(overflow, t)
		}
	}
	return overflow, skipped
}
