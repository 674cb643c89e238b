package runtime

import modelpkg "mobtransit.ai/internal/sim/world/kernel/model"

type EventKind string

const (
	EventCapture      EventKind = "CAPTURE"
	EventTransfer     EventKind = "TRANSFER"
	EventTransferFail EventKind = "TRANSFER_FAIL"
	EventRelease      EventKind = "RELEASE"
	EventDrop         EventKind = "DROP"
)

// Event doubles as the feedback signal (sound/particles in a client) and as the
// transit log record.
type Event struct {
	Tick      uint64
	Kind      EventKind
	Node      modelpkg.NodeRef
	Pos       modelpkg.Vec3i
	ActorType string
	ActorID   string
	Backoff   uint64
	Reason    string
}
