package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World loop.
	ErrWorldBusy = "E_WORLD_BUSY"

	// Interaction layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrNoSession  = "E_NO_SESSION"
	ErrNotPaired  = "E_NOT_PAIRED"
	ErrOutputFull = "E_OUTPUT_FULL"
	ErrNoSpace    = "E_NO_SPACE"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrNoSession:       {},
	ErrNotPaired:       {},
	ErrOutputFull:      {},
	ErrNoSpace:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
