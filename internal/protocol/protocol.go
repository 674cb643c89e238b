package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeBeginLink    = "BEGIN_LINK"
	TypeCompleteLink = "COMPLETE_LINK"
	TypeCancelLink   = "CANCEL_LINK"
	TypeUnpair       = "UNPAIR"
	TypeStatus       = "STATUS"
	TypeGrow         = "GROW"

	TypeResult       = "RESULT"
	TypeTransitEvent = "TRANSIT_EVENT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func IsControlType(t string) bool {
	switch t {
	case TypeBeginLink, TypeCompleteLink, TypeCancelLink, TypeUnpair, TypeStatus, TypeGrow:
		return true
	}
	return false
}
