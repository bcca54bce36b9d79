package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeSync      = "SYNC"
	TypeAct       = "ACT"
	TypeActResult = "ACT_RESULT"
	TypeError     = "ERROR"
)

// Client roles.
const (
	RoleViewer   = "VIEWER"
	RoleProducer = "PRODUCER"
)

// Surface names. Any other name addresses a player's private surface.
const (
	SurfaceGlobal = "GLOBAL"
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
