package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAction  = "ACTION"
	TypeState   = "STATE"
	TypeEvent   = "EVENT"
)

// Roles a connection can claim at handshake time.
const (
	RoleESP         = "esp"
	RoleDestination = "destination"
	RoleFacilitator = "facilitator"
	RoleObserver    = "observer"
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
