package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// client -> server
	TypeStart = "start"
	TypeStep  = "step"
	TypeAck   = "ack"
	TypeAbort = "abort"

	// server -> client
	TypeWelcome   = "welcome"
	TypeEvent     = "event"
	TypeFarmState = "farm_state"
	TypeDone      = "done"
	TypeError     = "error"
)

// Run modes carried by START.
const (
	ModeAuto   = "auto_step"
	ModeManual = "manual_step"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
