package protocol

import "cyberfarm.ai/internal/sim/farm"

// START (client -> server)
type StartMsg struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
	Code string `json:"code"`
}

// STEP / ACK / ABORT (client -> server)
type ControlMsg struct {
	Type string `json:"type"`
}

// WELCOME (server -> client), sent once on connect.
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	Farm            farm.Snapshot `json:"farm"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type  string     `json:"type"`
	RunID string     `json:"run_id,omitempty"`
	Seq   int        `json:"seq"`
	Event farm.Event `json:"event"`
}

// FARM_STATE (server -> client), after every event and on idle ticks.
type FarmStateMsg struct {
	Type string        `json:"type"`
	Farm farm.Snapshot `json:"farm"`
}

// DONE (server -> client). Result is absent when the run was aborted.
type DoneMsg struct {
	Type    string           `json:"type"`
	RunID   string           `json:"run_id,omitempty"`
	Result  *farm.RunSummary `json:"result,omitempty"`
	Aborted bool             `json:"aborted,omitempty"`
}

// ERROR (server -> client). Line is null when no source line applies.
type ErrorMsg struct {
	Type     string `json:"type"`
	RunID    string `json:"run_id,omitempty"`
	Message  string `json:"message"`
	Line     *int   `json:"line"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}
