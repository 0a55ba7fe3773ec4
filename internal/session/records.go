package session

import (
	"cyberfarm.ai/internal/sim/farm"
)

// Run log entry kinds.
const (
	KindRunStart = "run_start"
	KindRunEvent = "run_event"
	KindRunEnd   = "run_end"
)

// Run outcomes.
const (
	OutcomeFinished = "finished"
	OutcomeFailed   = "failed"
	OutcomeAborted  = "aborted"
)

// RunLogger receives every recorded step of every run. Entries for a run
// arrive in order: one run_start, zero or more run_event, one run_end.
type RunLogger interface {
	WriteRun(entry RunLogEntry) error
}

// RunIndex receives one record per completed run. Implementations must not
// block the session.
type RunIndex interface {
	RecordRun(rec RunRecord)
}

type RunLogEntry struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	TsMs      int64  `json:"ts_ms"`

	// run_start
	Mode  string         `json:"mode,omitempty"`
	Code  string         `json:"code,omitempty"`
	Start *farm.Snapshot `json:"start,omitempty"`

	// run_event
	Seq   int         `json:"seq,omitempty"`
	Event *farm.Event `json:"event,omitempty"`

	// run_end
	Outcome string           `json:"outcome,omitempty"`
	Steps   int              `json:"steps,omitempty"`
	Result  *farm.RunSummary `json:"result,omitempty"`
	Error   *RunError        `json:"error,omitempty"`
}

type RunError struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// RunRecord is the flattened summary stored in the run index.
type RunRecord struct {
	RunID      string  `json:"run_id"`
	SessionID  string  `json:"session_id"`
	Mode       string  `json:"mode"`
	Outcome    string  `json:"outcome"`
	StartedAt  int64   `json:"started_at"`
	EndedAt    int64   `json:"ended_at"`
	Steps      int     `json:"steps"`
	Events     int     `json:"events"`
	Cost       int     `json:"cost"`
	Gain       int     `json:"gain"`
	ROI        float64 `json:"roi"`
	NewRecord  bool    `json:"new_record"`
	ErrorCode  string  `json:"error_code,omitempty"`
	ErrorLine  int     `json:"error_line,omitempty"`
	CodeSHA256 string  `json:"code_sha256"`
}
