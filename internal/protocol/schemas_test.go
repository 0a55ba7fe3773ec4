package protocol_test

import (
	"encoding/json"
	"testing"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/sim/farm"
)

func newValidator(t *testing.T) *protocol.Validator {
	t.Helper()
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return v
}

func TestSchemas_ValidateSamples(t *testing.T) {
	v := newValidator(t)

	validate := func(name, doc string) {
		t.Helper()
		var x any
		if err := json.Unmarshal([]byte(doc), &x); err != nil {
			t.Fatalf("sample %s: %v", name, err)
		}
		if err := v.Schema(name).Validate(x); err != nil {
			t.Fatalf("validate %s: %v", name, err)
		}
	}

	validate("start", `{"type":"start","mode":"auto_step","code":"plant(\"grass\", 0, 0)\n"}`)
	validate("control", `{"type":"ack"}`)
	validate("event", `{
	  "type":"event",
	  "seq":0,
	  "event":{"type":"cell_update","x":1,"y":2,
	    "cell":{"type":"grass","maturity":0,"water":0.3,"nutrient":0.5},
	    "gold":499,"line":3}
	}`)
	validate("farm_state", `{
	  "type":"farm_state",
	  "farm":{"type":"snapshot","grid":[[{"type":null,"maturity":0,"water":0,"nutrient":0.5}]],
	    "gold":500,"time":0,"best_roi":0}
	}`)
	validate("done", `{"type":"done","result":{"cost":10,"gain":25,"roi":1.5,"best_roi":1.5,"new_record":true}}`)
	validate("done", `{"type":"done","aborted":true}`)
	validate("error", `{"type":"error","message":"line 2: unknown function: foo","line":2,"code":"E_UNKNOWN_FUNCTION","category":"rule"}`)
	validate("error", `{"type":"error","message":"no script is running","line":null,"code":"E_NOT_RUNNING","category":"protocol"}`)
}

func TestSchemas_GoMessagesConform(t *testing.T) {
	v := newValidator(t)
	f := farm.New(farm.Config{}, nil)
	ev, err := f.Plant("grass", 0, 0)
	if err != nil {
		t.Fatalf("plant: %v", err)
	}
	ev.Line = 1
	line := 4

	cases := []struct {
		name string
		msg  any
	}{
		{"welcome", protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "S1", Farm: f.Snapshot()}},
		{"event", protocol.EventMsg{Type: protocol.TypeEvent, RunID: "R1", Seq: 0, Event: ev}},
		{"event", protocol.EventMsg{Type: protocol.TypeEvent, Seq: 1, Event: f.Wait(2)}},
		{"farm_state", protocol.FarmStateMsg{Type: protocol.TypeFarmState, Farm: f.Snapshot()}},
		{"done", protocol.DoneMsg{Type: protocol.TypeDone, Result: &farm.RunSummary{}}},
		{"error", protocol.ErrorMsg{Type: protocol.TypeError, Message: "boom", Line: &line, Code: protocol.ErrStepLimit, Category: "limit"}},
		{"error", protocol.ErrorMsg{Type: protocol.TypeError, Message: "boom", Code: protocol.ErrNotRunning, Category: "protocol"}},
	}
	for _, tc := range cases {
		if err := v.Validate(tc.name, tc.msg); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
	}
}

func TestValidator_Inbound(t *testing.T) {
	v := newValidator(t)

	ok := []string{
		`{"type":"start","mode":"manual_step","code":""}`,
		`{"type":"step"}`,
		`{"type":"ack"}`,
		`{"type":"abort"}`,
	}
	for _, m := range ok {
		if _, err := v.Inbound([]byte(m)); err != nil {
			t.Fatalf("%s: %v", m, err)
		}
	}

	bad := []string{
		`not json`,
		`{"type":"start","mode":"turbo","code":"x"}`,
		`{"type":"start","mode":"auto_step"}`,
		`{"type":"start","mode":"auto_step","code":42}`,
		`{"type":"hello"}`,
		`{}`,
	}
	for _, m := range bad {
		if _, err := v.Inbound([]byte(m)); err == nil {
			t.Fatalf("%s: expected rejection", m)
		}
	}
}
