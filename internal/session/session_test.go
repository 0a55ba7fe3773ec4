package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

type frame struct {
	Type     string           `json:"type"`
	RunID    string           `json:"run_id"`
	Seq      int              `json:"seq"`
	Event    *farm.Event      `json:"event"`
	Farm     *farm.Snapshot   `json:"farm"`
	Result   *farm.RunSummary `json:"result"`
	Aborted  bool             `json:"aborted"`
	Message  string           `json:"message"`
	Line     *int             `json:"line"`
	Code     string           `json:"code"`
	Category string           `json:"category"`
}

type memRunLog struct{ entries []RunLogEntry }

func (m *memRunLog) WriteRun(e RunLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memIndex struct{ recs []RunRecord }

func (m *memIndex) RecordRun(r RunRecord) { m.recs = append(m.recs, r) }

func newTestSession(t *testing.T, cfg Config) (*Session, chan []byte) {
	t.Helper()
	out := make(chan []byte, 256)
	n := 0
	cfg.NewID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return New("s1", cfg, out), out
}

func drain(t *testing.T, out chan []byte) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case b := <-out:
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("bad frame %s: %v", b, err)
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func types(frames []frame) []string {
	var ts []string
	for _, f := range frames {
		ts = append(ts, f.Type)
	}
	return ts
}

func startMsg(mode, code string) []byte {
	b, _ := json.Marshal(protocol.StartMsg{Type: protocol.TypeStart, Mode: mode, Code: code})
	return b
}

func control(typ string) []byte {
	b, _ := json.Marshal(protocol.ControlMsg{Type: typ})
	return b
}

func expectTypes(t *testing.T, frames []frame, want ...string) {
	t.Helper()
	got := types(frames)
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

const growScript = "plant('grass', 0, 0)\nwater(0, 0)\nwait(20)\nharvest(0, 0)\n"

func TestSession_ManualRun(t *testing.T) {
	s, out := newTestSession(t, Config{})

	s.Handle(startMsg(protocol.ModeManual, "plant('grass', 0, 0)\nwater(0, 0)\n"))
	fs := drain(t, out)
	expectTypes(t, fs, "event", "farm_state")
	if fs[0].Seq != 1 || fs[0].RunID != "run-1" || fs[0].Event.Line != 1 {
		t.Fatalf("first event: %+v", fs[0])
	}
	if !s.Running() {
		t.Fatalf("expected run in progress")
	}

	s.Handle(control(protocol.TypeStep))
	fs = drain(t, out)
	expectTypes(t, fs, "event", "farm_state")
	if fs[0].Seq != 2 || fs[0].Event.Line != 2 || fs[1].Farm.Gold != 497 {
		t.Fatalf("second event: %+v / gold %d", fs[0], fs[1].Farm.Gold)
	}

	// Acks do not pace manual runs.
	s.Handle(control(protocol.TypeAck))
	if fs := drain(t, out); len(fs) != 0 {
		t.Fatalf("ack in manual mode produced %v", types(fs))
	}

	s.Handle(control(protocol.TypeStep))
	fs = drain(t, out)
	expectTypes(t, fs, "done")
	r := fs[0].Result
	if r == nil || r.Cost != 3 || r.Gain != 0 || r.ROI != 0 || r.NewRecord {
		t.Fatalf("result: %+v", r)
	}
	if s.Running() || !s.Idle() {
		t.Fatalf("run should be over and idle resumed")
	}
}

func TestSession_AutoRunPacedByAcks(t *testing.T) {
	s, out := newTestSession(t, Config{})

	s.Handle(startMsg(protocol.ModeAuto, growScript))
	for i := 1; i <= 4; i++ {
		fs := drain(t, out)
		expectTypes(t, fs, "event", "farm_state")
		if fs[0].Seq != i || fs[0].Event.Line != i {
			t.Fatalf("event %d: %+v", i, fs[0])
		}
		s.Handle(control(protocol.TypeAck))
	}
	fs := drain(t, out)
	expectTypes(t, fs, "done")
	r := fs[0].Result
	if r.Cost != 3 || r.Gain != 5 || !r.NewRecord || math.Abs(r.ROI-2.0/3.0) > 1e-9 {
		t.Fatalf("result: %+v", r)
	}
	if s.Farm().BestROI() != r.ROI || s.Farm().Gold() != 502 {
		t.Fatalf("farm best=%v gold=%d", s.Farm().BestROI(), s.Farm().Gold())
	}

	// Same script again: equal ROI is not a new record.
	s.Handle(startMsg(protocol.ModeAuto, growScript))
	for i := 0; i < 4; i++ {
		drain(t, out)
		s.Handle(control(protocol.TypeAck))
	}
	fs = drain(t, out)
	if fs[0].Result.NewRecord {
		t.Fatalf("equal ROI must not be a new record")
	}
}

func TestSession_StepWithoutRun(t *testing.T) {
	s, out := newTestSession(t, Config{})
	s.Handle(control(protocol.TypeStep))
	fs := drain(t, out)
	expectTypes(t, fs, "error")
	if fs[0].Code != protocol.ErrNotRunning || fs[0].Line != nil {
		t.Fatalf("error: %+v", fs[0])
	}
}

func TestSession_ProtocolErrors(t *testing.T) {
	s, out := newTestSession(t, Config{})
	for _, raw := range [][]byte{
		[]byte(`{`),
		[]byte(`{"type":"dance"}`),
		startMsg("turbo", "wait()"),
	} {
		s.Handle(raw)
		fs := drain(t, out)
		expectTypes(t, fs, "error")
		if fs[0].Code != protocol.ErrProtoBadRequest || fs[0].Category != "protocol" {
			t.Fatalf("%s: %+v", raw, fs[0])
		}
	}
	if s.Running() {
		t.Fatalf("no run should have started")
	}
}

func TestSession_ParseErrorReported(t *testing.T) {
	idx := &memIndex{}
	s, out := newTestSession(t, Config{Index: idx})
	s.Handle(startMsg(protocol.ModeAuto, "wait()\nplant('grass', 0, 0\n"))
	fs := drain(t, out)
	expectTypes(t, fs, "error")
	e := fs[0]
	if e.Code != protocol.ErrParse || e.Category != "syntax" || e.Line == nil || *e.Line != 2 {
		t.Fatalf("error: %+v", e)
	}
	if s.Running() {
		t.Fatalf("parse failure must end the run")
	}
	if len(idx.recs) != 1 || idx.recs[0].Outcome != OutcomeFailed || idx.recs[0].ErrorCode != protocol.ErrParse {
		t.Fatalf("index: %+v", idx.recs)
	}
}

func TestSession_RuleErrorKeepsMutations(t *testing.T) {
	s, out := newTestSession(t, Config{})
	s.Handle(startMsg(protocol.ModeManual, "plant('grass', 0, 0)\nplant('wheat', 0, 0)\n"))
	drain(t, out)
	s.Handle(control(protocol.TypeStep))
	fs := drain(t, out)
	expectTypes(t, fs, "error")
	e := fs[0]
	if e.Code != protocol.ErrCellOccupied || e.Category != "rule" || *e.Line != 2 || e.RunID != "run-1" {
		t.Fatalf("error: %+v", e)
	}
	if s.Farm().Gold() != 499 {
		t.Fatalf("gold = %d, want 499", s.Farm().Gold())
	}
	c, _ := s.Farm().Cell(0, 0)
	if c.Type != "grass" {
		t.Fatalf("cell = %+v", c)
	}
	if !s.Idle() {
		t.Fatalf("idle should resume after a failure")
	}
}

func TestSession_StepLimitIsLimitCategory(t *testing.T) {
	tn := tuning.Defaults()
	tn.MaxSteps = 5
	s, out := newTestSession(t, Config{Tuning: tn})
	s.Handle(startMsg(protocol.ModeManual, "for i in range(100):\n    wait()\n"))
	var last frame
	for i := 0; i < 10 && s.Running(); i++ {
		fs := drain(t, out)
		last = fs[0]
		if s.Running() {
			s.Handle(control(protocol.TypeStep))
		}
	}
	fs := drain(t, out)
	if len(fs) > 0 {
		last = fs[0]
	}
	if last.Type != "error" || last.Code != protocol.ErrStepLimit || last.Category != "limit" {
		t.Fatalf("last frame: %+v", last)
	}
}

func TestSession_Abort(t *testing.T) {
	idx := &memIndex{}
	s, out := newTestSession(t, Config{Index: idx})
	s.Handle(startMsg(protocol.ModeAuto, growScript))
	drain(t, out)
	s.Handle(control(protocol.TypeAbort))
	fs := drain(t, out)
	expectTypes(t, fs, "done")
	if !fs[0].Aborted || fs[0].Result != nil || fs[0].RunID != "run-1" {
		t.Fatalf("done: %+v", fs[0])
	}
	if s.Running() || !s.Idle() {
		t.Fatalf("abort should end the run and resume idle")
	}
	// The planted cell survives the abort.
	if c, _ := s.Farm().Cell(0, 0); c.Type != "grass" {
		t.Fatalf("cell = %+v", c)
	}
	if len(idx.recs) != 1 || idx.recs[0].Outcome != OutcomeAborted || idx.recs[0].Events != 1 {
		t.Fatalf("index: %+v", idx.recs)
	}

	// Acks after the abort are ignored.
	s.Handle(control(protocol.TypeAck))
	if fs := drain(t, out); len(fs) != 0 {
		t.Fatalf("ack after abort produced %v", types(fs))
	}
}

func TestSession_StartReplacesActiveRun(t *testing.T) {
	idx := &memIndex{}
	s, out := newTestSession(t, Config{Index: idx})
	s.Handle(startMsg(protocol.ModeManual, "wait()\nwait()\n"))
	drain(t, out)
	s.Handle(startMsg(protocol.ModeManual, "clear()\n"))
	fs := drain(t, out)
	expectTypes(t, fs, "event", "farm_state")
	if fs[0].RunID != "run-2" {
		t.Fatalf("run id = %q", fs[0].RunID)
	}
	if len(idx.recs) != 1 || idx.recs[0].RunID != "run-1" || idx.recs[0].Outcome != OutcomeAborted {
		t.Fatalf("index: %+v", idx.recs)
	}
	if s.Farm().Time() != 1 {
		t.Fatalf("start should reset time, got %v", s.Farm().Time())
	}
}

func TestSession_RunLogEntries(t *testing.T) {
	rl := &memRunLog{}
	idx := &memIndex{}
	s, out := newTestSession(t, Config{RunLog: rl, Index: idx})
	s.Handle(startMsg(protocol.ModeAuto, growScript))
	for i := 0; i < 4; i++ {
		drain(t, out)
		s.Handle(control(protocol.TypeAck))
	}
	drain(t, out)

	var kinds []string
	for _, e := range rl.entries {
		kinds = append(kinds, e.Kind)
		if e.SessionID != "s1" || e.RunID != "run-1" {
			t.Fatalf("entry ids: %+v", e)
		}
	}
	want := []string{KindRunStart, KindRunEvent, KindRunEvent, KindRunEvent, KindRunEvent, KindRunEnd}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	first := rl.entries[0]
	if first.Code != growScript || first.Mode != protocol.ModeAuto || first.Start == nil || first.Start.Gold != 500 {
		t.Fatalf("run_start: %+v", first)
	}
	end := rl.entries[len(rl.entries)-1]
	if end.Outcome != OutcomeFinished || end.Steps != 4 || end.Result == nil || end.Result.Gain != 5 {
		t.Fatalf("run_end: %+v", end)
	}

	rec := idx.recs[0]
	if rec.Events != 4 || rec.Steps != 4 || rec.Cost != 3 || rec.Gain != 5 || !rec.NewRecord || len(rec.CodeSHA256) != 64 {
		t.Fatalf("record: %+v", rec)
	}
}

func TestSession_InitialFarmRestored(t *testing.T) {
	base := farm.New(farm.Config{}, nil)
	if _, err := base.Plant("wheat", 2, 3); err != nil {
		t.Fatal(err)
	}
	snap := base.Snapshot()
	s, _ := newTestSession(t, Config{Initial: &snap})
	if c, _ := s.Farm().Cell(2, 3); c.Type != "wheat" || s.Farm().Gold() != 495 {
		t.Fatalf("restored cell=%+v gold=%d", c, s.Farm().Gold())
	}
}

func TestSession_RunWelcomeAndIdleTicks(t *testing.T) {
	tn := tuning.Defaults()
	tn.IdleTickIntervalMs = 5
	tn.IdleMaxTicks = 3
	out := make(chan []byte, 64)
	m := &Metrics{}
	s := New("s1", Config{Tuning: tn, Metrics: m}, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbox := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, inbox) }()

	next := func() frame {
		t.Helper()
		select {
		case b := <-out:
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			return f
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for a frame")
		}
		return frame{}
	}

	if f := next(); f.Type != protocol.TypeWelcome || f.Farm == nil || f.Farm.Gold != 500 {
		t.Fatalf("welcome: %+v", f)
	}

	// Idle ageing starts after the first run ends.
	inbox <- startMsg(protocol.ModeManual, "wait()\n")
	if f := next(); f.Type != "event" {
		t.Fatalf("want event, got %+v", f)
	}
	if f := next(); f.Type != "farm_state" {
		t.Fatalf("want farm_state, got %+v", f)
	}
	inbox <- control(protocol.TypeStep)
	if f := next(); f.Type != "done" {
		t.Fatalf("want done, got %+v", f)
	}

	for i := 1; i <= 3; i++ {
		f := next()
		if f.Type != "farm_state" || f.Farm.Time != float64(1+i) {
			t.Fatalf("idle tick %d: %+v", i, f)
		}
	}
	select {
	case b := <-out:
		t.Fatalf("idle ticker exceeded its budget: %s", b)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
	v := m.View()
	if v.SessionsActive != 0 || v.SessionsTotal != 1 || v.RunsFinished != 1 || v.IdleTicks != 3 {
		t.Fatalf("metrics: %+v", v)
	}
}
