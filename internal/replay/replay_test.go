package replay

import (
	"encoding/json"
	"errors"
	"testing"

	runlog "cyberfarm.ai/internal/persistence/log"
	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/tuning"
)

func msg(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func start(mode, code string) []byte {
	return msg(protocol.StartMsg{Type: protocol.TypeStart, Mode: mode, Code: code})
}

func ctl(typ string) []byte { return msg(protocol.ControlMsg{Type: typ}) }

// record drives a session through the given frames and returns the runs it
// logged.
func record(t *testing.T, frames ...[]byte) []*runlog.RecordedRun {
	t.Helper()
	dir := t.TempDir()
	l := runlog.NewRunLogger(dir)
	out := make(chan []byte, 1024)
	s := session.New("s1", session.Config{RunLog: l}, out)
	for _, f := range frames {
		s.Handle(f)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	runs, err := runlog.ReadRuns(dir)
	if err != nil {
		t.Fatalf("ReadRuns: %v", err)
	}
	return runs
}

const script = `crop = "grass"
for x in range(3):
    plant(crop, x, 0)
    water(x, 0)
wait(30)
for x in range(3):
    harvest(x, 0)
`

func TestVerify_RecordedRuns(t *testing.T) {
	acks := [][]byte{start(protocol.ModeAuto, script)}
	for i := 0; i < 12; i++ {
		acks = append(acks, ctl(protocol.TypeAck))
	}
	frames := append(acks,
		// A second run on the same farm: fails on line 2.
		start(protocol.ModeManual, "plant('wheat', 0, 0)\nplant('wheat', 0, 0)\n"),
		ctl(protocol.TypeStep),
		// A third run, aborted after one event.
		start(protocol.ModeManual, "clear()\nwait()\n"),
		ctl(protocol.TypeAbort),
		// A parse failure.
		start(protocol.ModeAuto, "plant(\n"),
	)
	runs := record(t, frames...)
	if len(runs) != 4 {
		t.Fatalf("runs = %d, want 4", len(runs))
	}

	want := []struct {
		outcome string
		events  int
		partial bool
	}{
		{session.OutcomeFinished, 10, false},
		{session.OutcomeFailed, 1, false},
		{session.OutcomeAborted, 1, true},
		{session.OutcomeFailed, 0, false},
	}
	for i, run := range runs {
		res, err := Verify(run, tuning.Defaults(), catalogs.Defaults())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Outcome != want[i].outcome || res.Events != want[i].events || (res.Partial != "") != want[i].partial {
			t.Fatalf("run %d: %+v", i, res)
		}
	}
	if runs[0].End.Result == nil || runs[0].End.Result.Gain != 15 {
		t.Fatalf("first run result: %+v", runs[0].End.Result)
	}
}

func TestVerify_DetectsTamperedEvent(t *testing.T) {
	runs := record(t,
		start(protocol.ModeManual, "plant('grass', 0, 0)\nwater(0, 0)\n"),
		ctl(protocol.TypeStep),
		ctl(protocol.TypeStep),
	)
	run := runs[0]
	run.Events[1].Event.Gold += 10

	_, err := Verify(run, tuning.Defaults(), catalogs.Defaults())
	var mm *MismatchError
	if !errors.As(err, &mm) || mm.Seq != 2 {
		t.Fatalf("expected mismatch at event 2, got %v", err)
	}
}

func TestVerify_DetectsDifferentTuning(t *testing.T) {
	runs := record(t,
		start(protocol.ModeManual, "plant('grass', 0, 0)\nwater(0, 0)\n"),
		ctl(protocol.TypeStep),
		ctl(protocol.TypeStep),
	)
	tn := tuning.Defaults()
	tn.WaterCost = 5
	if _, err := Verify(runs[0], tn, catalogs.Defaults()); err == nil {
		t.Fatalf("expected mismatch under different water cost")
	}
}

func TestVerify_MissingSnapshot(t *testing.T) {
	run := &runlog.RecordedRun{Start: session.RunLogEntry{Kind: session.KindRunStart, RunID: "x"}}
	if _, err := Verify(run, tuning.Defaults(), nil); err == nil {
		t.Fatalf("expected error without snapshot")
	}
}
