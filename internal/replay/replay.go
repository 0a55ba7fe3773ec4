// Package replay re-executes recorded runs and checks that the farm
// produces the same events and outcome.
package replay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	runlog "cyberfarm.ai/internal/persistence/log"
	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/interp"
	"cyberfarm.ai/internal/script/parser"
	"cyberfarm.ai/internal/session"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

// Result describes one verified run.
type Result struct {
	RunID   string
	Outcome string
	Events  int
	// Partial is set when only the recorded event prefix could be checked.
	Partial string
}

// MismatchError reports the first divergence from the recording.
type MismatchError struct {
	RunID string
	Seq   int
	Msg   string
}

func (e *MismatchError) Error() string {
	if e.Seq > 0 {
		return fmt.Sprintf("run %s: event %d: %s", e.RunID, e.Seq, e.Msg)
	}
	return fmt.Sprintf("run %s: %s", e.RunID, e.Msg)
}

// Verify replays run against a farm restored from its start snapshot. The
// interpreter runs in manual mode so wall-clock limits never fire.
func Verify(run *runlog.RecordedRun, tn tuning.Tuning, cats *catalogs.Catalogs) (Result, error) {
	res := Result{RunID: run.ID()}
	mismatch := func(seq int, format string, args ...interface{}) error {
		return &MismatchError{RunID: res.RunID, Seq: seq, Msg: fmt.Sprintf(format, args...)}
	}
	if run.Start.Start == nil {
		return res, mismatch(0, "run_start has no farm snapshot")
	}

	f := farm.New(farm.ConfigFromTuning(tn), cats)
	if err := f.Restore(*run.Start.Start); err != nil {
		return res, fmt.Errorf("run %s: restore: %w", res.RunID, err)
	}
	f.BeginRun()

	end := run.End
	if end != nil {
		res.Outcome = end.Outcome
	}

	prog, err := parser.Parse(run.Start.Code)
	if err != nil {
		if end != nil && (end.Error == nil || end.Error.Code != protocol.ErrParse) {
			return res, mismatch(0, "code no longer parses: %v", err)
		}
		return res, nil
	}
	if end != nil && end.Error != nil && end.Error.Code == protocol.ErrParse {
		return res, mismatch(0, "recorded parse error %q but code parses", end.Error.Message)
	}

	in := interp.New(prog, f, interp.OptionsFromTuning(tn, true))
	for _, rec := range run.Events {
		ev, err := in.Step()
		if err != nil {
			return res, mismatch(rec.Seq, "replay ended early: %v", err)
		}
		if rec.Event == nil {
			return res, mismatch(rec.Seq, "recorded entry has no event")
		}
		if err := sameJSON(ev, *rec.Event); err != nil {
			return res, mismatch(rec.Seq, "%v", err)
		}
		res.Events++
	}

	switch {
	case end == nil:
		res.Partial = "log ends mid-run"
		return res, nil
	case end.Outcome == session.OutcomeAborted:
		res.Partial = "aborted"
		return res, nil
	case end.Error != nil && end.Error.Code == protocol.ErrTimeout:
		res.Partial = "wall-clock timeout is not reproducible"
		return res, nil
	}

	_, err = in.Step()
	switch end.Outcome {
	case session.OutcomeFinished:
		if !errors.Is(err, interp.ErrFinished) {
			return res, mismatch(0, "recorded finish, replay got %v", err)
		}
		summary := f.FinishRun()
		if end.Result != nil {
			if err := sameJSON(summary, *end.Result); err != nil {
				return res, mismatch(0, "result: %v", err)
			}
		}
	case session.OutcomeFailed:
		var ierr *interp.Error
		if !errors.As(err, &ierr) {
			return res, mismatch(0, "recorded failure, replay got %v", err)
		}
		if end.Error == nil || ierr.Code != end.Error.Code || ierr.Line != end.Error.Line {
			return res, mismatch(0, "recorded failure %+v, replay got %s at line %d", end.Error, ierr.Code, ierr.Line)
		}
	default:
		return res, mismatch(0, "unknown outcome %q", end.Outcome)
	}
	if in.Steps() != end.Steps {
		return res, mismatch(0, "steps: recorded %d, replay %d", end.Steps, in.Steps())
	}
	return res, nil
}

func sameJSON(got, want interface{}) error {
	a, err := json.Marshal(got)
	if err != nil {
		return err
	}
	b, err := json.Marshal(want)
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return fmt.Errorf("got %s, want %s", a, b)
	}
	return nil
}
