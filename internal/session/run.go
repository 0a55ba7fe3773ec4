package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/script/interp"
	"cyberfarm.ai/internal/script/parser"
	"cyberfarm.ai/internal/sim/farm"
)

type run struct {
	id      string
	mode    string
	codeSum string
	in      *interp.Interpreter

	seq     int
	started int64
}

func (s *Session) start(m protocol.StartMsg) {
	if m.Mode != protocol.ModeAuto && m.Mode != protocol.ModeManual {
		s.protoError("", "unknown mode: "+m.Mode)
		return
	}
	if s.run != nil {
		s.log.Printf("session %s: run %s replaced by a new start", s.id, s.run.id)
		s.endRun(OutcomeAborted, nil, nil)
	}
	s.stopIdle()
	s.farm.BeginRun()

	sum := sha256.Sum256([]byte(m.Code))
	r := &run{
		id:      s.cfg.NewID(),
		mode:    m.Mode,
		codeSum: hex.EncodeToString(sum[:]),
		started: s.cfg.Now().UnixMilli(),
	}
	s.run = r
	s.cfg.Metrics.runStarted()

	start := s.farm.Snapshot()
	s.writeRun(r, RunLogEntry{
		Kind:  KindRunStart,
		Mode:  m.Mode,
		Code:  m.Code,
		Start: &start,
	})
	s.log.Printf("session %s: run %s started (%s)", s.id, r.id, m.Mode)

	prog, err := parser.Parse(m.Code)
	if err != nil {
		var perr *parser.Error
		line := 0
		if errors.As(err, &perr) {
			line = perr.Line
		}
		s.failRun(&interp.Error{
			Line:     line,
			Code:     protocol.ErrParse,
			Category: interp.CategorySyntax,
			Msg:      err.Error(),
			Err:      err,
		})
		return
	}

	opts := interp.OptionsFromTuning(s.cfg.Tuning, m.Mode == protocol.ModeManual)
	opts.Now = s.cfg.Now
	r.in = interp.New(prog, s.farm, opts)
	s.advance()
}

// advance steps the active run to its next event, completion or failure.
func (s *Session) advance() {
	r := s.run
	ev, err := r.in.Step()
	if err == nil {
		r.seq++
		s.cfg.Metrics.event()
		s.writeRun(r, RunLogEntry{Kind: KindRunEvent, Seq: r.seq, Event: &ev})
		s.send(protocol.EventMsg{
			Type:  protocol.TypeEvent,
			RunID: r.id,
			Seq:   r.seq,
			Event: ev,
		})
		s.sendFarmState()
		return
	}
	if errors.Is(err, interp.ErrFinished) {
		summary := s.farm.FinishRun()
		s.send(protocol.DoneMsg{Type: protocol.TypeDone, RunID: r.id, Result: &summary})
		s.endRun(OutcomeFinished, &summary, nil)
		return
	}
	var ierr *interp.Error
	if !errors.As(err, &ierr) {
		ierr = &interp.Error{Code: protocol.ErrInternal, Category: interp.CategoryRule, Msg: err.Error(), Err: err}
	}
	s.failRun(ierr)
}

func (s *Session) failRun(e *interp.Error) {
	s.send(protocol.ErrorMsg{
		Type:     protocol.TypeError,
		RunID:    s.run.id,
		Message:  e.Error(),
		Line:     lineRef(e.Line),
		Code:     e.Code,
		Category: string(e.Category),
	})
	s.endRun(OutcomeFailed, nil, &RunError{
		Code:     e.Code,
		Category: string(e.Category),
		Message:  e.Msg,
		Line:     e.Line,
	})
}

func (s *Session) abort() {
	runID := ""
	if s.run != nil {
		runID = s.run.id
		s.endRun(OutcomeAborted, nil, nil)
	} else {
		s.resumeIdle()
	}
	s.send(protocol.DoneMsg{Type: protocol.TypeDone, RunID: runID, Aborted: true})
}

// endRun records the outcome of the active run and hands the farm back to
// the idle ticker. Mutations applied before the end are kept.
func (s *Session) endRun(outcome string, summary *farm.RunSummary, rerr *RunError) {
	r := s.run
	s.run = nil

	steps := 0
	if r.in != nil {
		steps = r.in.Steps()
	}
	s.writeRun(r, RunLogEntry{
		Kind:    KindRunEnd,
		Outcome: outcome,
		Steps:   steps,
		Result:  summary,
		Error:   rerr,
	})

	rec := RunRecord{
		RunID:      r.id,
		SessionID:  s.id,
		Mode:       r.mode,
		Outcome:    outcome,
		StartedAt:  r.started,
		EndedAt:    s.cfg.Now().UnixMilli(),
		Steps:      steps,
		Events:     r.seq,
		CodeSHA256: r.codeSum,
	}
	res := s.farm.RunResult()
	rec.Cost, rec.Gain, rec.ROI = res.Cost, res.Gain, res.ROI
	if summary != nil {
		rec.NewRecord = summary.NewRecord
	}
	if rerr != nil {
		rec.ErrorCode = rerr.Code
		rec.ErrorLine = rerr.Line
	}
	if s.cfg.Index != nil {
		s.cfg.Index.RecordRun(rec)
	}
	s.cfg.Metrics.runEnded(outcome, steps)

	switch {
	case rerr != nil:
		s.log.Printf("session %s: run %s failed after %d steps: %s line=%d %s", s.id, r.id, steps, rerr.Code, rerr.Line, rerr.Message)
	default:
		s.log.Printf("session %s: run %s %s after %d steps (events=%d roi=%.3f)", s.id, r.id, outcome, steps, r.seq, res.ROI)
	}
	s.resumeIdle()
}

func (s *Session) writeRun(r *run, e RunLogEntry) {
	if s.cfg.RunLog == nil {
		return
	}
	e.SessionID = s.id
	e.RunID = r.id
	e.TsMs = s.cfg.Now().UnixMilli()
	if err := s.cfg.RunLog.WriteRun(e); err != nil {
		s.log.Printf("session %s: run log: %v", s.id, err)
	}
}
