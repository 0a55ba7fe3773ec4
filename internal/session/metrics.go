package session

import "sync/atomic"

// Metrics aggregates counters across all sessions of a process. It is
// updated from session goroutines and read from HTTP handlers.
type Metrics struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Uint64

	runsStarted  atomic.Uint64
	runsFinished atomic.Uint64
	runsFailed   atomic.Uint64
	runsAborted  atomic.Uint64

	steps     atomic.Uint64
	events    atomic.Uint64
	idleTicks atomic.Uint64
}

// MetricsView is a point-in-time copy of Metrics.
type MetricsView struct {
	SessionsActive int64  `json:"sessions_active"`
	SessionsTotal  uint64 `json:"sessions_total"`
	RunsStarted    uint64 `json:"runs_started"`
	RunsFinished   uint64 `json:"runs_finished"`
	RunsFailed     uint64 `json:"runs_failed"`
	RunsAborted    uint64 `json:"runs_aborted"`
	Steps          uint64 `json:"steps"`
	Events         uint64 `json:"events"`
	IdleTicks      uint64 `json:"idle_ticks"`
}

func (m *Metrics) View() MetricsView {
	if m == nil {
		return MetricsView{}
	}
	return MetricsView{
		SessionsActive: m.sessionsActive.Load(),
		SessionsTotal:  m.sessionsTotal.Load(),
		RunsStarted:    m.runsStarted.Load(),
		RunsFinished:   m.runsFinished.Load(),
		RunsFailed:     m.runsFailed.Load(),
		RunsAborted:    m.runsAborted.Load(),
		Steps:          m.steps.Load(),
		Events:         m.events.Load(),
		IdleTicks:      m.idleTicks.Load(),
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(1)
	m.sessionsTotal.Add(1)
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Add(-1)
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.runsStarted.Add(1)
	}
}

func (m *Metrics) runEnded(outcome string, steps int) {
	if m == nil {
		return
	}
	switch outcome {
	case OutcomeFinished:
		m.runsFinished.Add(1)
	case OutcomeFailed:
		m.runsFailed.Add(1)
	case OutcomeAborted:
		m.runsAborted.Add(1)
	}
	m.steps.Add(uint64(steps))
}

func (m *Metrics) event() {
	if m != nil {
		m.events.Add(1)
	}
}

func (m *Metrics) idleTick() {
	if m != nil {
		m.idleTicks.Add(1)
	}
}
