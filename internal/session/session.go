// Package session drives one client's farm: it owns the Farm, runs scripts
// through the stepwise interpreter on request and ages the farm while idle.
//
// A Session is confined to the goroutine that calls Run. Exactly one of the
// interpreter or the idle ticker advances farm time at any moment.
package session

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"cyberfarm.ai/internal/protocol"
	"cyberfarm.ai/internal/sim/catalogs"
	"cyberfarm.ai/internal/sim/farm"
	"cyberfarm.ai/internal/sim/tuning"
)

type Config struct {
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Logger   *log.Logger

	// Optional sinks.
	RunLog  RunLogger
	Index   RunIndex
	Metrics *Metrics

	// Initial restores a stored farm instead of starting fresh.
	Initial *farm.Snapshot

	Now   func() time.Time
	NewID func() string
}

func (c *Config) applyDefaults() {
	if c.Tuning.GridSize == 0 {
		c.Tuning = tuning.Defaults()
	}
	if c.Catalogs == nil {
		c.Catalogs = catalogs.Defaults()
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
}

type Session struct {
	id   string
	cfg  Config
	log  *log.Logger
	farm *farm.Farm

	out  chan<- []byte
	done <-chan struct{}

	run *run

	idle      bool
	idleTicks int
	ticker    *time.Ticker
}

// New creates a session writing outbound JSON frames to out.
func New(id string, cfg Config, out chan<- []byte) *Session {
	cfg.applyDefaults()
	s := &Session{
		id:   id,
		cfg:  cfg,
		log:  cfg.Logger,
		farm: farm.New(farm.ConfigFromTuning(cfg.Tuning), cfg.Catalogs),
		out:  out,
	}
	if cfg.Initial != nil {
		if err := s.farm.Restore(*cfg.Initial); err != nil {
			s.log.Printf("session %s: stored farm rejected, starting fresh: %v", id, err)
		}
	}
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Farm() *farm.Farm { return s.farm }
func (s *Session) Running() bool    { return s.run != nil }

// Idle reports whether the idle ticker would currently age the farm.
func (s *Session) Idle() bool {
	return s.run == nil && s.idle && s.idleTicks < s.cfg.Tuning.IdleMaxTicks
}

// Run sends the welcome frame and then serves inbound frames and idle ticks
// until ctx is done or inbox is closed. A run still in progress on return is
// recorded as aborted.
func (s *Session) Run(ctx context.Context, inbox <-chan []byte) error {
	s.done = ctx.Done()
	s.cfg.Metrics.sessionOpened()
	defer s.cfg.Metrics.sessionClosed()

	s.ticker = time.NewTicker(s.cfg.Tuning.IdleTickInterval())
	defer s.ticker.Stop()
	defer func() {
		if s.run != nil {
			s.endRun(OutcomeAborted, nil, nil)
		}
	}()

	s.send(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		Farm:            s.farm.Snapshot(),
	})

	for {
		var tick <-chan time.Time
		if s.Idle() {
			tick = s.ticker.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-inbox:
			if !ok {
				return nil
			}
			s.Handle(b)
		case <-tick:
			s.IdleTick()
		}
	}
}

// Handle processes one inbound frame.
func (s *Session) Handle(raw []byte) {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		s.protoError("", "malformed message: "+err.Error())
		return
	}
	switch base.Type {
	case protocol.TypeStart:
		var m protocol.StartMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			s.protoError("", "malformed start: "+err.Error())
			return
		}
		s.start(m)

	case protocol.TypeStep:
		if s.run == nil {
			s.send(protocol.ErrorMsg{
				Type:     protocol.TypeError,
				Message:  "script not initialized",
				Code:     protocol.ErrNotRunning,
				Category: "protocol",
			})
			return
		}
		s.advance()

	case protocol.TypeAck:
		// Acks pace automatic runs only.
		if s.run != nil && s.run.mode == protocol.ModeAuto {
			s.advance()
		}

	case protocol.TypeAbort:
		s.abort()

	default:
		s.protoError("", "unknown message type: "+base.Type)
	}
}

// IdleTick ages the farm by one idle interval and publishes the new state.
func (s *Session) IdleTick() {
	s.farm.AdvanceTime(s.cfg.Tuning.IdleTickFarmSeconds)
	s.idleTicks++
	s.cfg.Metrics.idleTick()
	s.sendFarmState()
}

func (s *Session) stopIdle() { s.idle = false }

func (s *Session) resumeIdle() {
	s.idle = true
	s.idleTicks = 0
	if s.ticker == nil {
		return
	}
	select {
	case <-s.ticker.C:
	default:
	}
	s.ticker.Reset(s.cfg.Tuning.IdleTickInterval())
}

func (s *Session) sendFarmState() {
	s.send(protocol.FarmStateMsg{Type: protocol.TypeFarmState, Farm: s.farm.Snapshot()})
}

func (s *Session) protoError(runID, msg string) {
	s.send(protocol.ErrorMsg{
		Type:     protocol.TypeError,
		RunID:    runID,
		Message:  msg,
		Code:     protocol.ErrProtoBadRequest,
		Category: "protocol",
	})
}

func (s *Session) send(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("session %s: marshal %T: %v", s.id, v, err)
		return
	}
	select {
	case s.out <- b:
	case <-s.done:
	}
}

func lineRef(line int) *int {
	if line <= 0 {
		return nil
	}
	return &line
}
