// Package scheduler admits model calls for many personalities under one
// global rate budget. Interest is tracked per (agent, destination) pair and a
// weighted sampler grants one turn per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/chatterbox/internal/persona"
	"github.com/KafClaw/chatterbox/internal/sampler"
	"github.com/KafClaw/chatterbox/internal/timeline"
)

// ErrCallTimeout is returned by a handler whose model call ran out of time.
// The turn is dropped and the scheduler keeps running.
var ErrCallTimeout = sampler.ErrCallTimeout

// ErrMissingRegistration means a turn was granted to an agent that never
// registered a handler. It ends Run.
var ErrMissingRegistration = errors.New("no turn handler registered")

// Outcome is what became of a granted turn.
type Outcome string

const (
	OutcomeDelivered Outcome = timeline.OutcomeDelivered
	OutcomeSilent    Outcome = timeline.OutcomeSilent
	OutcomeTimeout   Outcome = timeline.OutcomeTimeout
	OutcomeFailed    Outcome = timeline.OutcomeFailed
)

// CallKey identifies one agent's interest in one destination.
type CallKey struct {
	Agent       string
	Destination string
}

func (k CallKey) String() string {
	return k.Agent + "@" + k.Destination
}

// Turn is a grant to speak once in Destination.
type Turn struct {
	TraceID     string
	Destination string
	Personality *persona.Personality
	Weight      int
	GrantedAt   time.Time
}

// TurnHandler speaks for one agent when it is granted a turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn Turn) (Outcome, error)
}

// TurnHandlerFunc adapts a function to TurnHandler.
type TurnHandlerFunc func(ctx context.Context, turn Turn) (Outcome, error)

func (f TurnHandlerFunc) HandleTurn(ctx context.Context, turn Turn) (Outcome, error) {
	return f(ctx, turn)
}

// Config holds scheduler settings.
type Config struct {
	CallsPerMinute       int
	DecayChancePerMinute float64
	Seed                 int64 // Zero seeds from the clock.
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	return Config{
		CallsPerMinute:       20,
		DecayChancePerMinute: 0.5,
	}
}

// Interval is the wait between grants implied by CallsPerMinute.
func (c Config) Interval() time.Duration {
	if c.CallsPerMinute <= 0 {
		return time.Minute / time.Duration(DefaultConfig().CallsPerMinute)
	}
	return time.Minute / time.Duration(c.CallsPerMinute)
}

type registration struct {
	personality *persona.Personality
	handler     TurnHandler
}

// Scheduler maps agents to their handlers and grants turns through a
// weighted sampler.
type Scheduler struct {
	cfg      Config
	timeline *timeline.TimelineService
	sampler  *sampler.Sampler[CallKey]

	mu            sync.RWMutex
	registrations map[string]*registration
}

// New creates a Scheduler. tl may be nil, in which case turns are not journaled.
func New(cfg Config, tl *timeline.TimelineService) *Scheduler {
	if cfg.CallsPerMinute <= 0 {
		cfg.CallsPerMinute = DefaultConfig().CallsPerMinute
	}
	if cfg.DecayChancePerMinute < 0 {
		cfg.DecayChancePerMinute = 0
	}
	s := &Scheduler{
		cfg:           cfg,
		timeline:      tl,
		registrations: make(map[string]*registration),
	}
	s.sampler = sampler.New(sampler.Config{
		Interval:             cfg.Interval(),
		DecayChancePerMinute: cfg.DecayChancePerMinute,
		Seed:                 cfg.Seed,
	}, s.fire)
	return s
}

// RegisterTurnHandler installs h for agent, replacing any previous handler.
func (s *Scheduler) RegisterTurnHandler(agent string, h TurnHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registration(agent).handler = h
}

// RequestTurn records that p wants to speak in destination. Repeated requests
// before a grant add weight to the same key.
func (s *Scheduler) RequestTurn(p *persona.Personality, destination string) {
	s.mu.Lock()
	s.registration(p.Name).personality = p
	s.mu.Unlock()

	s.sampler.Record(CallKey{Agent: p.Name, Destination: destination})
}

// registration returns agent's entry, creating it. Callers hold mu.
func (s *Scheduler) registration(agent string) *registration {
	r, ok := s.registrations[agent]
	if !ok {
		r = &registration{}
		s.registrations[agent] = r
	}
	return r
}

// SilenceAll drops every pending turn request.
func (s *Scheduler) SilenceAll() {
	s.sampler.ClearAll()
	slog.Info("Scheduler silenced all agents")
}

// SilenceAgent drops agent's pending requests in every destination and
// returns how many were dropped.
func (s *Scheduler) SilenceAgent(agent string) int {
	n := s.sampler.ClearWhere(func(k CallKey) bool { return k.Agent == agent })
	slog.Info("Scheduler silenced agent", "agent", agent, "dropped", n)
	return n
}

// Pending returns the outstanding requests in the order they were first made.
func (s *Scheduler) Pending() []sampler.Entry[CallKey] {
	return s.sampler.Snapshot()
}

// Interval returns the wait between grants.
func (s *Scheduler) Interval() time.Duration {
	return s.sampler.Interval()
}

// Run grants turns until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "calls_per_minute", s.cfg.CallsPerMinute, "decay_per_minute", s.cfg.DecayChancePerMinute)
	return s.sampler.Run(ctx)
}

// Stop ends Run after the turn in flight.
func (s *Scheduler) Stop() {
	s.sampler.Stop()
}

func (s *Scheduler) fire(ctx context.Context, key CallKey, weight int) error {
	s.mu.RLock()
	reg := s.registrations[key.Agent]
	var (
		p *persona.Personality
		h TurnHandler
	)
	if reg != nil {
		p, h = reg.personality, reg.handler
	}
	s.mu.RUnlock()

	if p == nil || h == nil {
		return fmt.Errorf("%w: agent %q", ErrMissingRegistration, key.Agent)
	}

	turn := Turn{
		TraceID:     uuid.NewString(),
		Destination: key.Destination,
		Personality: p,
		Weight:      weight,
		GrantedAt:   time.Now(),
	}
	slog.Info("Scheduler granted turn", "agent", key.Agent, "destination", key.Destination, "weight", weight, "trace_id", turn.TraceID)

	outcome, err := h.HandleTurn(ctx, turn)
	switch {
	case errors.Is(err, ErrCallTimeout):
		outcome = OutcomeTimeout
	case err != nil:
		outcome = OutcomeFailed
	case outcome == "":
		outcome = OutcomeDelivered
	}
	s.logTurn(turn, outcome, err)
	return err
}

// logTurn persists the turn to the journal (best-effort).
func (s *Scheduler) logTurn(turn Turn, outcome Outcome, err error) {
	if s.timeline == nil {
		return
	}
	evt := &timeline.TurnEvent{
		TraceID:     turn.TraceID,
		Agent:       turn.Personality.Name,
		Destination: turn.Destination,
		Weight:      turn.Weight,
		Outcome:     string(outcome),
		StartedAt:   turn.GrantedAt,
		Duration:    time.Since(turn.GrantedAt),
	}
	if err != nil {
		evt.ErrorText = err.Error()
	}
	if jerr := s.timeline.RecordTurn(evt); jerr != nil {
		slog.Warn("Scheduler failed to journal turn", "trace_id", turn.TraceID, "error", jerr)
	}
}
