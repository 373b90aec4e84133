package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/model"
)

// Handle identifies a session started by a Coach.
type Handle string

// Archiver stores sessions once they end. Persistence failures are logged,
// never surfaced to the interview.
type Archiver interface {
	ArchiveSession(ctx context.Context, s model.ArchivedSession) error
}

// Config holds the per-session parameters a Coach applies.
type Config struct {
	PlannedCount int
	Difficulty   model.Difficulty
	Timeout      time.Duration
}

// Coach is the caller-facing boundary: it starts sessions, routes answers to
// them by handle, and hands finished ones to the aggregator and the archive.
// It keeps one live session; starting another supersedes it.
type Coach struct {
	ev       Evaluator
	cfg      Config
	archiver Archiver
	now      func() time.Time

	mu      sync.Mutex
	current *entry
}

type entry struct {
	handle   Handle
	machine  *Machine
	archived bool
}

// CoachOption configures a Coach.
type CoachOption func(*Coach)

// WithArchiver stores ended sessions in a.
func WithArchiver(a Archiver) CoachOption {
	return func(c *Coach) { c.archiver = a }
}

// WithCoachClock replaces time.Now, for tests.
func WithCoachClock(now func() time.Time) CoachOption {
	return func(c *Coach) { c.now = now }
}

// NewCoach creates a Coach that talks to ev.
func NewCoach(ev Evaluator, cfg Config, opts ...CoachOption) *Coach {
	if cfg.PlannedCount <= 0 {
		cfg.PlannedCount = DefaultPlannedCount
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = model.DifficultyMixed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Coach{ev: ev, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a new session, superseding any live one.
func (c *Coach) Start(ctx context.Context, role model.Role, mode model.Mode) (Handle, error) {
	policy, err := NewPolicy(mode, c.cfg.PlannedCount, c.cfg.Difficulty)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	m := NewMachine(c.ev, policy, WithTimeout(c.cfg.Timeout), WithClock(c.now))
	e := &entry{handle: Handle(uuid.NewString()), machine: m}

	c.mu.Lock()
	prev := c.current
	c.current = e
	c.mu.Unlock()
	if prev != nil {
		c.retire(ctx, prev)
	}

	if err := m.Start(ctx, role); err != nil {
		c.mu.Lock()
		if c.current == e {
			c.current = nil
		}
		c.mu.Unlock()
		return "", err
	}
	slog.Info("interview session started", "handle", e.handle, "role", role, "mode", mode)
	return e.handle, nil
}

// SubmitAnswer answers the pending prompt of the session h.
func (c *Coach) SubmitAnswer(ctx context.Context, h Handle, text string) (model.SessionSnapshot, error) {
	e, err := c.lookup(h)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	snap, err := e.machine.SubmitAnswer(ctx, text)
	if err == nil && snap.IsComplete {
		c.archive(ctx, e)
	}
	return snap, err
}

// Snapshot returns the current state of the session h.
func (c *Coach) Snapshot(h Handle) (model.SessionSnapshot, error) {
	e, err := c.lookup(h)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	return e.machine.Snapshot(), nil
}

// Finish summarizes the completed session h. Conversational sessions carry no
// scores and yield ErrEmptyResult.
func (c *Coach) Finish(ctx context.Context, h Handle) (model.Summary, error) {
	e, err := c.lookup(h)
	if err != nil {
		return model.Summary{}, err
	}
	summary, err := e.machine.Finish()
	if errors.Is(err, ErrInvalidInput) {
		return model.Summary{}, err
	}
	c.archive(ctx, e)
	return summary, err
}

// Abandon tears down the session h. Late replies for it are discarded.
func (c *Coach) Abandon(ctx context.Context, h Handle) error {
	c.mu.Lock()
	e := c.current
	if e == nil || e.handle != h {
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrUnknownSession)
	}
	c.current = nil
	c.mu.Unlock()
	c.retire(ctx, e)
	return nil
}

func (c *Coach) lookup(h Handle) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.handle != h {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrUnknownSession)
	}
	return c.current, nil
}

// retire abandons e, archiving whatever it recorded.
func (c *Coach) retire(ctx context.Context, e *entry) {
	e.machine.Abandon()
	if len(e.machine.Snapshot().Turns) > 0 {
		c.archive(ctx, e)
	}
}

func (c *Coach) archive(ctx context.Context, e *entry) {
	if c.archiver == nil {
		return
	}
	c.mu.Lock()
	if e.archived {
		c.mu.Unlock()
		return
	}
	e.archived = true
	c.mu.Unlock()

	snap := e.machine.Snapshot()
	finished := c.now()
	rec := model.ArchivedSession{
		ID:         string(e.handle),
		SessionID:  snap.SessionID,
		Role:       snap.Role,
		Mode:       snap.Mode,
		Status:     snap.Status,
		StartedAt:  snap.StartedAt,
		FinishedAt: &finished,
		Turns:      snap.Turns,
	}
	if snap.IsComplete {
		if s, err := e.machine.Finish(); err == nil {
			rec.Summary = &s
		}
	}
	if err := c.archiver.ArchiveSession(ctx, rec); err != nil {
		slog.Warn("failed to archive session", "handle", e.handle, "error", err)
		return
	}
	slog.Info("archived interview session", "handle", e.handle, "status", rec.Status, "turns", len(rec.Turns))
}
