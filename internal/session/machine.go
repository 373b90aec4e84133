package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/report"
)

// DefaultTimeout bounds every call to the Evaluator.
const DefaultTimeout = 60 * time.Second

// Machine drives one interview session through
// Uninitialized -> Active -> Completed. While Active it is either awaiting
// an answer or submitting one; a submission in flight rejects further
// submissions instead of queueing them.
//
// A Machine is safe for concurrent use. The mutex is never held across an
// Evaluator call.
type Machine struct {
	ev      Evaluator
	policy  Policy
	timeout time.Duration
	now     func() time.Time

	mu         sync.Mutex
	status     model.SessionStatus
	inFlight   bool
	generation uint64
	role       model.Role
	sessionID  string
	greeting   string
	planned    int
	ledger     Ledger
	pending    *model.Question
	complete   bool
	startedAt  time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithTimeout sets the per-request timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates an uninitialized session.
func NewMachine(ev Evaluator, policy Policy, opts ...Option) *Machine {
	m := &Machine{
		ev:      ev,
		policy:  policy,
		timeout: DefaultTimeout,
		now:     time.Now,
		status:  model.StatusUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the session's mode.
func (m *Machine) Mode() model.Mode {
	return m.policy.Mode()
}

// Start bootstraps the session for role. On failure the machine stays
// uninitialized and Start may be called again.
func (m *Machine) Start(ctx context.Context, role model.Role) error {
	role = model.Role(strings.TrimSpace(string(role)))

	m.mu.Lock()
	switch {
	case m.status == model.StatusAbandoned:
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrAbandoned)
	case m.status != model.StatusUninitialized:
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrAlreadyStarted)
	case m.inFlight:
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrBusy)
	case role == "":
		m.mu.Unlock()
		return fmt.Errorf("%w: role is empty", ErrInvalidInput)
	}
	m.inFlight = true
	gen := m.generation
	m.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	opening, err := m.policy.Open(callCtx, m.ev, role)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		slog.Debug("discarding late session opening", "role", role, "mode", m.policy.Mode())
		return fmt.Errorf("%w: %w", ErrInitialization, ErrSuperseded)
	}
	m.inFlight = false
	if err != nil {
		slog.Warn("session initialization failed", "role", role, "mode", m.policy.Mode(), "error", err)
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	prompt := opening.Prompt
	m.role = role
	m.sessionID = opening.SessionID
	m.greeting = opening.Greeting
	m.planned = opening.PlannedCount
	m.pending = &prompt
	m.startedAt = m.now()
	m.status = model.StatusActive
	slog.Debug("session started", "role", role, "mode", m.policy.Mode(), "session_id", m.sessionID)
	return nil
}

// SubmitAnswer sends text as the answer to the pending prompt and applies
// the reply. On failure the ledger and pending prompt are unchanged and the
// caller must resubmit.
func (m *Machine) SubmitAnswer(ctx context.Context, text string) (model.SessionSnapshot, error) {
	answer := strings.TrimSpace(text)

	m.mu.Lock()
	if err := m.acceptLocked(answer); err != nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, err
	}
	m.inFlight = true
	gen := m.generation
	ex := Exchange{
		SessionID: m.sessionID,
		Role:      m.role,
		Prompt:    *m.pending,
		Answer:    answer,
	}
	turnNo := m.ledger.Count() + 1
	m.mu.Unlock()

	slog.Debug("submitting answer", "role", ex.Role, "turn", turnNo, "mode", m.policy.Mode())
	callCtx, cancel := m.callContext(ctx)
	reply, err := m.policy.Send(callCtx, m.ev, ex)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		slog.Debug("discarding late reply", "role", ex.Role, "turn", turnNo)
		return m.snapshotLocked(), fmt.Errorf("%w: %w", ErrSubmission, ErrSuperseded)
	}
	m.inFlight = false
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", err, context.DeadlineExceeded)
		}
		slog.Warn("answer submission failed", "role", ex.Role, "turn", turnNo, "error", err)
		return m.snapshotLocked(), fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	// Decide everything against the would-be ledger first so that a reply we
	// cannot advance from leaves no partial state behind.
	recorded := m.policy.Record(ex, reply)
	candidate := append(m.ledger.All(), recorded...)
	complete := m.policy.IsComplete(candidate, reply)
	var next model.Question
	if !complete {
		var ok bool
		next, ok = m.policy.NextPrompt(candidate, reply)
		if !ok {
			slog.Warn("reply has no next prompt", "role", ex.Role, "turn", turnNo)
			return m.snapshotLocked(), fmt.Errorf("%w: %w: no next prompt", ErrSubmission, ErrMalformedReply)
		}
	}

	for _, t := range recorded {
		m.ledger.Append(t)
	}
	if complete {
		m.complete = true
		m.pending = nil
		m.status = model.StatusCompleted
		slog.Debug("session completed", "role", m.role, "mode", m.policy.Mode(), "turns", m.ledger.Count())
	} else {
		m.pending = &next
	}
	return m.snapshotLocked(), nil
}

func (m *Machine) acceptLocked(answer string) error {
	switch {
	case m.status == model.StatusAbandoned:
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrAbandoned)
	case m.status == model.StatusUninitialized:
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrNotStarted)
	case m.complete:
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrCompleted)
	case m.inFlight:
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrBusy)
	case answer == "":
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyAnswer)
	}
	return nil
}

func (m *Machine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// IsFinished reports whether the session is complete.
func (m *Machine) IsFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}

// Snapshot returns a copy of the session state for presentation.
func (m *Machine) Snapshot() model.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		SessionID:    m.sessionID,
		Mode:         m.policy.Mode(),
		Role:         m.role,
		Status:       m.status,
		Greeting:     m.greeting,
		Turns:        m.ledger.All(),
		PlannedCount: m.planned,
		IsComplete:   m.complete,
		StartedAt:    m.startedAt,
	}
	if m.pending != nil {
		p := *m.pending
		snap.PendingPrompt = &p
	}
	return snap
}

// Finish summarizes a completed session.
func (m *Machine) Finish() (model.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.complete {
		return model.Summary{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNotComplete)
	}
	return report.Summarize(m.role, m.ledger.All())
}

// Abandon tears the session down. Replies to requests already in flight are
// discarded when they arrive. Abandoning a completed session is a no-op.
func (m *Machine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.complete || m.status == model.StatusAbandoned {
		return
	}
	m.generation++
	m.inFlight = false
	m.pending = nil
	m.status = model.StatusAbandoned
	slog.Debug("session abandoned", "role", m.role, "mode", m.policy.Mode(), "turns", m.ledger.Count())
}
