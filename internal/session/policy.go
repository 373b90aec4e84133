package session

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/interviewer/internal/model"
)

// DefaultPlannedCount is the batch size used when none is configured.
const DefaultPlannedCount = 5

// Opening is what a policy learns from the service when a session starts.
type Opening struct {
	SessionID    string
	Greeting     string
	Prompt       model.Question
	PlannedCount int
}

// Exchange is one accepted answer on its way to the service.
type Exchange struct {
	SessionID string
	Role      model.Role
	Prompt    model.Question
	Answer    string
}

// Reply is a validated service response. Exactly one field is set,
// depending on the policy that produced it.
type Reply struct {
	Evaluation *model.Evaluation
	Mock       *model.MockReply
}

// Policy is the per-mode part of a session: which calls it makes, how it
// reads their replies, and when the session is over.
type Policy interface {
	Mode() model.Mode
	// Open bootstraps the session.
	Open(ctx context.Context, ev Evaluator, role model.Role) (Opening, error)
	// Send issues the mode's evaluation call and validates the reply.
	Send(ctx context.Context, ev Evaluator, ex Exchange) (Reply, error)
	// Record turns an exchange and its reply into ledger entries.
	Record(ex Exchange, r Reply) []model.Turn
	// IsComplete decides completion from the ledger (including the entries
	// just recorded) and the last reply.
	IsComplete(turns []model.Turn, last Reply) bool
	// NextPrompt returns the prompt to present after last.
	NextPrompt(turns []model.Turn, last Reply) (model.Question, bool)
}

// BatchPolicy runs a fixed number of independently scored questions,
// fetched up front.
type BatchPolicy struct {
	count      int
	difficulty model.Difficulty
	questions  []model.Question
}

var _ Policy = (*BatchPolicy)(nil)

// NewBatchPolicy creates a policy for count questions of the given difficulty.
func NewBatchPolicy(count int, difficulty model.Difficulty) *BatchPolicy {
	if count <= 0 {
		count = DefaultPlannedCount
	}
	if difficulty == "" {
		difficulty = model.DifficultyMixed
	}
	return &BatchPolicy{count: count, difficulty: difficulty}
}

func (p *BatchPolicy) Mode() model.Mode { return model.ModeBatch }

func (p *BatchPolicy) Open(ctx context.Context, ev Evaluator, role model.Role) (Opening, error) {
	qs, err := ev.GenerateQuestions(ctx, role, p.count, p.difficulty)
	if err != nil {
		return Opening{}, fmt.Errorf("generate questions: %w", err)
	}
	if len(qs) == 0 {
		return Opening{}, ErrNoQuestions
	}
	if len(qs) != p.count {
		return Opening{}, fmt.Errorf("%w: got %d questions, want %d", ErrMalformedReply, len(qs), p.count)
	}
	questions := make([]model.Question, len(qs))
	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			return Opening{}, fmt.Errorf("%w: question %d has no text", ErrMalformedReply, i+1)
		}
		q.Difficulty = model.NormalizeDifficulty(string(q.Difficulty))
		questions[i] = q
	}
	p.questions = questions
	return Opening{Prompt: questions[0], PlannedCount: p.count}, nil
}

func (p *BatchPolicy) Send(ctx context.Context, ev Evaluator, ex Exchange) (Reply, error) {
	e, err := ev.EvaluateAnswer(ctx, ex.Prompt, ex.Answer, ex.Role)
	if err != nil {
		return Reply{}, fmt.Errorf("evaluate answer: %w", err)
	}
	if math.IsNaN(e.Score) || e.Score < 0 || e.Score > model.MaxScore {
		return Reply{}, fmt.Errorf("%w: score %v outside [0, %v]", ErrMalformedReply, e.Score, model.MaxScore)
	}
	return Reply{Evaluation: &e}, nil
}

func (p *BatchPolicy) Record(ex Exchange, r Reply) []model.Turn {
	return []model.Turn{{Question: ex.Prompt, Answer: ex.Answer, Evaluation: r.Evaluation}}
}

func (p *BatchPolicy) IsComplete(turns []model.Turn, _ Reply) bool {
	return len(turns) >= p.count
}

func (p *BatchPolicy) NextPrompt(turns []model.Turn, _ Reply) (model.Question, bool) {
	if len(turns) >= len(p.questions) {
		return model.Question{}, false
	}
	return p.questions[len(turns)], true
}

// ConversationalPolicy runs an open-ended interview whose length the
// service decides.
type ConversationalPolicy struct{}

var _ Policy = ConversationalPolicy{}

func (ConversationalPolicy) Mode() model.Mode { return model.ModeConversational }

func (ConversationalPolicy) Open(ctx context.Context, ev Evaluator, role model.Role) (Opening, error) {
	start, err := ev.StartMock(ctx, role)
	if err != nil {
		return Opening{}, fmt.Errorf("start mock interview: %w", err)
	}
	if start.SessionID == "" {
		return Opening{}, fmt.Errorf("%w: missing session id", ErrMalformedReply)
	}
	if strings.TrimSpace(start.FirstQuestion) == "" {
		return Opening{}, ErrNoQuestions
	}
	return Opening{
		SessionID: start.SessionID,
		Greeting:  start.Greeting,
		Prompt:    model.Question{Text: start.FirstQuestion},
	}, nil
}

func (ConversationalPolicy) Send(ctx context.Context, ev Evaluator, ex Exchange) (Reply, error) {
	r, err := ev.ContinueMock(ctx, ex.SessionID, ex.Answer, ex.Role)
	if err != nil {
		return Reply{}, fmt.Errorf("continue mock interview: %w", err)
	}
	if r.IsComplete {
		if strings.TrimSpace(r.ClosingMessage) == "" {
			return Reply{}, fmt.Errorf("%w: completed without a closing message", ErrMalformedReply)
		}
	} else if strings.TrimSpace(r.NextQuestion) == "" || strings.TrimSpace(r.Feedback) == "" {
		return Reply{}, fmt.Errorf("%w: missing feedback or next question", ErrMalformedReply)
	}
	return Reply{Mock: &r}, nil
}

// Record appends the answered turn and, when the service closes the
// interview, a final transcript-only turn holding the closing message.
func (ConversationalPolicy) Record(ex Exchange, r Reply) []model.Turn {
	note := r.Mock.Feedback
	if !r.Mock.IsComplete {
		return []model.Turn{{Question: ex.Prompt, Answer: ex.Answer, TranscriptNote: note}}
	}
	if note == "" {
		note = r.Mock.ClosingMessage
	}
	return []model.Turn{
		{Question: ex.Prompt, Answer: ex.Answer, TranscriptNote: note},
		{TranscriptNote: r.Mock.ClosingMessage},
	}
}

// IsComplete only trusts the service's flag; turn counts never end a
// conversational session.
func (ConversationalPolicy) IsComplete(_ []model.Turn, last Reply) bool {
	return last.Mock != nil && last.Mock.IsComplete
}

func (ConversationalPolicy) NextPrompt(_ []model.Turn, last Reply) (model.Question, bool) {
	if last.Mock == nil || last.Mock.NextQuestion == "" {
		return model.Question{}, false
	}
	return model.Question{Text: last.Mock.NextQuestion}, true
}

// NewPolicy returns a fresh policy for mode.
func NewPolicy(mode model.Mode, count int, difficulty model.Difficulty) (Policy, error) {
	switch mode {
	case model.ModeBatch:
		return NewBatchPolicy(count, difficulty), nil
	case model.ModeConversational:
		return ConversationalPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}
