package session

import (
	"context"

	"github.com/pavelanni/interviewer/internal/model"
)

// Evaluator is the remote question and evaluation service as seen by a
// session. Implementations translate transport failures into plain errors;
// the session never inspects transport details.
//
// Both the HTTP client (evalclient) and the in-process LLM engine (llm)
// satisfy it.
type Evaluator interface {
	// GenerateQuestions returns exactly count questions for the role.
	GenerateQuestions(ctx context.Context, role model.Role, count int, difficulty model.Difficulty) ([]model.Question, error)
	// EvaluateAnswer scores one answer to one question.
	EvaluateAnswer(ctx context.Context, q model.Question, answer string, role model.Role) (model.Evaluation, error)
	// StartMock opens a conversational interview.
	StartMock(ctx context.Context, role model.Role) (model.MockStart, error)
	// ContinueMock sends the candidate's answer and returns the interviewer's reply.
	ContinueMock(ctx context.Context, sessionID, answer string, role model.Role) (model.MockReply, error)
}
