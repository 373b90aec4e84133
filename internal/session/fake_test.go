package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pavelanni/interviewer/internal/model"
)

// fakeEvaluator dispatches to per-test functions and counts calls.
type fakeEvaluator struct {
	generate func(ctx context.Context, role model.Role, count int, d model.Difficulty) ([]model.Question, error)
	evaluate func(ctx context.Context, q model.Question, answer string, role model.Role) (model.Evaluation, error)
	start    func(ctx context.Context, role model.Role) (model.MockStart, error)
	cont     func(ctx context.Context, id, answer string, role model.Role) (model.MockReply, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeEvaluator) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *fakeEvaluator) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeEvaluator) GenerateQuestions(ctx context.Context, role model.Role, count int, d model.Difficulty) ([]model.Question, error) {
	f.count("generate")
	return f.generate(ctx, role, count, d)
}

func (f *fakeEvaluator) EvaluateAnswer(ctx context.Context, q model.Question, answer string, role model.Role) (model.Evaluation, error) {
	f.count("evaluate")
	return f.evaluate(ctx, q, answer, role)
}

func (f *fakeEvaluator) StartMock(ctx context.Context, role model.Role) (model.MockStart, error) {
	f.count("start")
	return f.start(ctx, role)
}

func (f *fakeEvaluator) ContinueMock(ctx context.Context, id, answer string, role model.Role) (model.MockReply, error) {
	f.count("continue")
	return f.cont(ctx, id, answer, role)
}

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{Text: fmt.Sprintf("Question %d", i+1), Difficulty: "Medium"}
	}
	return qs
}

// batchEvaluator serves count questions and scores answers from scores in order.
func batchEvaluator(scores ...float64) *fakeEvaluator {
	var mu sync.Mutex
	next := 0
	return &fakeEvaluator{
		generate: func(_ context.Context, _ model.Role, count int, _ model.Difficulty) ([]model.Question, error) {
			return makeQuestions(count), nil
		},
		evaluate: func(_ context.Context, q model.Question, _ string, _ model.Role) (model.Evaluation, error) {
			mu.Lock()
			defer mu.Unlock()
			s := 7.0
			if next < len(scores) {
				s = scores[next]
			}
			next++
			return model.Evaluation{
				Score:        s,
				Feedback:     "feedback for " + q.Text,
				Strengths:    []string{"clear"},
				Improvements: []string{"examples"},
			}, nil
		},
	}
}

// mockEvaluator runs a conversational interview that completes after
// completeAfter answers (never when completeAfter <= 0).
func mockEvaluator(completeAfter int) *fakeEvaluator {
	var mu sync.Mutex
	answers := 0
	return &fakeEvaluator{
		start: func(_ context.Context, role model.Role) (model.MockStart, error) {
			return model.MockStart{
				SessionID:     "mock_1",
				Greeting:      "Hello!",
				FirstQuestion: "Tell me about yourself as a " + string(role),
			}, nil
		},
		cont: func(_ context.Context, id, _ string, _ model.Role) (model.MockReply, error) {
			mu.Lock()
			defer mu.Unlock()
			if id != "mock_1" {
				return model.MockReply{}, fmt.Errorf("unknown session %q", id)
			}
			answers++
			if completeAfter > 0 && answers >= completeAfter {
				return model.MockReply{IsComplete: true, ClosingMessage: "Thank you for your time."}, nil
			}
			return model.MockReply{
				Feedback:     fmt.Sprintf("Feedback %d", answers),
				NextQuestion: fmt.Sprintf("Follow-up %d", answers),
			}, nil
		},
	}
}
