package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// fakeLLM is an OpenAI-compatible chat completions endpoint whose answer is
// chosen by reply from the prompt text. Any status but 200 fails the request.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (status int, content string)
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	status, content := f.reply(prompt)
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": content, "type": "server_error"}})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeLLM) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 {
		i += len(f.prompts)
	}
	return f.prompts[i]
}

func newTestClient(t *testing.T, f *fakeLLM, opts ...Option) *Client {
	t.Helper()
	if err := prompts.Load(prompts.Templates); err != nil {
		t.Fatalf("prompts.Load: %v", err)
	}
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "test-key", "test-model", opts...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! {"a":{"b":2}} Hope this helps.`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}{"}`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"say \"}\""}`, `{"a":"say \"}\""}`},
		{"stray closing brace", `} {"a":1}`, `{"a":1}`},
		{"none", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseQuestions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"object", `{"questions":[{"text":"Q1","difficulty":"Easy"},{"text":"Q2"}]}`, 2, false},
		{"bare array", `[{"text":"Q1"},{"text":"Q2"},{"text":"Q3"}]`, 3, false},
		{"fenced array", "```json\n[{\"text\":\"Q1\"}]\n```", 1, false},
		{"garbage", "I cannot help with that.", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := parseQuestions(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseQuestions err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(qs) != tt.want {
				t.Errorf("got %d questions, want %d", len(qs), tt.want)
			}
		})
	}
}

func TestGenerateQuestions(t *testing.T) {
	f := &fakeLLM{reply: func(string) (int, string) {
		return http.StatusOK, `{"questions":[
			{"text":"Explain REST","difficulty":"Easy","context":"APIs"},
			{"text":"  ","difficulty":"Hard"},
			{"text":"Design a cache","difficulty":"HARD"},
			{"text":"Debug a leak","difficulty":"tricky"}
		]}`
	}}
	c := newTestClient(t, f)

	qs, err := c.GenerateQuestions(context.Background(), "Backend Developer", 3, "")
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("got %d questions, want 3", len(qs))
	}
	want := []model.Question{
		{Text: "Explain REST", Difficulty: model.DifficultyEasy, Context: "APIs"},
		{Text: "Design a cache", Difficulty: model.DifficultyHard},
		{Text: "Debug a leak", Difficulty: model.DifficultyMedium},
	}
	for i := range want {
		if qs[i] != want[i] {
			t.Errorf("question %d = %+v, want %+v", i, qs[i], want[i])
		}
	}
	if p := f.prompt(0); !strings.Contains(p, "Backend Developer") || !strings.Contains(p, "mixed") {
		t.Errorf("prompt missing role or default difficulty:\n%s", p)
	}
}

func TestGenerateQuestionsTopsUpAndTruncates(t *testing.T) {
	f := &fakeLLM{reply: func(string) (int, string) {
		return http.StatusOK, `{"questions":[{"text":"Only one","difficulty":"medium"}]}`
	}}
	c := newTestClient(t, f)

	qs, err := c.GenerateQuestions(context.Background(), "Data Scientist", 4, model.DifficultyMedium)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 4 {
		t.Fatalf("got %d questions, want 4", len(qs))
	}
	if qs[0].Text != "Only one" || qs[1].Text != "Tell me about your experience as a Data Scientist." {
		t.Errorf("unexpected top-up: %+v", qs)
	}

	qs, err = c.GenerateQuestions(context.Background(), "Data Scientist", 1, model.DifficultyMedium)
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 1 {
		t.Errorf("got %d questions, want 1", len(qs))
	}
}

func TestGenerateQuestionsFallback(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusInternalServerError, "boom"},
		{"unparseable", http.StatusOK, "Here are some questions: 1. Why?"},
		{"empty list", http.StatusOK, `{"questions":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLLM{reply: func(string) (int, string) { return tt.status, tt.body }}
			c := newTestClient(t, f)
			qs, err := c.GenerateQuestions(context.Background(), "Product Manager", 7, model.DifficultyEasy)
			if err != nil {
				t.Fatalf("GenerateQuestions: %v", err)
			}
			if len(qs) != 7 {
				t.Fatalf("got %d fallback questions, want 7", len(qs))
			}
			if qs[0].Text != "Tell me about your experience as a Product Manager." || qs[5].Text != qs[0].Text {
				t.Errorf("fallback bank not cycled: %q / %q", qs[0].Text, qs[5].Text)
			}
		})
	}
}

func TestGenerateQuestionsValidation(t *testing.T) {
	f := &fakeLLM{reply: func(string) (int, string) { return http.StatusOK, `{}` }}
	c := newTestClient(t, f)
	tests := []struct {
		name       string
		role       model.Role
		count      int
		difficulty model.Difficulty
	}{
		{"empty role", " ", 5, ""},
		{"zero count", "QA", 0, ""},
		{"too many", "QA", MaxQuestionCount + 1, ""},
		{"bad difficulty", "QA", 5, "impossible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.GenerateQuestions(context.Background(), tt.role, tt.count, tt.difficulty)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if f.calls() != 0 {
		t.Errorf("invalid requests reached the model %d times", f.calls())
	}
}

func TestEvaluateAnswer(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantScore float64
		wantErr   error
	}{
		{"normal", `{"score":7.5,"feedback":"Solid","strengths":["clear"," "],"improvements":["depth"]}`, 7.5, nil},
		{"clamped high", `{"score":14,"feedback":"wow"}`, 10, nil},
		{"clamped low", `{"score":-3,"feedback":"hmm"}`, 0, nil},
		{"fenced", "```json\n{\"score\":6,\"feedback\":\"ok\"}\n```", 6, nil},
		{"no score", `{"feedback":"nice"}`, 0, ErrUnparseable},
		{"not json", "Great answer, 8/10!", 0, ErrUnparseable},
		{"score is text", `{"score":"eight"}`, 0, ErrUnparseable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLLM{reply: func(string) (int, string) { return http.StatusOK, tt.body }}
			c := newTestClient(t, f, WithVariant(prompts.PromptStrict))
			ev, err := c.EvaluateAnswer(context.Background(), model.Question{Text: "Explain CAP"}, "C, A, P", "Backend Developer")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("EvaluateAnswer: %v", err)
			}
			if ev.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", ev.Score, tt.wantScore)
			}
			if ev.Strengths == nil || ev.Improvements == nil {
				t.Error("lists must be non-nil")
			}
			if !strings.Contains(f.prompt(0), "demanding senior interviewer") {
				t.Error("strict variant not used")
			}
		})
	}

	t.Run("blank lists cleaned", func(t *testing.T) {
		f := &fakeLLM{reply: func(string) (int, string) {
			return http.StatusOK, `{"score":5,"feedback":"ok","strengths":["clear"," "]}`
		}}
		c := newTestClient(t, f)
		ev, err := c.EvaluateAnswer(context.Background(), model.Question{Text: "Q"}, "A", "QA")
		if err != nil {
			t.Fatalf("EvaluateAnswer: %v", err)
		}
		if len(ev.Strengths) != 1 || len(ev.Improvements) != 0 {
			t.Errorf("strengths = %v, improvements = %v", ev.Strengths, ev.Improvements)
		}
	})

	t.Run("api error", func(t *testing.T) {
		f := &fakeLLM{reply: func(string) (int, string) { return http.StatusServiceUnavailable, "overloaded" }}
		c := newTestClient(t, f)
		if _, err := c.EvaluateAnswer(context.Background(), model.Question{Text: "Q"}, "A", "QA"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty answer", func(t *testing.T) {
		f := &fakeLLM{reply: func(string) (int, string) { return http.StatusOK, `{"score":5}` }}
		c := newTestClient(t, f)
		if _, err := c.EvaluateAnswer(context.Background(), model.Question{Text: "Q"}, "  ", "QA"); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("err = %v, want ErrInvalidRequest", err)
		}
	})
}

func mockLLM(feedback, next string) *fakeLLM {
	return &fakeLLM{reply: func(prompt string) (int, string) {
		if strings.Contains(prompt, "This was the last question") {
			return http.StatusOK, `{"feedback":"Strong finish."}`
		}
		return http.StatusOK, `{"feedback":"` + feedback + `","next_question":"` + next + `"}`
	}}
}

func TestMockInterview(t *testing.T) {
	st := newTestStore(t)
	f := mockLLM("Good point.", "What about testing?")
	c := newTestClient(t, f, WithTranscripts(st), WithMockTurns(3))
	ctx := context.Background()

	start, err := c.StartMock(ctx, "QA Engineer")
	if err != nil {
		t.Fatalf("StartMock: %v", err)
	}
	if !strings.HasPrefix(start.SessionID, MockSessionPrefix) {
		t.Errorf("session id %q lacks prefix", start.SessionID)
	}
	if !strings.Contains(start.Greeting, "QA Engineer") || !strings.Contains(start.FirstQuestion, "QA Engineer") {
		t.Errorf("opening not role-specific: %+v", start)
	}
	if f.calls() != 0 {
		t.Error("start should not call the model")
	}

	for i := 1; i <= 2; i++ {
		r, err := c.ContinueMock(ctx, start.SessionID, "answer", "QA Engineer")
		if err != nil {
			t.Fatalf("ContinueMock %d: %v", i, err)
		}
		if r.IsComplete || r.Feedback != "Good point." || r.NextQuestion != "What about testing?" {
			t.Fatalf("turn %d reply = %+v", i, r)
		}
	}

	r, err := c.ContinueMock(ctx, start.SessionID, "last answer", "QA Engineer")
	if err != nil {
		t.Fatalf("final ContinueMock: %v", err)
	}
	if !r.IsComplete || r.ClosingMessage == "" || r.Feedback != "Strong finish." || r.NextQuestion != "" {
		t.Fatalf("closing reply = %+v", r)
	}

	if _, err := c.ContinueMock(ctx, start.SessionID, "more", "QA Engineer"); !errors.Is(err, ErrSessionComplete) {
		t.Errorf("continue after completion err = %v", err)
	}

	msgs, err := st.GetTranscript(start.SessionID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	// greeting, first question, 2 x (answer, feedback, next), answer, feedback, closing
	if len(msgs) != 11 {
		t.Errorf("transcript has %d messages, want 11", len(msgs))
	}
	if n, _ := st.CountCandidateMessages(start.SessionID); n != 3 {
		t.Errorf("candidate messages = %d, want 3", n)
	}
	// The model saw the earlier answers on later turns.
	if last := f.prompt(-1); !strings.Contains(last, "What about testing?") {
		t.Error("transcript not passed to the model")
	}
}

func TestContinueMockFailureStoresNothing(t *testing.T) {
	st := newTestStore(t)
	var fail atomic.Bool
	fail.Store(true)
	f := &fakeLLM{reply: func(string) (int, string) {
		if fail.Load() {
			return http.StatusInternalServerError, "down"
		}
		return http.StatusOK, `{"feedback":"ok","next_question":"Next?"}`
	}}
	c := newTestClient(t, f, WithTranscripts(st))
	ctx := context.Background()

	start, err := c.StartMock(ctx, "DevOps Engineer")
	if err != nil {
		t.Fatalf("StartMock: %v", err)
	}
	if _, err := c.ContinueMock(ctx, start.SessionID, "answer", ""); err == nil {
		t.Fatal("expected error from failing model")
	}
	msgs, _ := st.GetTranscript(start.SessionID)
	if len(msgs) != 2 {
		t.Fatalf("failed turn stored messages: %d", len(msgs))
	}

	fail.Store(false)
	if _, err := c.ContinueMock(ctx, start.SessionID, "answer", ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n, _ := st.CountCandidateMessages(start.SessionID); n != 1 {
		t.Errorf("candidate messages = %d, want 1", n)
	}
}

func TestContinueMockFallbackQuestion(t *testing.T) {
	st := newTestStore(t)
	f := &fakeLLM{reply: func(string) (int, string) { return http.StatusOK, `{"feedback":"Nice."}` }}
	c := newTestClient(t, f, WithTranscripts(st))
	ctx := context.Background()

	start, err := c.StartMock(ctx, "Business Analyst")
	if err != nil {
		t.Fatalf("StartMock: %v", err)
	}
	r, err := c.ContinueMock(ctx, start.SessionID, "answer", "Business Analyst")
	if err != nil {
		t.Fatalf("ContinueMock: %v", err)
	}
	if r.NextQuestion != "Can you tell me about a challenging project you've worked on?" {
		t.Errorf("next question = %q", r.NextQuestion)
	}
}

func TestContinueMockErrors(t *testing.T) {
	st := newTestStore(t)
	f := mockLLM("ok", "next?")
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		c := newTestClient(t, f, WithTranscripts(st))
		if _, err := c.ContinueMock(ctx, "mock_nope", "answer", "QA"); !errors.Is(err, ErrUnknownSession) {
			t.Errorf("err = %v, want ErrUnknownSession", err)
		}
	})

	t.Run("no store", func(t *testing.T) {
		c := newTestClient(t, f)
		if _, err := c.StartMock(ctx, "QA"); !errors.Is(err, ErrNoTranscripts) {
			t.Errorf("err = %v, want ErrNoTranscripts", err)
		}
	})

	t.Run("no feedback", func(t *testing.T) {
		bad := &fakeLLM{reply: func(string) (int, string) { return http.StatusOK, `{"next_question":"x"}` }}
		c := newTestClient(t, bad, WithTranscripts(st))
		start, err := c.StartMock(ctx, "QA")
		if err != nil {
			t.Fatalf("StartMock: %v", err)
		}
		if _, err := c.ContinueMock(ctx, start.SessionID, "answer", "QA"); !errors.Is(err, ErrUnparseable) {
			t.Errorf("err = %v, want ErrUnparseable", err)
		}
	})
}

func TestMockUsesContextLanguage(t *testing.T) {
	st := newTestStore(t)
	c := newTestClient(t, mockLLM("ok", "next?"), WithTranscripts(st))
	ctx := i18n.WithLanguage(context.Background(), "ru")

	start, err := c.StartMock(ctx, "QA")
	if err != nil {
		t.Fatalf("StartMock: %v", err)
	}
	if start.Greeting == i18n.Td(context.Background(), "MockGreeting", map[string]any{"Role": "QA"}) {
		t.Error("greeting not localized")
	}
	ms, _ := st.GetMockSession(start.SessionID)
	if ms.Lang != "ru" {
		t.Errorf("stored lang = %q, want ru", ms.Lang)
	}
}
