package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/evalclient"
	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// stubEvaluator answers every call from its func fields; a nil field fails.
type stubEvaluator struct {
	generate func(role model.Role, count int, d model.Difficulty) ([]model.Question, error)
	evaluate func(q model.Question, answer string) (model.Evaluation, error)
	start    func(role model.Role) (model.MockStart, error)
	cont     func(id, answer string) (model.MockReply, error)
}

var errNotStubbed = errors.New("not stubbed")

func (s *stubEvaluator) GenerateQuestions(_ context.Context, role model.Role, count int, d model.Difficulty) ([]model.Question, error) {
	if s.generate == nil {
		return nil, errNotStubbed
	}
	return s.generate(role, count, d)
}

func (s *stubEvaluator) EvaluateAnswer(_ context.Context, q model.Question, answer string, _ model.Role) (model.Evaluation, error) {
	if s.evaluate == nil {
		return model.Evaluation{}, errNotStubbed
	}
	return s.evaluate(q, answer)
}

func (s *stubEvaluator) StartMock(_ context.Context, role model.Role) (model.MockStart, error) {
	if s.start == nil {
		return model.MockStart{}, errNotStubbed
	}
	return s.start(role)
}

func (s *stubEvaluator) ContinueMock(_ context.Context, id, answer string, _ model.Role) (model.MockReply, error) {
	if s.cont == nil {
		return model.MockReply{}, errNotStubbed
	}
	return s.cont(id, answer)
}

func newTestServer(t *testing.T, ev *stubEvaluator, cfg Config) *httptest.Server {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	srv := httptest.NewServer(New(ev, cfg).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{}, Config{Lang: "en"})
	resp, err := http.Get(srv.URL + "/api/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body model.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Message != HealthMessage {
		t.Errorf("got %d %q", resp.StatusCode, body.Message)
	}
}

func TestGenerateQuestionsHandler(t *testing.T) {
	ev := &stubEvaluator{
		generate: func(role model.Role, count int, d model.Difficulty) ([]model.Question, error) {
			if role != "Data Scientist" || count != 2 || d != model.DifficultyHard {
				return nil, fmt.Errorf("unexpected args %q %d %q", role, count, d)
			}
			return []model.Question{{Text: "a", Difficulty: model.DifficultyHard}, {Text: "b", Difficulty: model.DifficultyHard}}, nil
		},
	}
	srv := newTestServer(t, ev, Config{Lang: "en"})

	resp, body := post(t, srv, "/api/interview/generate-questions", `{"role":"Data Scientist","count":2,"difficulty":"hard"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	qs, _ := body["questions"].([]any)
	if len(qs) != 2 {
		t.Errorf("questions = %v", body["questions"])
	}
}

func TestRequestDecoding(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{
		start: func(role model.Role) (model.MockStart, error) {
			return model.MockStart{SessionID: "mock_1"}, nil
		},
	}, Config{Lang: "en"})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"valid", "/api/interview/start-mock", `{"role":"Backend Developer"}`, http.StatusOK},
		{"unknown field", "/api/interview/start-mock", `{"role":"x","extra":1}`, http.StatusBadRequest},
		{"not JSON", "/api/interview/start-mock", `role=x`, http.StatusBadRequest},
		{"trailing data", "/api/interview/start-mock", `{"role":"x"}{"role":"y"}`, http.StatusBadRequest},
		{"wrong type", "/api/interview/generate-questions", `{"role":"x","count":"five"}`, http.StatusBadRequest},
		{"missing session id", "/api/interview/mock-continue", `{"answer":"hi"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv, tt.path, tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.want, body)
			}
			if msg, _ := body["error"].(string); tt.want != http.StatusOK && msg == "" {
				t.Errorf("missing error message")
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: role is required", llm.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: mock_x", llm.ErrUnknownSession), http.StatusNotFound},
		{fmt.Errorf("%w: mock_x", llm.ErrSessionComplete), http.StatusConflict},
		{fmt.Errorf("%w: no score", llm.ErrUnparseable), http.StatusBadGateway},
		{errors.New("connection refused"), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{llm.ErrNoTranscripts, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := newTestServer(t, &stubEvaluator{
				cont: func(string, string) (model.MockReply, error) { return model.MockReply{}, tt.err },
			}, Config{Lang: "en"})
			resp, body := post(t, srv, "/api/interview/mock-continue", `{"session_id":"mock_x","answer":"hi","role":"r"}`, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.err.Error()) {
				t.Errorf("error = %q, want it to mention %q", msg, tt.err)
			}
		})
	}
}

func TestTokenAuth(t *testing.T) {
	hash, err := HashToken("s3cret")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	srv := newTestServer(t, &stubEvaluator{
		start: func(model.Role) (model.MockStart, error) { return model.MockStart{SessionID: "mock_1"}, nil },
	}, Config{Lang: "en", TokenHash: hash})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"valid", "Bearer s3cret", http.StatusOK},
		{"valid again", "bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]string{}
			if tt.header != "" {
				h["Authorization"] = tt.header
			}
			resp, _ := post(t, srv, "/api/interview/start-mock", `{"role":"r"}`, h)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	// Health stays open.
	resp, err := http.Get(srv.URL + "/api/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestEvaluatorTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ev := ctxEvaluator{stubEvaluator: &stubEvaluator{}, block: block}
	srv := httptest.NewServer(New(ev, Config{Lang: "en", Timeout: 20 * time.Millisecond}).Router())
	defer srv.Close()

	resp, _ := post(t, srv, "/api/interview/start-mock", `{"role":"r"}`, nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
}

// ctxEvaluator blocks StartMock until the call context ends.
type ctxEvaluator struct {
	*stubEvaluator
	block chan struct{}
}

func (c ctxEvaluator) StartMock(ctx context.Context, _ model.Role) (model.MockStart, error) {
	select {
	case <-ctx.Done():
		return model.MockStart{}, ctx.Err()
	case <-c.block:
		return model.MockStart{}, errNotStubbed
	}
}

// fakeChat is an OpenAI-compatible endpoint that plays the interviewer.
func fakeChat(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"feedback":"Solid answer.","next_question":"How do you test concurrent code?"}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
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
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMockInterviewOverHTTP(t *testing.T) {
	if err := prompts.Load(prompts.Templates); err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	chat := fakeChat(t)
	engine := llm.New(chat.URL+"/v1", "test", "test-model", llm.WithTranscripts(db), llm.WithMockTurns(2))
	hash, err := HashToken("tok")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	srv := httptest.NewServer(New(engine, Config{Lang: "en", TokenHash: hash}).Router())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	client := evalclient.New(srv.URL, "tok", 5*time.Second)

	start, err := client.StartMock(ctx, "Backend Developer")
	if err != nil {
		t.Fatalf("StartMock: %v", err)
	}
	if !strings.HasPrefix(start.SessionID, llm.MockSessionPrefix) || !strings.Contains(start.Greeting, "Backend Developer") {
		t.Errorf("start = %+v", start)
	}

	reply, err := client.ContinueMock(ctx, start.SessionID, "I build APIs in Go.", "Backend Developer")
	if err != nil {
		t.Fatalf("ContinueMock: %v", err)
	}
	if reply.IsComplete || reply.NextQuestion != "How do you test concurrent code?" {
		t.Errorf("first reply = %+v", reply)
	}

	reply, err = client.ContinueMock(ctx, start.SessionID, "Race detector and table tests.", "Backend Developer")
	if err != nil {
		t.Fatalf("ContinueMock: %v", err)
	}
	if !reply.IsComplete || reply.ClosingMessage == "" {
		t.Errorf("final reply = %+v", reply)
	}

	_, err = client.ContinueMock(ctx, start.SessionID, "One more thing.", "Backend Developer")
	var re *evalclient.RequestError
	if !errors.As(err, &re) || re.Status != http.StatusConflict {
		t.Errorf("continue after completion: err = %v, want HTTP 409", err)
	}

	_, err = client.ContinueMock(ctx, "mock_missing", "Hello?", "Backend Developer")
	if !errors.As(err, &re) || re.Status != http.StatusNotFound {
		t.Errorf("unknown session: err = %v, want HTTP 404", err)
	}

	_, err = evalclient.New(srv.URL, "wrong", time.Second).StartMock(ctx, "Backend Developer")
	if !errors.Is(err, evalclient.ErrUnauthorized) {
		t.Errorf("wrong token: err = %v, want ErrUnauthorized", err)
	}

	n, err := db.CountCandidateMessages(start.SessionID)
	if err != nil {
		t.Fatalf("CountCandidateMessages: %v", err)
	}
	if n != 2 {
		t.Errorf("stored answers = %d, want 2", n)
	}
}
