package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/pavelanni/interviewer/internal/catalog"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"

	openai "github.com/sashabaranov/go-openai"
)

// MaxQuestionCount bounds a single generate request.
const MaxQuestionCount = 20

// DefaultMockTurns is the number of candidate answers after which a mock
// interview closes.
const DefaultMockTurns = 5

// Errors the service maps onto HTTP statuses.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnparseable     = errors.New("unparseable model response")
	ErrUnknownSession  = errors.New("unknown mock session")
	ErrSessionComplete = errors.New("mock session is already complete")
	ErrNoTranscripts   = errors.New("mock interviews need a transcript store")
)

// TranscriptStore keeps mock interview transcripts between requests.
type TranscriptStore interface {
	CreateMockSession(ms model.MockSession) error
	GetMockSession(id string) (*model.MockSession, error)
	CompleteMockSession(id string) error
	AddTranscriptMessage(msg model.TranscriptMessage) (int64, error)
	GetTranscript(sessionID string) ([]model.TranscriptMessage, error)
	CountCandidateMessages(sessionID string) (int, error)
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	variant     prompts.PromptVariant
	catalog     *catalog.Catalog
	transcripts TranscriptStore
	mockTurns   int

	// Per mock session; serializes continue requests for one session.
	locks sync.Map
}

var _ session.Evaluator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithVariant selects the evaluation prompt variant.
func WithVariant(v prompts.PromptVariant) Option {
	return func(c *Client) { c.variant = v }
}

// WithCatalog sets the catalog whose fallback bank backs question generation.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Client) { c.catalog = cat }
}

// WithTranscripts enables mock interviews backed by ts.
func WithTranscripts(ts TranscriptStore) Option {
	return func(c *Client) { c.transcripts = ts }
}

// WithMockTurns sets how many answers a mock interview takes.
func WithMockTurns(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.mockTurns = n
		}
	}
}

// New creates a new LLM client. Prompt templates must be loaded with
// prompts.Load before the client is used.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c := &Client{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		variant:   prompts.PromptStandard,
		catalog:   catalog.Default(),
		mockTurns: DefaultMockTurns,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type questionsReply struct {
	Questions []model.Question `json:"questions"`
}

// GenerateQuestions asks the model for count questions. When the call fails
// or its output cannot be used, the fallback bank answers instead, so the
// result always holds exactly count questions.
func (c *Client) GenerateQuestions(ctx context.Context, role model.Role, count int, difficulty model.Difficulty) ([]model.Question, error) {
	role = model.Role(strings.TrimSpace(string(role)))
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidRequest)
	}
	if count < 1 || count > MaxQuestionCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxQuestionCount)
	}
	if difficulty == "" {
		difficulty = model.DifficultyMixed
	}
	difficulty = model.Difficulty(strings.ToLower(string(difficulty)))
	if !model.IsValidRequestDifficulty(difficulty) {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, difficulty)
	}

	qs, err := c.generate(ctx, role, count, difficulty)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("question generation failed, using fallback questions", "role", role, "error", err)
		return c.catalog.Fallback(role, count), nil
	}
	if len(qs) < count {
		slog.Warn("model returned too few questions, topping up from fallback", "role", role, "got", len(qs), "want", count)
		qs = append(qs, c.catalog.Fallback(role, count-len(qs))...)
	}
	slog.Info("generated questions", "role", role, "count", count, "difficulty", difficulty)
	return qs[:count], nil
}

func (c *Client) generate(ctx context.Context, role model.Role, count int, difficulty model.Difficulty) ([]model.Question, error) {
	prompt, err := prompts.BuildGeneratePrompt(role, count, difficulty)
	if err != nil {
		return nil, err
	}
	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}
	parsed, err := parseQuestions(raw)
	if err != nil {
		return nil, err
	}
	var qs []model.Question
	for _, q := range parsed {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		q.Difficulty = model.NormalizeDifficulty(string(q.Difficulty))
		q.Context = strings.TrimSpace(q.Context)
		qs = append(qs, q)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no usable questions", ErrUnparseable)
	}
	return qs, nil
}

// parseQuestions accepts {"questions": [...]} or a bare array, optionally
// wrapped in prose or a code fence.
func parseQuestions(raw string) ([]model.Question, error) {
	if obj := extractJSON(raw); obj != "" {
		var r questionsReply
		if err := json.Unmarshal([]byte(obj), &r); err == nil && len(r.Questions) > 0 {
			return r.Questions, nil
		}
	}
	start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		var qs []model.Question
		if err := json.Unmarshal([]byte(raw[start:end+1]), &qs); err == nil {
			return qs, nil
		}
	}
	return nil, fmt.Errorf("%w: no question list in response", ErrUnparseable)
}

type evaluationReply struct {
	Score        *float64 `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// EvaluateAnswer scores answer on the 0-10 scale. Output without a score is
// an error, never a made-up grade.
func (c *Client) EvaluateAnswer(ctx context.Context, q model.Question, answer string, role model.Role) (model.Evaluation, error) {
	if strings.TrimSpace(q.Text) == "" {
		return model.Evaluation{}, fmt.Errorf("%w: question text is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(answer) == "" {
		return model.Evaluation{}, fmt.Errorf("%w: answer is required", ErrInvalidRequest)
	}

	prompt, err := prompts.BuildEvaluatePrompt(c.variant, role, q, answer)
	if err != nil {
		return model.Evaluation{}, err
	}
	raw, err := c.complete(ctx, prompt, 0.3)
	if err != nil {
		return model.Evaluation{}, err
	}

	var r evaluationReply
	obj := extractJSON(raw)
	if obj == "" {
		return model.Evaluation{}, fmt.Errorf("%w: no JSON object in evaluation", ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return model.Evaluation{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if r.Score == nil {
		return model.Evaluation{}, fmt.Errorf("%w: evaluation has no score", ErrUnparseable)
	}

	ev := model.Evaluation{
		Score:        clampScore(*r.Score),
		Feedback:     strings.TrimSpace(r.Feedback),
		Strengths:    cleanList(r.Strengths),
		Improvements: cleanList(r.Improvements),
	}
	slog.Info("evaluated answer", "role", role, "score", ev.Score, "variant", c.variant)
	return ev, nil
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(model.MaxScore, s))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// complete sends a single-prompt chat request in JSON mode and returns the
// raw content of the first choice.
func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: LLM returned no choices", ErrUnparseable)
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// extractJSON returns the first balanced top-level JSON object in s, or ""
// if there is none. Braces inside strings are ignored.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
