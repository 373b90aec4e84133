// Package evalclient talks to a remote evaluation service over HTTP.
package evalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
)

// Operation names, also the endpoint paths under /api/interview/.
const (
	OpGenerateQuestions = "generate-questions"
	OpEvaluateAnswer    = "evaluate-answer"
	OpStartMock         = "start-mock"
	OpContinueMock      = "mock-continue"
)

const maxResponseBytes = 1 << 20

var (
	// ErrUnauthorized means the service rejected the API token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected means the service refused the request as invalid.
	ErrRejected = errors.New("request rejected")
	// ErrUnavailable means the service could not be reached or failed.
	ErrUnavailable = errors.New("service unavailable")
	// ErrBadResponse means the service answered with a body we cannot use.
	ErrBadResponse = errors.New("bad response")
)

// RequestError is returned for every failed call so the caller can tell an
// unreachable service from one that answered with an error.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": HTTP %d", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client implements session.Evaluator against a remote service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Compile-time check: *Client satisfies the session's Evaluator.
var _ session.Evaluator = (*Client)(nil)

// New creates a client for the service at baseURL (e.g. "http://localhost:8080").
// A non-empty token is sent as a bearer token. Per-call deadlines come from
// the context; timeout is only a backstop for callers without one.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = session.DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) GenerateQuestions(ctx context.Context, role model.Role, count int, difficulty model.Difficulty) ([]model.Question, error) {
	var resp model.GenerateQuestionsResponse
	req := model.GenerateQuestionsRequest{Role: role, Count: count, Difficulty: difficulty}
	if err := c.post(ctx, OpGenerateQuestions, req, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

func (c *Client) EvaluateAnswer(ctx context.Context, q model.Question, answer string, role model.Role) (model.Evaluation, error) {
	var resp model.EvaluateAnswerResponse
	req := model.EvaluateAnswerRequest{Question: q, Answer: answer, Role: role}
	if err := c.post(ctx, OpEvaluateAnswer, req, &resp); err != nil {
		return model.Evaluation{}, err
	}
	if resp.Evaluation == nil {
		return model.Evaluation{}, &RequestError{Op: OpEvaluateAnswer, Status: http.StatusOK, Message: "missing evaluation", Err: ErrBadResponse}
	}
	return *resp.Evaluation, nil
}

func (c *Client) StartMock(ctx context.Context, role model.Role) (model.MockStart, error) {
	var resp model.MockStart
	if err := c.post(ctx, OpStartMock, model.StartMockRequest{Role: role}, &resp); err != nil {
		return model.MockStart{}, err
	}
	return resp, nil
}

func (c *Client) ContinueMock(ctx context.Context, sessionID, answer string, role model.Role) (model.MockReply, error) {
	var resp model.MockReply
	req := model.ContinueMockRequest{SessionID: sessionID, Answer: answer, Role: role}
	if err := c.post(ctx, OpContinueMock, req, &resp); err != nil {
		return model.MockReply{}, err
	}
	return resp, nil
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/", nil)
	if err != nil {
		return "", &RequestError{Op: "health", Err: err}
	}
	var resp model.HealthResponse
	if err := c.do(httpReq, "health", &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) post(ctx context.Context, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/interview/"+op, bytes.NewReader(payload))
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, op, out)
}

func (c *Client) do(httpReq *http.Request, op string, out any) error {
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Keep context errors visible to errors.Is.
		if ctxErr := httpReq.Context().Err(); ctxErr != nil {
			return &RequestError{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)}
		}
		return &RequestError{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	slog.Debug("evaluation service call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e model.ErrorResponse
		_ = json.Unmarshal(data, &e)
		return &RequestError{Op: op, Status: resp.StatusCode, Message: e.Error, Err: classify(resp.StatusCode)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %w", ErrBadResponse, err)}
	}
	return nil
}

func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 400 && status < 500:
		return ErrRejected
	default:
		return ErrUnavailable
	}
}
