package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
)

// MockSessionPrefix starts every mock interview id.
const MockSessionPrefix = "mock_"

type mockTurnReply struct {
	Feedback     string `json:"feedback"`
	NextQuestion string `json:"next_question"`
}

// StartMock opens a mock interview. The greeting and first question come from
// the localized message catalog; no model call is made.
func (c *Client) StartMock(ctx context.Context, role model.Role) (model.MockStart, error) {
	if c.transcripts == nil {
		return model.MockStart{}, ErrNoTranscripts
	}
	role = model.Role(strings.TrimSpace(string(role)))
	if role == "" {
		return model.MockStart{}, fmt.Errorf("%w: role is required", ErrInvalidRequest)
	}

	data := map[string]any{"Role": string(role)}
	start := model.MockStart{
		SessionID:     MockSessionPrefix + uuid.NewString(),
		Greeting:      i18n.Td(ctx, "MockGreeting", data),
		FirstQuestion: i18n.Td(ctx, "MockFirstQuestion", data),
	}

	err := c.transcripts.CreateMockSession(model.MockSession{
		ID:        start.SessionID,
		Role:      role,
		Lang:      i18n.LanguageFromContext(ctx),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return model.MockStart{}, fmt.Errorf("create mock session: %w", err)
	}
	for _, text := range []string{start.Greeting, start.FirstQuestion} {
		if err := c.addMessage(start.SessionID, model.SpeakerInterviewer, text); err != nil {
			return model.MockStart{}, err
		}
	}
	slog.Info("started mock interview", "session_id", start.SessionID, "role", role)
	return start, nil
}

// ContinueMock records the candidate's answer and returns the interviewer's
// reply. Once the configured number of answers is reached the interview
// closes. Nothing is stored unless the whole turn succeeds, so a failed call
// can be retried with the same answer.
func (c *Client) ContinueMock(ctx context.Context, sessionID, answer string, role model.Role) (model.MockReply, error) {
	if c.transcripts == nil {
		return model.MockReply{}, ErrNoTranscripts
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return model.MockReply{}, fmt.Errorf("%w: answer is required", ErrInvalidRequest)
	}

	unlock := c.lockSession(sessionID)
	defer unlock()

	ms, err := c.transcripts.GetMockSession(sessionID)
	if err != nil {
		return model.MockReply{}, fmt.Errorf("get mock session: %w", err)
	}
	if ms == nil {
		return model.MockReply{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if ms.CompletedAt != nil {
		return model.MockReply{}, fmt.Errorf("%w: %s", ErrSessionComplete, sessionID)
	}
	if strings.TrimSpace(string(role)) == "" {
		role = ms.Role
	}

	transcript, err := c.transcripts.GetTranscript(sessionID)
	if err != nil {
		return model.MockReply{}, fmt.Errorf("get transcript: %w", err)
	}
	answered, err := c.transcripts.CountCandidateMessages(sessionID)
	if err != nil {
		return model.MockReply{}, fmt.Errorf("count answers: %w", err)
	}
	transcript = append(transcript, model.TranscriptMessage{
		SessionID: sessionID,
		Speaker:   model.SpeakerCandidate,
		Content:   answer,
	})

	var reply model.MockReply
	if answered+1 >= c.mockTurns {
		reply = c.closeMock(ctx, role, transcript)
	} else {
		reply, err = c.nextTurn(ctx, role, transcript)
		if err != nil {
			return model.MockReply{}, err
		}
	}

	if err := c.addMessage(sessionID, model.SpeakerCandidate, answer); err != nil {
		return model.MockReply{}, err
	}
	for _, text := range []string{reply.Feedback, reply.NextQuestion, reply.ClosingMessage} {
		if text == "" {
			continue
		}
		if err := c.addMessage(sessionID, model.SpeakerInterviewer, text); err != nil {
			return model.MockReply{}, err
		}
	}
	if reply.IsComplete {
		if err := c.transcripts.CompleteMockSession(sessionID); err != nil {
			return model.MockReply{}, fmt.Errorf("complete mock session: %w", err)
		}
		c.locks.Delete(sessionID)
		slog.Info("mock interview complete", "session_id", sessionID, "answers", answered+1)
	} else {
		slog.Info("mock interview turn", "session_id", sessionID, "answers", answered+1)
	}
	return reply, nil
}

func (c *Client) nextTurn(ctx context.Context, role model.Role, transcript []model.TranscriptMessage) (model.MockReply, error) {
	prompt, err := prompts.BuildMockPrompt(role, transcript, false)
	if err != nil {
		return model.MockReply{}, err
	}
	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return model.MockReply{}, err
	}
	r, err := parseMockTurn(raw)
	if err != nil {
		return model.MockReply{}, err
	}
	if r.Feedback == "" {
		return model.MockReply{}, fmt.Errorf("%w: interviewer reply has no feedback", ErrUnparseable)
	}
	if r.NextQuestion == "" {
		r.NextQuestion = i18n.T(ctx, "MockFallbackQuestion")
	}
	return model.MockReply{Feedback: r.Feedback, NextQuestion: r.NextQuestion}, nil
}

// closeMock ends the interview. Feedback on the last answer is best effort;
// the closing message is always present.
func (c *Client) closeMock(ctx context.Context, role model.Role, transcript []model.TranscriptMessage) model.MockReply {
	reply := model.MockReply{IsComplete: true, ClosingMessage: i18n.T(ctx, "MockClosing")}
	prompt, err := prompts.BuildMockPrompt(role, transcript, true)
	if err != nil {
		slog.Warn("failed to build closing prompt", "error", err)
		return reply
	}
	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		slog.Warn("closing feedback unavailable", "error", err)
		return reply
	}
	if r, err := parseMockTurn(raw); err == nil {
		reply.Feedback = r.Feedback
	}
	return reply
}

func parseMockTurn(raw string) (mockTurnReply, error) {
	obj := extractJSON(raw)
	if obj == "" {
		return mockTurnReply{}, fmt.Errorf("%w: no JSON object in interviewer reply", ErrUnparseable)
	}
	var r mockTurnReply
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return mockTurnReply{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	r.Feedback = strings.TrimSpace(r.Feedback)
	r.NextQuestion = strings.TrimSpace(r.NextQuestion)
	return r, nil
}

func (c *Client) addMessage(sessionID string, speaker model.Speaker, content string) error {
	_, err := c.transcripts.AddTranscriptMessage(model.TranscriptMessage{
		SessionID: sessionID,
		Speaker:   speaker,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("store %s message: %w", speaker, err)
	}
	return nil
}

func (c *Client) lockSession(id string) func() {
	v, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
