// Package server exposes an Evaluator as the HTTP evaluation service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
)

// HealthMessage is the body of GET /api/.
const HealthMessage = "Interviewer API is running"

const maxBodyBytes = 1 << 20

// Config holds the service settings.
type Config struct {
	// Lang is the default language when a request has no Accept-Language.
	Lang string
	// TokenHash is a bcrypt hash of the API token. Empty disables auth.
	TokenHash string
	// Timeout bounds each evaluator call.
	Timeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	ev     session.Evaluator
	config Config
	auth   *tokenAuth
}

// New creates a new Handler.
func New(ev session.Evaluator, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = session.DefaultTimeout
	}
	h := &Handler{ev: ev, config: cfg}
	if cfg.TokenHash != "" {
		h.auth = newTokenAuth(cfg.TokenHash)
	}
	return h
}

// Router returns the service router with its middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(h.config.Lang))
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/", h.handleHealth)
	r.Route("/api/interview", func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth.middleware)
		}
		r.Post("/generate-questions", h.handleGenerateQuestions)
		r.Post("/evaluate-answer", h.handleEvaluateAnswer)
		r.Post("/start-mock", h.handleStartMock)
		r.Post("/mock-continue", h.handleContinueMock)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{Message: HealthMessage})
}

func (h *Handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateQuestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := h.callContext(r)
	defer cancel()

	qs, err := h.ev.GenerateQuestions(ctx, req.Role, req.Count, req.Difficulty)
	if err != nil {
		writeError(w, "generate questions", err)
		return
	}
	writeJSON(w, http.StatusOK, model.GenerateQuestionsResponse{Questions: qs})
}

func (h *Handler) handleEvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluateAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := h.callContext(r)
	defer cancel()

	ev, err := h.ev.EvaluateAnswer(ctx, req.Question, req.Answer, req.Role)
	if err != nil {
		writeError(w, "evaluate answer", err)
		return
	}
	writeJSON(w, http.StatusOK, model.EvaluateAnswerResponse{Evaluation: &ev})
}

func (h *Handler) handleStartMock(w http.ResponseWriter, r *http.Request) {
	var req model.StartMockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := h.callContext(r)
	defer cancel()

	start, err := h.ev.StartMock(ctx, req.Role)
	if err != nil {
		writeError(w, "start mock interview", err)
		return
	}
	writeJSON(w, http.StatusOK, start)
}

func (h *Handler) handleContinueMock(w http.ResponseWriter, r *http.Request) {
	var req model.ContinueMockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "session_id is required"})
		return
	}
	ctx, cancel := h.callContext(r)
	defer cancel()

	reply, err := h.ev.ContinueMock(ctx, req.SessionID, req.Answer, req.Role)
	if err != nil {
		writeError(w, "continue mock interview", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.config.Timeout)
}

// decodeJSON reads a single JSON object with no unknown fields. On failure it
// writes a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body: trailing data"})
		return false
	}
	return true
}

// statusFor maps an evaluator error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, llm.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrSessionComplete):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrNoTranscripts):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error(op+" failed", "status", status, "error", err)
	} else {
		slog.Warn(op+" rejected", "status", status, "error", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: fmt.Sprintf("%s: %v", op, err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}
