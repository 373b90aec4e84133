package model

import (
	"strings"
	"time"
)

// Role identifies the target job role of a session.
type Role string

// Mode selects how a session is paced.
type Mode string

const (
	// ModeBatch is a fixed-count, independently scored question set ("practice").
	ModeBatch Mode = "batch"
	// ModeConversational is a server-paced simulated interview ("mock").
	ModeConversational Mode = "conversational"
)

// ParseMode accepts the canonical names and their everyday aliases.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "batch", "practice":
		return ModeBatch, true
	case "conversational", "mock":
		return ModeConversational, true
	}
	return "", false
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	// DifficultyMixed is only meaningful when requesting questions.
	DifficultyMixed Difficulty = "mixed"
)

// NormalizeDifficulty maps free-form labels ("Easy", " HARD ") onto the
// question difficulties. Unknown values become medium.
func NormalizeDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// IsValidRequestDifficulty reports whether d may be sent to generate-questions.
func IsValidRequestDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
		return true
	}
	return false
}

// Question is an interview question. Conversational prompts carry only Text.
type Question struct {
	Text       string     `json:"text"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Context    string     `json:"context,omitempty"`
}

// MaxScore is the top of the evaluation scale.
const MaxScore = 10.0

// Evaluation is the service's assessment of one answer.
type Evaluation struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Turn is one completed exchange. Exactly one of Evaluation and
// TranscriptNote is set.
type Turn struct {
	Question       Question    `json:"question"`
	Answer         string      `json:"answer"`
	Evaluation     *Evaluation `json:"evaluation,omitempty"`
	TranscriptNote string      `json:"transcript_note,omitempty"`
}

// Scored reports whether the turn carries a numeric evaluation.
func (t Turn) Scored() bool {
	return t.Evaluation != nil
}

// MockStart is the reply to start-mock.
type MockStart struct {
	SessionID     string `json:"session_id"`
	Greeting      string `json:"greeting"`
	FirstQuestion string `json:"first_question"`
}

// MockReply is the reply to mock-continue. Feedback and NextQuestion are
// set while the interview continues; ClosingMessage once IsComplete.
type MockReply struct {
	IsComplete     bool   `json:"is_complete"`
	Feedback       string `json:"feedback,omitempty"`
	NextQuestion   string `json:"next_question,omitempty"`
	ClosingMessage string `json:"closing_message,omitempty"`
}

// Tier is the qualitative performance band of a summary.
type Tier string

const (
	TierNeedsImprovement Tier = "needs_improvement"
	TierGood             Tier = "good"
	TierExcellent        Tier = "excellent"
)

// TurnScore pairs a scored turn with its score.
type TurnScore struct {
	Turn  Turn    `json:"turn"`
	Score float64 `json:"score"`
}

// Summary is the aggregated result of a finished session.
type Summary struct {
	Role         Role        `json:"role"`
	AverageScore float64     `json:"average_score"`
	Percentage   float64     `json:"percentage"`
	Tier         Tier        `json:"tier"`
	PerTurn      []TurnScore `json:"per_turn"`
}

// SessionStatus is the coarse lifecycle state of a session.
type SessionStatus string

const (
	StatusUninitialized SessionStatus = "uninitialized"
	StatusActive        SessionStatus = "active"
	StatusCompleted     SessionStatus = "completed"
	StatusAbandoned     SessionStatus = "abandoned"
)

// SessionSnapshot is a read-only copy of a session for presentation.
type SessionSnapshot struct {
	SessionID     string        `json:"session_id,omitempty"`
	Mode          Mode          `json:"mode"`
	Role          Role          `json:"role"`
	Status        SessionStatus `json:"status"`
	Greeting      string        `json:"greeting,omitempty"`
	Turns         []Turn        `json:"turns"`
	PendingPrompt *Question     `json:"pending_prompt,omitempty"`
	PlannedCount  int           `json:"planned_count,omitempty"`
	IsComplete    bool          `json:"is_complete"`
	StartedAt     time.Time     `json:"started_at"`
}

// AnsweredCount returns the number of turns that carry a candidate answer.
func (s SessionSnapshot) AnsweredCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.Answer != "" {
			n++
		}
	}
	return n
}
