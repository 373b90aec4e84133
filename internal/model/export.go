package model

import "time"

// ArchivedSession is a finished (or abandoned) session as stored by the archive.
type ArchivedSession struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id,omitempty"`
	Role       Role          `json:"role"`
	Mode       Mode          `json:"mode"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Turns      []Turn        `json:"turns"`
	Summary    *Summary      `json:"summary,omitempty"`
}

// SessionExport is the top-level JSON structure written by `interviewer export`.
type SessionExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Role       Role              `json:"role,omitempty"`
	Sessions   []ArchivedSession `json:"sessions"`
}

// TranscriptMessage is one stored line of a mock interview transcript.
type TranscriptMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Speaker is the author of a transcript message.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// MockSession is the service-side record of a mock interview.
type MockSession struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Lang        string     `json:"lang"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
