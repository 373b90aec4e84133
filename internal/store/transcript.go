package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// CreateMockSession registers a new mock interview.
func (s *Store) CreateMockSession(ms model.MockSession) error {
	if ms.CreatedAt.IsZero() {
		ms.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO mock_sessions (id, role, lang, created_at) VALUES (?, ?, ?, ?)`,
		ms.ID, ms.Role, ms.Lang, ms.CreatedAt,
	)
	return err
}

// GetMockSession returns a mock session by id, or nil if not found.
func (s *Store) GetMockSession(id string) (*model.MockSession, error) {
	var ms model.MockSession
	err := s.db.QueryRow(
		`SELECT id, role, lang, created_at, completed_at FROM mock_sessions WHERE id = ?`, id,
	).Scan(&ms.ID, &ms.Role, &ms.Lang, &ms.CreatedAt, &ms.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

// CompleteMockSession marks a mock session as finished.
func (s *Store) CompleteMockSession(id string) error {
	_, err := s.db.Exec(
		`UPDATE mock_sessions SET completed_at = ? WHERE id = ? AND completed_at IS NULL`,
		time.Now(), id,
	)
	return err
}

// AddTranscriptMessage appends a message to a mock session transcript.
func (s *Store) AddTranscriptMessage(msg model.TranscriptMessage) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO mock_messages (session_id, speaker, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Speaker, msg.Content, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTranscript returns the messages of a mock session in order.
func (s *Store) GetTranscript(sessionID string) ([]model.TranscriptMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, content, created_at FROM mock_messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.TranscriptMessage
	for rows.Next() {
		var m model.TranscriptMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Speaker, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountCandidateMessages returns the number of answers given in a mock session.
func (s *Store) CountCandidateMessages(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM mock_messages WHERE session_id = ? AND speaker = ?`,
		sessionID, model.SpeakerCandidate,
	).Scan(&count)
	return count, err
}
