package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// ArchiveSession stores a finished or abandoned session together with its
// turns. Archiving the same session twice replaces the earlier copy.
func (s *Store) ArchiveSession(ctx context.Context, a model.ArchivedSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var avg, pct sql.NullFloat64
	var tier sql.NullString
	if a.Summary != nil {
		avg = sql.NullFloat64{Float64: a.Summary.AverageScore, Valid: true}
		pct = sql.NullFloat64{Float64: a.Summary.Percentage, Valid: true}
		tier = sql.NullString{String: string(a.Summary.Tier), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_turns WHERE archive_id = ?`, a.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_sessions (id, session_id, role, mode, status, started_at, finished_at, average_score, percentage, tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status, finished_at = excluded.finished_at,
		   average_score = excluded.average_score, percentage = excluded.percentage, tier = excluded.tier`,
		a.ID, a.SessionID, a.Role, a.Mode, a.Status, a.StartedAt, a.FinishedAt, avg, pct, tier,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for i, t := range a.Turns {
		var score sql.NullFloat64
		var feedback string
		strengths, improvements := []string{}, []string{}
		if t.Evaluation != nil {
			score = sql.NullFloat64{Float64: t.Evaluation.Score, Valid: true}
			feedback = t.Evaluation.Feedback
			if t.Evaluation.Strengths != nil {
				strengths = t.Evaluation.Strengths
			}
			if t.Evaluation.Improvements != nil {
				improvements = t.Evaluation.Improvements
			}
		}
		sj, err := json.Marshal(strengths)
		if err != nil {
			return err
		}
		ij, err := json.Marshal(improvements)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO archived_turns (archive_id, position, question, difficulty, context, answer, score, feedback, strengths, improvements, transcript_note)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, i, t.Question.Text, t.Question.Difficulty, t.Question.Context, t.Answer,
			score, feedback, string(sj), string(ij), t.TranscriptNote,
		)
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("archived session", "id", a.ID, "role", a.Role, "turns", len(a.Turns))
	return nil
}

// ListArchivedSessions returns archived sessions, newest first. An empty role
// lists every role.
func (s *Store) ListArchivedSessions(role model.Role) ([]model.ArchivedSession, error) {
	query := `SELECT id, session_id, role, mode, status, started_at, finished_at, average_score, percentage, tier
		FROM archived_sessions`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY started_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ArchivedSession
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		turns, err := s.archivedTurns(sessions[i].ID)
		if err != nil {
			return nil, fmt.Errorf("turns of %s: %w", sessions[i].ID, err)
		}
		sessions[i].Turns = turns
		fillPerTurn(&sessions[i])
	}
	return sessions, nil
}

// GetArchivedSession returns one archived session, or nil if there is none
// with that id.
func (s *Store) GetArchivedSession(id string) (*model.ArchivedSession, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, role, mode, status, started_at, finished_at, average_score, percentage, tier
		 FROM archived_sessions WHERE id = ?`, id,
	)
	a, err := scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Turns, err = s.archivedTurns(id); err != nil {
		return nil, err
	}
	fillPerTurn(&a)
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArchived(sc scanner) (model.ArchivedSession, error) {
	var a model.ArchivedSession
	var finished *time.Time
	var avg, pct sql.NullFloat64
	var tier sql.NullString
	err := sc.Scan(&a.ID, &a.SessionID, &a.Role, &a.Mode, &a.Status, &a.StartedAt, &finished, &avg, &pct, &tier)
	if err != nil {
		return a, err
	}
	a.FinishedAt = finished
	if avg.Valid {
		a.Summary = &model.Summary{
			Role:         a.Role,
			AverageScore: avg.Float64,
			Percentage:   pct.Float64,
			Tier:         model.Tier(tier.String),
		}
	}
	return a, nil
}

func (s *Store) archivedTurns(archiveID string) ([]model.Turn, error) {
	rows, err := s.db.Query(
		`SELECT question, difficulty, context, answer, score, feedback, strengths, improvements, transcript_note
		 FROM archived_turns WHERE archive_id = ? ORDER BY position`, archiveID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	turns := []model.Turn{}
	for rows.Next() {
		var t model.Turn
		var score sql.NullFloat64
		var feedback, sj, ij string
		if err := rows.Scan(&t.Question.Text, &t.Question.Difficulty, &t.Question.Context, &t.Answer,
			&score, &feedback, &sj, &ij, &t.TranscriptNote); err != nil {
			return nil, err
		}
		if score.Valid {
			ev := &model.Evaluation{Score: score.Float64, Feedback: feedback}
			if err := json.Unmarshal([]byte(sj), &ev.Strengths); err != nil {
				return nil, fmt.Errorf("decode strengths: %w", err)
			}
			if err := json.Unmarshal([]byte(ij), &ev.Improvements); err != nil {
				return nil, fmt.Errorf("decode improvements: %w", err)
			}
			t.Evaluation = ev
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// fillPerTurn rebuilds the per-turn breakdown of a stored summary from the
// scored turns.
func fillPerTurn(a *model.ArchivedSession) {
	if a.Summary == nil {
		return
	}
	a.Summary.PerTurn = nil
	for _, t := range a.Turns {
		if t.Evaluation != nil {
			a.Summary.PerTurn = append(a.Summary.PerTurn, model.TurnScore{Turn: t, Score: t.Evaluation.Score})
		}
	}
}

// ArchivedCount returns the number of archived sessions.
func (s *Store) ArchivedCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM archived_sessions`).Scan(&count)
	return count, err
}
