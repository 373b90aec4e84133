package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaVersion is recorded in the metadata table by migrate.
const schemaVersion = "1"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS archived_sessions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		average_score REAL,
		percentage REAL,
		tier TEXT
	);

	CREATE TABLE IF NOT EXISTS archived_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		archive_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		answer TEXT NOT NULL DEFAULT '',
		score REAL,
		feedback TEXT NOT NULL DEFAULT '',
		strengths TEXT NOT NULL DEFAULT '[]',
		improvements TEXT NOT NULL DEFAULT '[]',
		transcript_note TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (archive_id) REFERENCES archived_sessions(id),
		UNIQUE (archive_id, position)
	);

	CREATE TABLE IF NOT EXISTS mock_sessions (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		lang TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS mock_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		speaker TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES mock_sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_archived_turns_archive ON archived_turns(archive_id);
	CREATE INDEX IF NOT EXISTS idx_mock_messages_session ON mock_messages(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata("schema_version", schemaVersion)
}
