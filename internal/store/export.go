package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// ExportSessions builds the export document from the archive. An empty role
// exports every role.
func (s *Store) ExportSessions(role model.Role) (model.SessionExport, error) {
	sessions, err := s.ListArchivedSessions(role)
	if err != nil {
		return model.SessionExport{}, fmt.Errorf("list archived sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.ArchivedSession{}
	}
	return model.SessionExport{
		ExportedAt: time.Now().UTC(),
		Role:       role,
		Sessions:   sessions,
	}, nil
}
