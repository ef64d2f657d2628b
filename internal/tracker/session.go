package tracker

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/phenodcc/crawler/internal/model"
)

// OpenSession creates a CrawlingSession row, uuid-tagged the way the
// teacher tags task_uuid for every job it records.
func (s *Store) OpenSession() (model.CrawlingSession, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	res, err := s.db.Exec(`INSERT INTO crawling_session (uuid, started, status_id) VALUES (?, ?, ?)`, id, now, model.StatusRunning)
	if err != nil {
		return model.CrawlingSession{}, err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return model.CrawlingSession{}, err
	}
	return model.CrawlingSession{ID: rowID, UUID: id, Started: now, Status: model.StatusRunning}, nil
}

// CloseSession stamps the end time and aggregate status.
func (s *Store) CloseSession(id int64, status model.Status) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE crawling_session SET ended = ?, status_id = ? WHERE id = ?`, now, status, id)
	return err
}

// StartSessionTask records the start of one subprocess invocation.
func (s *Store) StartSessionTask(sessionID int64, phase model.Phase) (model.SessionTask, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO session_task (session_id, phase_id, started) VALUES (?, ?, ?)`, sessionID, phase, now)
	if err != nil {
		return model.SessionTask{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.SessionTask{}, err
	}
	return model.SessionTask{ID: id, SessionID: sessionID, Phase: phase, Started: now}, nil
}

// FinishSessionTask records exit code and a free-text comment.
func (s *Store) FinishSessionTask(id int64, exitCode int, comment string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE session_task SET ended = ?, exit_code = ?, comment = ? WHERE id = ?`, now, exitCode, comment, id)
	return err
}

// GetSession loads a CrawlingSession by id, used by tests and by the
// report emailer to summarise the just-closed session.
func (s *Store) GetSession(id int64) (model.CrawlingSession, error) {
	var cs model.CrawlingSession
	var ended sql.NullTime
	err := s.db.QueryRow(`SELECT id, uuid, started, ended, status_id FROM crawling_session WHERE id = ?`, id).
		Scan(&cs.ID, &cs.UUID, &cs.Started, &ended, &cs.Status)
	if ended.Valid {
		t := ended.Time
		cs.Ended = &t
	}
	return cs, err
}

// ListSessionTasks returns every subprocess invocation recorded against a
// session, in the order they ran, for the run-report emailer.
func (s *Store) ListSessionTasks(sessionID int64) ([]model.SessionTask, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, phase_id, started, ended, exit_code, comment
		FROM session_task WHERE session_id = ? ORDER BY started ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SessionTask
	for rows.Next() {
		var t model.SessionTask
		var ended sql.NullTime
		var exitCode sql.NullInt64
		var comment sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Phase, &t.Started, &ended, &exitCode, &comment); err != nil {
			return nil, err
		}
		if ended.Valid {
			v := ended.Time
			t.Ended = &v
		}
		if exitCode.Valid {
			t.ExitCode = int(exitCode.Int64)
		}
		t.Comment = comment.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountXmlFilesByStatus tallies every XmlFile row by its current status,
// giving the run-report emailer a coarse outcome breakdown for the whole
// tracker rather than just the documents touched this session.
func (s *Store) CountXmlFilesByStatus() (map[model.Status]int, error) {
	rows, err := s.db.Query(`SELECT status_id, COUNT(*) FROM xml_file GROUP BY status_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}
