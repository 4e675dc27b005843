package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

// CreateSession inserts a new session record.
func (l *SQLiteLedger) CreateSession(ctx context.Context, session *models.Session) error {
	tools, _ := json.Marshal(session.ToolsInvoked)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_id, mode, status, task, rationale, summary, tools_invoked, trades_applied, error, started_at, ended_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.AgentID, string(session.Mode), string(session.Status),
		session.Task, session.Rationale, session.Summary, string(tools),
		session.TradesApplied, session.Error, session.StartedAt, session.EndedAt, session.CreatedAt)
	if err != nil {
		return errors.NewStorageError("create session", err)
	}
	return nil
}

// UpdateSession persists the current state of a session. Terminal sessions
// are immutable; the engine is the only writer and never updates a session
// after it reaches a terminal status.
func (l *SQLiteLedger) UpdateSession(ctx context.Context, session *models.Session) error {
	tools, _ := json.Marshal(session.ToolsInvoked)
	result, err := l.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, rationale = ?, summary = ?, tools_invoked = ?, trades_applied = ?, error = ?, started_at = ?, ended_at = ?
		WHERE id = ?
	`, string(session.Status), session.Rationale, session.Summary, string(tools),
		session.TradesApplied, session.Error, session.StartedAt, session.EndedAt, session.ID)
	if err != nil {
		return errors.NewStorageError("update session", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

// GetSession retrieves a session by id.
func (l *SQLiteLedger) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := l.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError("get session", err)
	}
	return session, nil
}

// GetActiveSession returns the agent's non-terminal session, or nil when the
// agent is idle.
func (l *SQLiteLedger) GetActiveSession(ctx context.Context, agentID string) (*models.Session, error) {
	row := l.db.QueryRowContext(ctx, sessionSelect+`
		WHERE agent_id = ? AND status IN ('pending', 'running')
		ORDER BY created_at DESC LIMIT 1
	`, agentID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("get active session", err)
	}
	return session, nil
}

// GetSessions retrieves sessions matching the filter, newest first.
func (l *SQLiteLedger) GetSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	query := sessionSelect + ` WHERE 1=1`
	args := []interface{}{}

	if filter.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("query sessions", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.NewStorageError("scan session", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT id, agent_id, mode, status, COALESCE(task, ''), COALESCE(rationale, ''), COALESCE(summary, ''),
	       COALESCE(tools_invoked, '[]'), trades_applied, COALESCE(error, ''),
	       COALESCE(started_at, created_at), COALESCE(ended_at, '0001-01-01 00:00:00'), created_at
	FROM sessions`

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var mode, status, toolsJSON string
	if err := row.Scan(&s.ID, &s.AgentID, &mode, &status, &s.Task, &s.Rationale, &s.Summary,
		&toolsJSON, &s.TradesApplied, &s.Error, &s.StartedAt, &s.EndedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Mode = models.Mode(mode)
	s.Status = models.SessionStatus(status)
	if err := json.Unmarshal([]byte(toolsJSON), &s.ToolsInvoked); err != nil {
		return nil, fmt.Errorf("invalid tools_invoked %q: %w", toolsJSON, err)
	}
	return &s, nil
}
