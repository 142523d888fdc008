package persistence

import (
	"context"
	"fmt"
)

// SaveAgentSession records the backend session serving a task type in a run.
func (s *SQLiteStore) SaveAgentSession(ctx context.Context, runID string, session AgentSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (run_id, task_type, provider, session_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, task_type) DO UPDATE SET
			provider = excluded.provider,
			session_id = excluded.session_id
	`, runID, session.TaskType, session.Provider, session.SessionID)
	if err != nil {
		return fmt.Errorf("failed to save agent session: %w", err)
	}
	return nil
}

// ListAgentSessions returns the agent sessions of a run ordered by task type.
func (s *SQLiteStore) ListAgentSessions(ctx context.Context, runID string) ([]AgentSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_type, provider, session_id
		FROM agent_sessions
		WHERE run_id = ?
		ORDER BY task_type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []AgentSession
	for rows.Next() {
		var as AgentSession
		if err := rows.Scan(&as.TaskType, &as.Provider, &as.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan agent session: %w", err)
		}
		sessions = append(sessions, as)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent sessions: %w", err)
	}
	return sessions, nil
}
