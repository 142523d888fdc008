package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// task_dependencies has no foreign key on depends_on_id: a plan may name a
// dependency that never becomes a task, and the journal records it as given.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		problem TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS tasks (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		type TEXT NOT NULL,
		operation_type TEXT,
		description TEXT,
		parameters TEXT,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		geogebra_alternatives INTEGER NOT NULL DEFAULT 0,
		geogebra_command TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (run_id, task_id, depends_on_id),
		FOREIGN KEY (run_id, task_id) REFERENCES tasks(run_id, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_dependencies_task ON task_dependencies(run_id, task_id);

	CREATE TABLE IF NOT EXISTS agent_sessions (
		run_id TEXT NOT NULL,
		task_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		session_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, task_type),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS run_results (
		run_id TEXT PRIMARY KEY,
		results TEXT NOT NULL,
		construction_plan TEXT,
		direct_commands TEXT,
		task_order TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
