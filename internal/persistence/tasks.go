package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/geocalc/internal/scheduler"
)

// SaveTask saves or updates a task of a run together with its dependency
// list. Saves are idempotent; the task keeps the position of its first save.
func (s *SQLiteStore) SaveTask(ctx context.Context, runID string, task *scheduler.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	params, err := encodeJSON(task.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters of %s: %w", task.ID, err)
	}
	result, err := encodeJSON(task.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result of %s: %w", task.ID, err)
	}
	errorStr := ""
	if task.Error != nil {
		errorStr = task.Error.Error()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (run_id, id, position, type, operation_type, description, parameters,
			status, result, error, geogebra_alternatives, geogebra_command)
		VALUES (?, ?, (SELECT COUNT(*) FROM tasks WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO UPDATE SET
			type = excluded.type,
			operation_type = excluded.operation_type,
			description = excluded.description,
			parameters = excluded.parameters,
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			geogebra_alternatives = excluded.geogebra_alternatives,
			geogebra_command = excluded.geogebra_command,
			updated_at = CURRENT_TIMESTAMP
	`, runID, task.ID, runID, string(task.Type), task.OperationType, task.Description, params,
		string(task.Status), result, errorStr, task.GeoGebraAlternatives, task.GeoGebraCommand)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE run_id = ? AND task_id = ?`, runID, task.ID); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}
	for i, depID := range task.DependsOn {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (run_id, task_id, depends_on_id, position)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, runID, task.ID, depID, i)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTaskStatus records a status transition. A nil result leaves the
// stored result untouched.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, result scheduler.Result, taskErr error) error {
	errorStr := ""
	if taskErr != nil {
		errorStr = taskErr.Error()
	}
	encoded, err := encodeJSON(result)
	if err != nil {
		return fmt.Errorf("failed to encode result of %s: %w", taskID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = COALESCE(?, result), error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE run_id = ? AND id = ?
	`, string(status), encoded, errorStr, runID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}
	return nil
}

// ListTasks returns the tasks of a run in the order they were first saved.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, operation_type, description, parameters, status, result, error,
			geogebra_alternatives, geogebra_command
		FROM tasks
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*scheduler.Task
	byID := make(map[string]*scheduler.Task)
	for rows.Next() {
		task := &scheduler.Task{}
		var typ, status string
		var opType, desc, params, result, errorStr, command sql.NullString
		if err := rows.Scan(&task.ID, &typ, &opType, &desc, &params, &status, &result, &errorStr,
			&task.GeoGebraAlternatives, &command); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Type = scheduler.TaskType(typ)
		task.Status = scheduler.TaskStatus(status)
		task.OperationType = opType.String
		task.Description = desc.String
		task.GeoGebraCommand = command.String
		if err := decodeJSON(params, &task.Parameters); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode parameters of %s: %w", task.ID, err)
		}
		if err := decodeJSON(result, &task.Result); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode result of %s: %w", task.ID, err)
		}
		if errorStr.String != "" {
			task.Error = fmt.Errorf("%s", errorStr.String)
		}
		task.DependsOn = []string{}
		tasks = append(tasks, task)
		byID[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	depRows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id
		FROM task_dependencies
		WHERE run_id = ?
		ORDER BY task_id, position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var taskID, depID string
		if err := depRows.Scan(&taskID, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.DependsOn = append(task.DependsOn, depID)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}

	return tasks, nil
}

// encodeJSON returns nil for nil maps so the column stays NULL.
func encodeJSON[M ~map[string]any](m M) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeJSON[M ~map[string]any](col sql.NullString, dst *M) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
