package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aristath/geocalc/internal/merge"
)

// CreateRun starts a run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, runID, problem string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, problem, status) VALUES (?, ?, ?)
	`, runID, problem, RunRunning)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// FinishRun closes a run. A nil runErr marks it completed and stores final
// when present; otherwise the run is marked failed with the error text.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, final *merge.Final, runErr error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status, errorStr := RunCompleted, ""
	if runErr != nil {
		status, errorStr = RunFailed, runErr.Error()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, errorStr, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	if final != nil {
		results, err := json.Marshal(final.Results)
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		var plan, commands []byte
		if final.ConstructionPlan != nil {
			if plan, err = json.Marshal(final.ConstructionPlan); err != nil {
				return fmt.Errorf("failed to encode construction plan: %w", err)
			}
		}
		if len(final.DirectCommands) > 0 {
			if commands, err = json.Marshal(final.DirectCommands); err != nil {
				return fmt.Errorf("failed to encode direct commands: %w", err)
			}
		}
		order, err := json.Marshal(final.TaskOrder)
		if err != nil {
			return fmt.Errorf("failed to encode task order: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_results (run_id, results, construction_plan, direct_commands, task_order)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				results = excluded.results,
				construction_plan = excluded.construction_plan,
				direct_commands = excluded.direct_commands,
				task_order = excluded.task_order
		`, runID, string(results), nullString(plan), nullString(commands), string(order))
		if err != nil {
			return fmt.Errorf("failed to save run result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun loads a run and its result, if any.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	var errorStr sql.NullString
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, problem, status, error, created_at, finished_at
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.Problem, &run.Status, &errorStr, &run.CreatedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.Error = errorStr.String
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	var results, order string
	var plan, commands sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT results, construction_plan, direct_commands, task_order
		FROM run_results WHERE run_id = ?
	`, runID).Scan(&results, &plan, &commands, &order)
	if errors.Is(err, sql.ErrNoRows) {
		return run, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run result: %w", err)
	}

	final := &merge.Final{}
	if err := json.Unmarshal([]byte(results), &final.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if err := json.Unmarshal([]byte(order), &final.TaskOrder); err != nil {
		return nil, fmt.Errorf("failed to decode task order: %w", err)
	}
	if plan.Valid {
		final.ConstructionPlan = &merge.ConstructionPlan{}
		if err := json.Unmarshal([]byte(plan.String), final.ConstructionPlan); err != nil {
			return nil, fmt.Errorf("failed to decode construction plan: %w", err)
		}
	}
	if commands.Valid {
		if err := json.Unmarshal([]byte(commands.String), &final.DirectCommands); err != nil {
			return nil, fmt.Errorf("failed to decode direct commands: %w", err)
		}
	}
	run.Final = final
	return run, nil
}

// ListRuns returns every run, oldest first, without their results.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, problem, status, error, created_at, finished_at
		FROM runs ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var errorStr sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.Problem, &run.Status, &errorStr, &run.CreatedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Error = errorStr.String
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
