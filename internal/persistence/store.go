// Package persistence is the SQLite run journal: every session records its
// tasks, their status transitions and the merged result.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/geocalc/internal/merge"
	"github.com/aristath/geocalc/internal/scheduler"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one journaled scheduling session.
type Run struct {
	ID         string
	Problem    string
	Status     string
	Error      string
	CreatedAt  time.Time
	FinishedAt *time.Time
	Final      *merge.Final // nil until the run finishes with a result
}

// AgentSession records which backend session served a task type in a run.
type AgentSession struct {
	TaskType  string
	Provider  string
	SessionID string
}

// Store is the run journal.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, runID, problem string) error
	FinishRun(ctx context.Context, runID string, final *merge.Final, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context) ([]*Run, error)

	// Tasks
	SaveTask(ctx context.Context, runID string, task *scheduler.Task) error
	UpdateTaskStatus(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, result scheduler.Result, taskErr error) error
	ListTasks(ctx context.Context, runID string) ([]*scheduler.Task, error)

	// Agent sessions
	SaveAgentSession(ctx context.Context, runID string, session AgentSession) error
	ListAgentSessions(ctx context.Context, runID string) ([]AgentSession, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal at dbPath, creating parent
// directories. WAL mode, busy timeout and foreign keys are enabled.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates a private in-memory journal for tests. The shared
// cache lets the store's connections see one database; the random name keeps
// stores apart.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The journal has a single writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
