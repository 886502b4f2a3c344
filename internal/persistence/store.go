// Package persistence records task history in SQLite.
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
)

// TaskStatus is the lifecycle state of a recorded task.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskRecord is one task as stored in the history.
type TaskRecord struct {
	ID         string
	Label      string
	Operation  string // Primary operation name
	Chain      string // Chained step name, empty when none
	Params     string // Free-form description of the parameters
	Status     TaskStatus
	Message    string // Terminal message
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
}

// Duration returns how long the task ran, or zero while it is running.
func (r *TaskRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// EventRecord is one status line logged for a task.
type EventRecord struct {
	Kind      string
	Message   string
	Timestamp time.Time
}

// Store defines the persistence interface for task history.
type Store interface {
	SaveTask(ctx context.Context, task *TaskRecord) error
	GetTask(ctx context.Context, taskID string) (*TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, message string, finishedAt time.Time) error
	ListTasks(ctx context.Context, limit int) ([]*TaskRecord, error)
	MarkInterrupted(ctx context.Context) (int64, error)

	AppendEvent(ctx context.Context, taskID, kind, message string) error
	GetEvents(ctx context.Context, taskID string) ([]EventRecord, error)

	Close() error
}

// connPragmas are applied by modernc.org/sqlite to every new connection.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&%s", dbPath, connPragmas)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named shared-cache database so connections of one
// store see the same data and separate stores never do.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:fetchdeck-%s?mode=memory&cache=shared&%s", uuid.NewString(), connPragmas)
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes come from one goroutine at a time; a second connection serves reads.
	db.SetMaxOpenConns(2)

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
