package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a task ID is unknown.
var ErrNotFound = errors.New("task not found")

// SaveTask saves or updates a task.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *TaskRecord) error {
	if task.StartedAt.IsZero() {
		task.StartedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, label, operation, chain, params, status, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			operation = excluded.operation,
			chain = excluded.chain,
			params = excluded.params,
			status = excluded.status,
			message = excluded.message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, task.ID, task.Label, task.Operation, task.Chain, task.Params, string(task.Status), task.Message,
		task.StartedAt.UnixNano(), unixNano(task.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, operation, chain, params, status, message, started_at, finished_at
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// UpdateTaskStatus records the outcome of a task.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, message string, finishedAt time.Time) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, message = ?, finished_at = ?
		WHERE id = ?
	`, string(status), message, unixNano(finishedAt), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListTasks returns the most recent tasks, newest first. limit <= 0 returns all.
func (s *SQLiteStore) ListTasks(ctx context.Context, limit int) ([]*TaskRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, operation, chain, params, status, message, started_at, finished_at
		FROM tasks
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*TaskRecord{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// MarkInterrupted fails every task still recorded as running. A previous
// process that died mid-task leaves such rows behind.
func (s *SQLiteStore) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, message = 'interrupted', finished_at = ?
		WHERE status = ?
	`, string(StatusFailed), time.Now().UnixNano(), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted tasks: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*TaskRecord, error) {
	task := &TaskRecord{}
	var status string
	var started, finished int64
	if err := row.Scan(&task.ID, &task.Label, &task.Operation, &task.Chain, &task.Params, &status, &task.Message, &started, &finished); err != nil {
		return nil, err
	}
	task.Status = TaskStatus(status)
	task.StartedAt = time.Unix(0, started)
	if finished != 0 {
		task.FinishedAt = time.Unix(0, finished)
	}
	return task, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
