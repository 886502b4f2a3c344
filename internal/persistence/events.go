package persistence

import (
	"context"
	"fmt"
	"time"
)

// AppendEvent stores a status line for a task. Events are append-only.
func (s *SQLiteStore) AppendEvent(ctx context.Context, taskID, kind, message string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_events (task_id, kind, message, timestamp)
		VALUES (?, ?, ?, ?)
	`, taskID, kind, message, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

// GetEvents retrieves the events of a task in chronological order.
// Returns empty slice (not nil) if there are none.
func (s *SQLiteStore) GetEvents(ctx context.Context, taskID string) ([]EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// id breaks ties between events logged within the same nanosecond
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, message, timestamp
		FROM task_events
		WHERE task_id = ?
		ORDER BY timestamp ASC, id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var e EventRecord
		var ts int64
		if err := rows.Scan(&e.Kind, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return out, nil
}
