package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yangwenmai/amigo/internal/model"
)

// HandOff marks the record as sent and inserts task in one transaction. When
// the record was already sent, nothing is written and created is false.
func (s *Store) HandOff(ctx context.Context, inboxID string, task model.TaskRecord) (rec *model.InboxRecord, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE inbox_items SET is_sent_to_agent = ? WHERE id = ? AND is_sent_to_agent = ?`),
		true, inboxID, false)
	if err != nil {
		return nil, false, fmt.Errorf("mark sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if n == 1 {
		var source *string
		if task.SourceInboxID != "" {
			source = &task.SourceInboxID
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO tasks (id, title, description, status, assignee, priority, source_inbox_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			task.ID, task.Title, task.Description, task.Status, task.Assignee, task.Priority, source, task.CreatedAt,
		); err != nil {
			return nil, false, fmt.Errorf("insert task: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, s.q(`SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`), inboxID)
	rec, err = scanInbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, notFound("inbox item", inboxID)
	}
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit hand-off: %w", err)
	}
	return rec, n == 1, nil
}

// ListTasks returns the agent task queue, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]model.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, status, assignee, priority, source_inbox_id, created_at
		FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.TaskRecord{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
