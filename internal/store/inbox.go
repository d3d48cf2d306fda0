package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yangwenmai/amigo/internal/model"
)

// CreateInbox inserts a new inbox record.
func (s *Store) CreateInbox(ctx context.Context, rec model.InboxRecord) error {
	if (rec.FileURL == nil) != (rec.FilePath == nil) {
		return fmt.Errorf("create inbox %q: file url and path must be set together", rec.ID)
	}
	var category *string
	if rec.AICategory != nil {
		c := string(*rec.AICategory)
		category = &c
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO inbox_items (id, title, source_type, raw_content, file_url, file_path, file_type,
			ai_summary, ai_category, ai_status, ai_error, status, is_sent_to_agent, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Title, string(rec.SourceType), rec.RawContent, rec.FileURL, rec.FilePath, rec.FileType,
		rec.AISummary, category, string(rec.AIStatus), rec.AIError, string(rec.Status), rec.IsSentToAgent,
		rec.CreatedAt, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("create inbox %q: %w", rec.ID, err)
	}
	return nil
}

// GetInbox returns one record or ErrNotFound.
func (s *Store) GetInbox(ctx context.Context, id string) (*model.InboxRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`), id)
	rec, err := scanInbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("inbox item", id)
	}
	return rec, err
}

// ListInbox returns records matching the filter, newest first.
func (s *Store) ListInbox(ctx context.Context, f model.InboxFilter) ([]model.InboxRecord, error) {
	query := `SELECT ` + inboxColumns + ` FROM inbox_items`
	var conditions []string
	var args []interface{}

	addIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = "?"
			args = append(args, v)
		}
		conditions = append(conditions, column+" IN ("+strings.Join(placeholders, ",")+")")
	}
	addIn("status", toStrings(f.Status))
	addIn("ai_category", toStrings(f.Category))
	addIn("ai_status", toStrings(f.AIStatus))

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	items := []model.InboxRecord{}
	for rows.Next() {
		rec, err := scanInbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inbox: %w", err)
		}
		items = append(items, *rec)
	}
	return items, rows.Err()
}

// UpdateTriageStatus sets the human triage status. Any status may follow any
// other.
func (s *Store) UpdateTriageStatus(ctx context.Context, id string, status model.TriageStatus) (*model.InboxRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`UPDATE inbox_items SET status = ? WHERE id = ? RETURNING `+inboxColumns),
		string(status), id)
	rec, err := scanInbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("inbox item", id)
	}
	return rec, err
}

// DeleteInbox removes a record. Tasks created from it are kept.
func (s *Store) DeleteInbox(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM inbox_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete inbox %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("inbox item", id)
	}
	return nil
}

// BeginAnalysis moves a record from idle to processing.
func (s *Store) BeginAnalysis(ctx context.Context, id string) (*model.InboxRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		UPDATE inbox_items SET ai_status = ?, ai_error = NULL
		WHERE id = ? AND ai_status = ?
		RETURNING `+inboxColumns),
		string(model.AIProcessing), id, string(model.AIIdle),
	)
	return s.transitioned(ctx, id, model.AIProcessing, row)
}

// CompleteAnalysis moves a record from processing to done and stores the
// analysis output.
func (s *Store) CompleteAnalysis(ctx context.Context, id, summary string, category model.Category) (*model.InboxRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		UPDATE inbox_items SET ai_status = ?, ai_summary = ?, ai_category = ?, ai_error = NULL, processed_at = ?
		WHERE id = ? AND ai_status = ?
		RETURNING `+inboxColumns),
		string(model.AIDone), summary, string(category), s.timestamp(), id, string(model.AIProcessing),
	)
	return s.transitioned(ctx, id, model.AIDone, row)
}

// FailAnalysis moves a record from processing to failed and records why.
func (s *Store) FailAnalysis(ctx context.Context, id, reason string) (*model.InboxRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		UPDATE inbox_items SET ai_status = ?, ai_error = ?, processed_at = ?
		WHERE id = ? AND ai_status = ?
		RETURNING `+inboxColumns),
		string(model.AIFailed), reason, s.timestamp(), id, string(model.AIProcessing),
	)
	return s.transitioned(ctx, id, model.AIFailed, row)
}

// transitioned scans the result of a conditional AI status update and turns an
// empty result into ErrNotFound or ErrConflict.
func (s *Store) transitioned(ctx context.Context, id string, to model.AIStatus, row *sql.Row) (*model.InboxRecord, error) {
	rec, err := scanInbox(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("set ai status %s on %q: %w", to, id, err)
	}
	cur, err := s.GetInbox(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("inbox item %q: %s -> %s: %w", id, cur.AIStatus, to, ErrConflict)
}

// ClaimNextIdle atomically picks the oldest idle record created before the
// cutoff and moves it to processing. Returns nil if none is available.
func (s *Store) ClaimNextIdle(ctx context.Context, createdBefore time.Time) (*model.InboxRecord, error) {
	sub := `SELECT id FROM inbox_items WHERE ai_status = ? AND created_at < ? ORDER BY created_at ASC LIMIT 1`
	if s.dialect == DialectPostgres {
		sub += ` FOR UPDATE SKIP LOCKED`
	}
	row := s.db.QueryRowContext(ctx, s.q(`
		UPDATE inbox_items SET ai_status = ?, ai_error = NULL
		WHERE id = (`+sub+`) AND ai_status = ?
		RETURNING `+inboxColumns),
		string(model.AIProcessing), string(model.AIIdle), model.FormatTime(createdBefore), string(model.AIIdle),
	)
	rec, err := scanInbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim idle: %w", err)
	}
	return rec, nil
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
