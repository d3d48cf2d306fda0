package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yangwenmai/amigo/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ InboxReader      = (*Store)(nil)
	_ InboxWriter      = (*Store)(nil)
	_ AnalysisRecorder = (*Store)(nil)
	_ IdleClaimer      = (*Store)(nil)
	_ TaskStore        = (*Store)(nil)
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update finds the row in an
	// unexpected state.
	ErrConflict = errors.New("conflict")
)

// Store provides data access to the relational database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New creates a Store and applies pending migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := Migrate(ctx, db, dialect); err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string { return rebind(s.dialect, query) }

func (s *Store) timestamp() string { return model.FormatTime(s.now()) }

const inboxColumns = `id, title, source_type, raw_content, file_url, file_path, file_type,
	ai_summary, ai_category, ai_status, ai_error, status, is_sent_to_agent, created_at, processed_at`

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInbox(row scanner) (*model.InboxRecord, error) {
	var rec model.InboxRecord
	err := row.Scan(&rec.ID, &rec.Title, &rec.SourceType, &rec.RawContent, &rec.FileURL, &rec.FilePath, &rec.FileType,
		&rec.AISummary, &rec.AICategory, &rec.AIStatus, &rec.AIError, &rec.Status, &rec.IsSentToAgent, &rec.CreatedAt, &rec.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanTask(row scanner) (*model.TaskRecord, error) {
	var t model.TaskRecord
	var source sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Assignee, &t.Priority, &source, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.SourceInboxID = source.String
	return &t, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
