package store

import (
	"context"
	"time"

	"github.com/yangwenmai/amigo/internal/model"
)

// InboxReader provides read access to inbox records.
type InboxReader interface {
	GetInbox(ctx context.Context, id string) (*model.InboxRecord, error)
	ListInbox(ctx context.Context, f model.InboxFilter) ([]model.InboxRecord, error)
}

// InboxWriter provides write access to inbox records.
type InboxWriter interface {
	CreateInbox(ctx context.Context, rec model.InboxRecord) error
	UpdateTriageStatus(ctx context.Context, id string, status model.TriageStatus) (*model.InboxRecord, error)
	DeleteInbox(ctx context.Context, id string) error
}

// AnalysisRecorder moves a record through the AI lifecycle. Each call is a
// conditional update: it fails with ErrConflict when the record is not in the
// expected source state.
type AnalysisRecorder interface {
	BeginAnalysis(ctx context.Context, id string) (*model.InboxRecord, error)
	CompleteAnalysis(ctx context.Context, id, summary string, category model.Category) (*model.InboxRecord, error)
	FailAnalysis(ctx context.Context, id, reason string) (*model.InboxRecord, error)
}

// IdleClaimer provides the atomic claim used by the background sweeper.
type IdleClaimer interface {
	ClaimNextIdle(ctx context.Context, createdBefore time.Time) (*model.InboxRecord, error)
}

// TaskStore provides access to the agent task queue.
type TaskStore interface {
	HandOff(ctx context.Context, inboxID string, task model.TaskRecord) (*model.InboxRecord, bool, error)
	ListTasks(ctx context.Context) ([]model.TaskRecord, error)
}

// Repository combines all operations used by the cortex service.
type Repository interface {
	InboxReader
	InboxWriter
	AnalysisRecorder
	TaskStore
}
