package model

import "time"

// Task defaults for records handed off to the automation agent.
const (
	TaskStatusTodo     = "todo"
	TaskAssigneeAgent  = "amigo-agent"
	TaskPriorityMedium = "medium"
)

// TaskRecord is a unit of work for the downstream agent.
type TaskRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Assignee      string `json:"assignee"`
	Priority      string `json:"priority"`
	SourceInboxID string `json:"sourceInboxId,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

// NewHandoffTask derives the agent task for an inbox record.
func NewHandoffTask(id string, rec InboxRecord, now time.Time) TaskRecord {
	return TaskRecord{
		ID:            id,
		Title:         "Cortex: " + rec.Title,
		Description:   handoffDescription(rec),
		Status:        TaskStatusTodo,
		Assignee:      TaskAssigneeAgent,
		Priority:      TaskPriorityMedium,
		SourceInboxID: rec.ID,
		CreatedAt:     FormatTime(now),
	}
}

// handoffDescription is the AI summary, else the raw content, else "".
func handoffDescription(rec InboxRecord) string {
	if rec.AISummary != nil && *rec.AISummary != "" {
		return *rec.AISummary
	}
	return rec.Content()
}
