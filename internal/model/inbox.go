package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SourceType is the capture modality of an inbox record. It never changes
// after creation.
type SourceType string

const (
	SourceText  SourceType = "text"
	SourceLink  SourceType = "link"
	SourceImage SourceType = "image"
	SourceVoice SourceType = "voice"
	SourceFile  SourceType = "file"
)

// SourceTypes lists every modality accepted at capture.
var SourceTypes = []SourceType{SourceText, SourceLink, SourceImage, SourceVoice, SourceFile}

// ParseSourceType reports whether s names a known modality.
func ParseSourceType(s string) (SourceType, bool) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SourceTypes {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// HasUpload reports whether records of this modality carry a stored binary.
func (s SourceType) HasUpload() bool {
	return s == SourceImage || s == SourceVoice || s == SourceFile
}

// TriageStatus is the human-facing progress marker, independent of AIStatus.
type TriageStatus string

const (
	TriageUnread      TriageStatus = "unread"
	TriageRead        TriageStatus = "read"
	TriageImplemented TriageStatus = "implemented"
)

// ParseTriageStatus reports whether s names a known triage status.
func ParseTriageStatus(s string) (TriageStatus, bool) {
	switch ts := TriageStatus(strings.ToLower(strings.TrimSpace(s))); ts {
	case TriageUnread, TriageRead, TriageImplemented:
		return ts, true
	}
	return "", false
}

// TimeLayout is a fixed-width UTC layout so stored timestamps sort
// lexicographically in creation order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// InboxRecord is one captured item in the Cortex inbox.
type InboxRecord struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	SourceType    SourceType   `json:"sourceType"`
	RawContent    *string      `json:"rawContent,omitempty"`
	FileURL       *string      `json:"fileUrl,omitempty"`
	FilePath      *string      `json:"filePath,omitempty"`
	FileType      *string      `json:"fileType,omitempty"`
	AISummary     *string      `json:"aiSummary,omitempty"`
	AICategory    *Category    `json:"aiCategory,omitempty"`
	AIStatus      AIStatus     `json:"aiStatus"`
	AIError       *string      `json:"aiError,omitempty"`
	Status        TriageStatus `json:"status"`
	IsSentToAgent bool         `json:"isSentToAgent"`
	CreatedAt     string       `json:"createdAt"`
	ProcessedAt   *string      `json:"processedAt,omitempty"`
}

// InboxFilter holds query parameters for listing inbox records. Empty
// slices match everything.
type InboxFilter struct {
	Status   []TriageStatus
	Category []Category
	AIStatus []AIStatus
}

// NewInboxRecord creates a record in the unread/idle starting state.
func NewInboxRecord(id, title string, sourceType SourceType, now time.Time) InboxRecord {
	return InboxRecord{
		ID:         id,
		Title:      title,
		SourceType: sourceType,
		AIStatus:   AIIdle,
		Status:     TriageUnread,
		CreatedAt:  FormatTime(now),
	}
}

// SetContent stores the textual payload. Empty content leaves the field unset.
func (r *InboxRecord) SetContent(content string) {
	if content == "" {
		r.RawContent = nil
		return
	}
	r.RawContent = &content
}

// AttachFile records a stored binary. The public URL and the storage path are
// always set together.
func (r *InboxRecord) AttachFile(url, path, fileType string) {
	r.FileURL = &url
	r.FilePath = &path
	if fileType != "" {
		r.FileType = &fileType
	}
}

// HasFile reports whether the record references a stored binary.
func (r *InboxRecord) HasFile() bool {
	return r.FilePath != nil && *r.FilePath != ""
}

// Content returns the raw content or "".
func (r *InboxRecord) Content() string {
	if r.RawContent == nil {
		return ""
	}
	return *r.RawContent
}

// URL returns the public file URL or "".
func (r *InboxRecord) URL() string {
	if r.FileURL == nil {
		return ""
	}
	return *r.FileURL
}

// State returns the AI lifecycle of the record as a single value.
func (r *InboxRecord) State() AIState {
	switch r.AIStatus {
	case AIProcessing:
		return Processing()
	case AIDone:
		st := Done("", DefaultCategory)
		if r.AISummary != nil {
			st.Summary = *r.AISummary
		}
		if r.AICategory != nil {
			st.Category = *r.AICategory
		}
		return st
	case AIFailed:
		st := Failed("")
		if r.AIError != nil {
			st.Reason = *r.AIError
		}
		return st
	}
	return Idle()
}

const maxDerivedTitle = 60

// DeriveTitle picks a display title when the capturer supplied none.
func DeriveTitle(title string, sourceType SourceType, content, fileName string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	switch sourceType {
	case SourceText, SourceVoice:
		if t := strings.Join(strings.Fields(content), " "); t != "" {
			return truncateRunes(t, maxDerivedTitle)
		}
		if sourceType == SourceVoice {
			return "Voice note"
		}
	case SourceLink:
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	case SourceImage, SourceFile:
		if t := strings.TrimSpace(fileName); t != "" {
			return t
		}
	}
	return "Untitled"
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
