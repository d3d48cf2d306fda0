// Package cortex implements the capture pipeline: intake, tracked analysis,
// hand-off to the agent queue and deletion.
package cortex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yangwenmai/amigo/internal/apperr"
	"github.com/yangwenmai/amigo/internal/blob"
	"github.com/yangwenmai/amigo/internal/engine"
	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/model"
	"github.com/yangwenmai/amigo/internal/store"
	"github.com/yangwenmai/amigo/internal/transcribe"
)

// DefaultMaxUpload is the capture size limit for file, image and voice
// payloads (10 MiB).
const DefaultMaxUpload int64 = 10 << 20

const failTimeout = 10 * time.Second

// Processor runs the analysis of a record already in processing.
type Processor interface {
	Process(ctx context.Context, rec *model.InboxRecord, in engine.Input) (*model.InboxRecord, error)
}

// Upload is a binary payload submitted with a capture. Size is the declared
// length or -1 when unknown.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// CaptureRequest is one user-submitted item. Content is the note text for
// text captures and the URL for links.
type CaptureRequest struct {
	Title      string
	SourceType string
	Content    string
	Upload     *Upload
}

// CaptureResult is the created record plus a handle on its analysis.
type CaptureResult struct {
	Record   *model.InboxRecord `json:"record"`
	Analysis JobStatus          `json:"analysis"`
}

// AnalyzeRequest addresses one record for analysis. Empty Content and FileURL
// fall back to what the record stores.
type AnalyzeRequest struct {
	ItemID     string
	SourceType string
	Content    string
	FileURL    string
}

// HandoffResult reports a hand-off. Task is nil when the record was already
// sent.
type HandoffResult struct {
	Record      *model.InboxRecord `json:"record"`
	Task        *model.TaskRecord  `json:"task,omitempty"`
	AlreadySent bool               `json:"alreadySent"`
}

// Option configures a Service.
type Option func(*Service)

// WithMaxUpload sets the payload size limit.
func WithMaxUpload(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the cortex application service used by the HTTP layer and the
// sweeper.
type Service struct {
	repo        store.Repository
	blobs       blob.Store
	transcriber transcribe.Transcriber
	processor   Processor
	tracker     *Tracker
	log         *logger.Logger

	maxUpload int64
	now       func() time.Time
	newID     func() string
}

// NewService wires the service.
func NewService(repo store.Repository, blobs blob.Store, tr transcribe.Transcriber, p Processor, tracker *Tracker, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		blobs:       blobs,
		transcriber: tr,
		processor:   p,
		tracker:     tracker,
		log:         log.With("component", "cortex"),
		maxUpload:   DefaultMaxUpload,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxUpload returns the payload size limit.
func (s *Service) MaxUpload() int64 { return s.maxUpload }

// Capture validates and persists one item, then starts its analysis in the
// background. It returns before the analysis finishes.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	src, ok := model.ParseSourceType(req.SourceType)
	if !ok {
		return nil, apperr.Invalid("sourceType must be one of text, link, image, voice, file")
	}

	var (
		content  = strings.TrimSpace(req.Content)
		fileName string
		data     []byte
		err      error
	)
	switch src {
	case model.SourceText:
		if content == "" {
			return nil, apperr.Invalid("content is required for text captures")
		}
	case model.SourceLink:
		if err := validateLink(content); err != nil {
			return nil, err
		}
	default:
		if req.Upload == nil || req.Upload.Body == nil {
			return nil, apperr.Invalid("a file is required for %s captures", src)
		}
		fileName = req.Upload.Name
		if fileName == "" {
			fileName = "upload"
		}
		if data, err = s.readUpload(req.Upload); err != nil {
			return nil, err
		}
	}

	rec := model.NewInboxRecord(s.newID(), "", src, s.now())
	if data != nil {
		ct := blob.DetectContentType(req.Upload.ContentType, fileName, data)
		if src == model.SourceImage && !strings.HasPrefix(ct, "image/") {
			return nil, apperr.Invalid("image captures need an image file, got %s", ct)
		}
		obj, err := s.blobs.Put(ctx, blob.ObjectPath(s.now(), fileName), ct, bytes.NewReader(data))
		if err != nil {
			return nil, apperr.Upstream("upload file", err)
		}
		rec.AttachFile(obj.URL, obj.Path, ct)

		if src == model.SourceVoice {
			// The uploaded audio stays in place when transcription fails.
			text, err := s.transcriber.Transcribe(ctx, transcribe.Audio{Name: fileName, ContentType: ct, Data: data})
			if err != nil {
				s.log.Warn("transcription failed, audio kept", "file_path", obj.Path, "error", err)
				return nil, transcribeErr(err)
			}
			content = strings.TrimSpace(text)
		}
	}

	rec.Title = model.DeriveTitle(req.Title, src, content, fileName)
	rec.SetContent(content)
	if err := s.repo.CreateInbox(ctx, rec); err != nil {
		return nil, apperr.Internal("create inbox item", err)
	}
	s.log.Info("captured", "item_id", rec.ID, "source_type", src, "has_file", rec.HasFile())

	in := engine.Input{SourceType: src, Content: content, FileURL: rec.URL()}
	if src == model.SourceFile {
		in.Content = fileName
	}
	status := s.dispatch(ctx, &rec, in)
	return &CaptureResult{Record: &rec, Analysis: status}, nil
}

// dispatch claims the new record and hands the analysis to the tracker. A
// record left idle here is picked up later by the sweeper.
func (s *Service) dispatch(ctx context.Context, rec *model.InboxRecord, in engine.Input) JobStatus {
	idle := JobStatus{ItemID: rec.ID, AIStatus: model.AIIdle}
	begun, err := s.repo.BeginAnalysis(ctx, rec.ID)
	if err != nil {
		s.log.Warn("could not start analysis", "item_id", rec.ID, "error", err)
		return idle
	}
	rec.AIStatus = begun.AIStatus

	st, err := s.start(ctx, begun, in)
	if err != nil {
		s.log.Warn("analysis not started", "item_id", rec.ID, "error", err)
		return JobStatus{ItemID: rec.ID, AIStatus: model.AIFailed, Error: err.Error()}
	}
	return st
}

// start runs Process for a record in processing. When the tracker refuses
// or abandons the job the record is failed so it does not stay processing.
func (s *Service) start(ctx context.Context, rec *model.InboxRecord, in engine.Input) (JobStatus, error) {
	st, err := s.tracker.Start(rec.ID, func(jctx context.Context) (*model.InboxRecord, error) {
		return s.processor.Process(jctx, rec, in)
	}, OnAbandon(func(err error) {
		s.failUnstarted(ctx, rec.ID, err)
	}))
	if err != nil {
		s.failUnstarted(ctx, rec.ID, err)
		return JobStatus{}, err
	}
	return st, nil
}

// failUnstarted records the failure of a job that never ran. It outlives ctx.
func (s *Service) failUnstarted(ctx context.Context, id string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	if _, err := s.repo.FailAnalysis(fctx, id, "analysis not started: "+cause.Error()); err != nil {
		s.log.Error("fail unstarted analysis", "item_id", id, "error", err)
	}
}

// Analyze runs the analysis of one idle record and waits for the outcome.
// The job keeps running when ctx ends first.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*model.InboxRecord, error) {
	if strings.TrimSpace(req.ItemID) == "" {
		return nil, apperr.Invalid("itemId is required")
	}
	if strings.TrimSpace(req.SourceType) == "" {
		return nil, apperr.Invalid("sourceType is required")
	}
	src, ok := model.ParseSourceType(req.SourceType)
	if !ok {
		return nil, apperr.Invalid("sourceType must be one of text, link, image, voice, file")
	}

	stored, err := s.repo.GetInbox(ctx, req.ItemID)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", req.ItemID)
	}
	if stored.SourceType != src {
		return nil, apperr.Invalid("sourceType %s does not match item %s (%s)", src, req.ItemID, stored.SourceType)
	}

	in := engine.Input{SourceType: src, Content: req.Content, FileURL: req.FileURL}
	if strings.TrimSpace(in.Content) == "" && in.FileURL == "" {
		fromRecord := engine.InputFromRecord(stored)
		in.Content, in.FileURL = fromRecord.Content, fromRecord.FileURL
	}
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%v", err)
	}

	rec, err := s.repo.BeginAnalysis(ctx, req.ItemID)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", req.ItemID)
	}
	if _, err := s.start(ctx, rec, in); err != nil {
		return nil, apperr.Internal("start analysis", err)
	}

	st, _ := s.tracker.Wait(ctx, rec.ID)
	if !st.Finished() {
		return nil, ctx.Err()
	}
	if st.Err() != nil {
		return nil, apperr.Upstream("analysis failed", st.Err())
	}
	return st.Record, nil
}

// ResumeClaimed analyzes a record the sweeper moved to processing and waits
// for the outcome.
func (s *Service) ResumeClaimed(ctx context.Context, rec *model.InboxRecord) error {
	if _, err := s.start(ctx, rec, engine.InputFromRecord(rec)); err != nil {
		return err
	}
	st, _ := s.tracker.Wait(ctx, rec.ID)
	if !st.Finished() {
		return ctx.Err()
	}
	return st.Err()
}

// AnalysisStatus reports the tracked job for id, waiting up to wait for it to
// finish. Without a tracked job it reports the persisted state.
func (s *Service) AnalysisStatus(ctx context.Context, id string, wait time.Duration) (JobStatus, error) {
	if _, ok := s.tracker.Status(id); ok {
		if wait > 0 {
			wctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			st, _ := s.tracker.Wait(wctx, id)
			return st, nil
		}
		st, _ := s.tracker.Status(id)
		return st, nil
	}

	rec, err := s.repo.GetInbox(ctx, id)
	if err != nil {
		return JobStatus{}, storeErr(err, "inbox item %s", id)
	}
	st := JobStatus{ItemID: id, AIStatus: rec.AIStatus, Record: rec}
	if rec.AIError != nil {
		st.Error = *rec.AIError
	}
	return st, nil
}

// Transcribe converts one audio upload to text without storing anything.
func (s *Service) Transcribe(ctx context.Context, up *Upload) (string, error) {
	if up == nil || up.Body == nil {
		return "", apperr.Invalid("audio is required")
	}
	data, err := s.readUpload(up)
	if err != nil {
		return "", err
	}
	text, err := s.transcriber.Transcribe(ctx, transcribe.Audio{
		Name:        up.Name,
		ContentType: blob.DetectContentType(up.ContentType, up.Name, data),
		Data:        data,
	})
	if err != nil {
		return "", transcribeErr(err)
	}
	return text, nil
}

// HandOff turns the record into an agent task and marks it sent. Calling it
// again on a sent record changes nothing.
func (s *Service) HandOff(ctx context.Context, id string) (*HandoffResult, error) {
	rec, err := s.repo.GetInbox(ctx, id)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", id)
	}
	if rec.IsSentToAgent {
		return &HandoffResult{Record: rec, AlreadySent: true}, nil
	}

	task := model.NewHandoffTask(s.newID(), *rec, s.now())
	out, created, err := s.repo.HandOff(ctx, id, task)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", id)
	}
	res := &HandoffResult{Record: out, AlreadySent: !created}
	if created {
		res.Task = &task
		s.log.Info("handed off", "item_id", id, "task_id", task.ID)
	}
	return res, nil
}

// Delete removes the stored file first and then the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.repo.GetInbox(ctx, id)
	if err != nil {
		return storeErr(err, "inbox item %s", id)
	}
	if rec.HasFile() {
		if err := s.blobs.Delete(ctx, *rec.FilePath); err != nil {
			return apperr.Upstream("delete file", err)
		}
	}
	if err := s.repo.DeleteInbox(ctx, id); err != nil {
		return storeErr(err, "inbox item %s", id)
	}
	s.tracker.Forget(id)
	s.log.Info("deleted", "item_id", id, "had_file", rec.HasFile())
	return nil
}

// SetStatus sets the triage status. Any value may follow any other.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*model.InboxRecord, error) {
	st, ok := model.ParseTriageStatus(status)
	if !ok {
		return nil, apperr.Invalid("status must be one of unread, read, implemented")
	}
	rec, err := s.repo.UpdateTriageStatus(ctx, id, st)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", id)
	}
	return rec, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*model.InboxRecord, error) {
	rec, err := s.repo.GetInbox(ctx, id)
	if err != nil {
		return nil, storeErr(err, "inbox item %s", id)
	}
	return rec, nil
}

// List returns records matching f, newest first.
func (s *Service) List(ctx context.Context, f model.InboxFilter) ([]model.InboxRecord, error) {
	recs, err := s.repo.ListInbox(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list inbox", err)
	}
	return recs, nil
}

// Tasks returns the agent task queue, newest first.
func (s *Service) Tasks(ctx context.Context) ([]model.TaskRecord, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	return tasks, nil
}

// readUpload buffers the payload, rejecting it before any network call when
// it exceeds the limit.
func (s *Service) readUpload(up *Upload) ([]byte, error) {
	if up.Size > s.maxUpload {
		return nil, s.tooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(up.Body, s.maxUpload+1))
	if err != nil {
		return nil, apperr.Invalid("read upload: %v", err)
	}
	if int64(len(data)) > s.maxUpload {
		return nil, s.tooLarge()
	}
	if len(data) == 0 {
		return nil, apperr.Invalid("uploaded file is empty")
	}
	return data, nil
}

func (s *Service) tooLarge() error {
	return apperr.TooLarge("file exceeds the %d MiB limit", s.maxUpload>>20)
}

func validateLink(raw string) error {
	if raw == "" {
		return apperr.Invalid("content is required for link captures")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Invalid("content must be an http(s) URL")
	}
	return nil
}

func transcribeErr(err error) error {
	if errors.Is(err, transcribe.ErrUnsupportedFormat) {
		return apperr.Invalid("%v", err)
	}
	return apperr.Upstream("transcribe audio", err)
}

// storeErr maps store sentinels to coded errors.
func storeErr(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.CodeConflict, http.StatusConflict, what+" is not idle", err)
	default:
		return apperr.Internal(what, err)
	}
}
