package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/model"
	"github.com/yangwenmai/amigo/internal/store"
)

type fakeModel struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []Request
}

func (m *fakeModel) Complete(_ context.Context, r Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, r)
	return m.reply, m.err
}

func (m *fakeModel) last() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[len(m.reqs)-1]
}

type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) FetchText(context.Context, string) (string, error) {
	return f.text, f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.New(context.Background(), db, store.DialectSQLite)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *store.Store, id string, src model.SourceType, content string) model.InboxRecord {
	t.Helper()
	rec := model.NewInboxRecord(id, "Item "+id, src, time.Now())
	if content != "" {
		rec.SetContent(content)
	}
	require.NoError(t, s.CreateInbox(context.Background(), rec))
	return rec
}

func analyze(t *testing.T, s *store.Store, d *Dispatcher, id string, in Input) (*model.InboxRecord, error) {
	t.Helper()
	rec, err := s.BeginAnalysis(context.Background(), id)
	require.NoError(t, err)
	return d.Process(context.Background(), rec, in)
}

func TestDispatcher_TextDone(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "Refactor the store")
	m := &fakeModel{reply: `{"summary":"Refactor note.","category":"coding"}`}

	d := NewDispatcher(s, m, nil, logger.Nop())
	out, err := analyze(t, s, d, "t1", Input{SourceType: model.SourceText, Content: "Refactor the store"})
	require.NoError(t, err)

	assert.Equal(t, model.AIDone, out.AIStatus)
	require.NotNil(t, out.AISummary)
	assert.Equal(t, "Refactor note.", *out.AISummary)
	require.NotNil(t, out.AICategory)
	assert.Equal(t, model.CategoryCoding, *out.AICategory)
	assert.NotNil(t, out.ProcessedAt)

	req := m.last()
	assert.True(t, req.JSON)
	assert.Contains(t, req.Prompt, "Refactor the store")
	assert.Contains(t, req.System, "coding")
}

func TestDispatcher_ProseReplyFallsBack(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "hello")
	d := NewDispatcher(s, &fakeModel{reply: "Just words."}, nil, logger.Nop())

	out, err := analyze(t, s, d, "t1", Input{SourceType: model.SourceText, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Just words.", *out.AISummary)
	assert.Equal(t, model.DefaultCategory, *out.AICategory)
}

func TestDispatcher_LinkFetchFailureDegrades(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "l1", model.SourceLink, "https://unreachable.invalid/post")
	m := &fakeModel{reply: `{"summary":"A post.","category":"resources"}`}
	d := NewDispatcher(s, m, &fakeFetcher{err: errors.New("dial tcp: no such host")}, logger.Nop())

	out, err := analyze(t, s, d, "l1", Input{SourceType: model.SourceLink, Content: "https://unreachable.invalid/post"})
	require.NoError(t, err)
	assert.Equal(t, model.AIDone, out.AIStatus)
	assert.Contains(t, m.last().Prompt, "infer from the URL")
}

func TestDispatcher_LinkWithPage(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "l1", model.SourceLink, "https://go.dev")
	m := &fakeModel{reply: `{"summary":"Go site.","category":"coding"}`}
	d := NewDispatcher(s, m, &fakeFetcher{text: "Build simple, secure, scalable systems with Go"}, logger.Nop())

	_, err := analyze(t, s, d, "l1", Input{SourceType: model.SourceLink, Content: "https://go.dev"})
	require.NoError(t, err)
	assert.Contains(t, m.last().Prompt, "Build simple, secure, scalable systems with Go")
}

func TestDispatcher_ImagePassesURL(t *testing.T) {
	s := newTestStore(t)
	rec := model.NewInboxRecord("i1", "shot.png", model.SourceImage, time.Now())
	rec.AttachFile("http://localhost:8080/files/1-shot.png", "1-shot.png", "image/png")
	require.NoError(t, s.CreateInbox(context.Background(), rec))
	m := &fakeModel{reply: `{"summary":"A screenshot.","category":"amigo"}`}

	d := NewDispatcher(s, m, nil, logger.Nop())
	_, err := analyze(t, s, d, "i1", InputFromRecord(&rec))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/1-shot.png", m.last().ImageURL)
}

func TestDispatcher_ModelErrorFails(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "hello")
	d := NewDispatcher(s, &fakeModel{err: errors.New("openai: HTTP 503: overloaded")}, nil, logger.Nop())

	_, err := analyze(t, s, d, "t1", Input{SourceType: model.SourceText, Content: "hello"})
	require.Error(t, err)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "classify", se.Step)

	got, err := s.GetInbox(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.AIFailed, got.AIStatus)
	require.NotNil(t, got.AIError)
	assert.Contains(t, *got.AIError, "overloaded")
	assert.Nil(t, got.AISummary)
}

func TestDispatcher_CancelledRequestStillRecordsFailure(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "hello")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDispatcher(s, &fakeModel{err: context.Canceled}, nil, logger.Nop())

	rec, err := s.BeginAnalysis(context.Background(), "t1")
	require.NoError(t, err)
	_, err = d.Process(ctx, rec, Input{SourceType: model.SourceText, Content: "hello"})
	require.Error(t, err)

	got, err := s.GetInbox(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.AIFailed, got.AIStatus)
}

func TestDispatcher_InvalidInputFails(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "hello")
	m := &fakeModel{}
	d := NewDispatcher(s, m, nil, logger.Nop())

	_, err := analyze(t, s, d, "t1", Input{SourceType: model.SourceImage})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Empty(t, m.reqs)

	got, err := s.GetInbox(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.AIFailed, got.AIStatus)
}

func TestDispatcher_RecordDeletedMidFlight(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t1", model.SourceText, "hello")
	rec, err := s.BeginAnalysis(context.Background(), "t1")
	require.NoError(t, err)
	require.NoError(t, s.DeleteInbox(context.Background(), "t1"))

	d := NewDispatcher(s, &fakeModel{reply: `{"summary":"s","category":"ideas"}`}, nil, logger.Nop())
	_, err = d.Process(context.Background(), rec, Input{SourceType: model.SourceText, Content: "hello"})
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "persist", se.Step)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestInputValidate(t *testing.T) {
	assert.True(t, errors.Is(Input{SourceType: "fax", Content: "x"}.Validate(), ErrInvalidInput))
	assert.True(t, errors.Is(Input{SourceType: model.SourceText, Content: "  "}.Validate(), ErrInvalidInput))
	assert.NoError(t, Input{SourceType: model.SourceImage, Content: "https://x/a.png"}.Validate())
}

func TestInputFromRecord_FileName(t *testing.T) {
	rec := model.NewInboxRecord("f1", "Quarterly numbers", model.SourceFile, time.Now())
	rec.AttachFile("http://x/files/1711965600000-q1-report.pdf", "1711965600000-q1-report.pdf", "application/pdf")
	in := InputFromRecord(&rec)
	assert.Equal(t, "q1-report.pdf", in.Content)
	assert.NoError(t, in.Validate())

	bare := model.NewInboxRecord("f2", "notes.txt", model.SourceFile, time.Now())
	assert.Equal(t, "notes.txt", InputFromRecord(&bare).Content)
}
