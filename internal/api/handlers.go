package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yangwenmai/amigo/internal/apperr"
	"github.com/yangwenmai/amigo/internal/cortex"
	"github.com/yangwenmai/amigo/internal/model"
)

// maxAnalysisWait caps ?wait= on the analysis endpoint.
const maxAnalysisWait = 60 * time.Second

// ---------------------------------------------------------------------------
// POST /cortex/analyze
// ---------------------------------------------------------------------------

type analyzeRequest struct {
	ItemID     string `json:"itemId"`
	SourceType string `json:"sourceType"`
	Content    string `json:"content"`
	FileURL    string `json:"fileUrl"`
}

type analyzeResponse struct {
	Summary  string         `json:"summary"`
	Category model.Category `json:"category"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Invalid("invalid JSON body"))
		return
	}

	rec, err := s.svc.Analyze(c.Request.Context(), cortex.AnalyzeRequest{
		ItemID:     req.ItemID,
		SourceType: req.SourceType,
		Content:    req.Content,
		FileURL:    req.FileURL,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := analyzeResponse{Category: model.DefaultCategory}
	if rec.AISummary != nil {
		resp.Summary = *rec.AISummary
	}
	if rec.AICategory != nil {
		resp.Category = *rec.AICategory
	}
	c.JSON(http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// POST /cortex/transcribe
// ---------------------------------------------------------------------------

func (s *Server) handleTranscribe(c *gin.Context) {
	up, err := s.formUpload(c, "audio")
	if err != nil {
		s.writeError(c, err)
		return
	}
	if up == nil {
		s.writeError(c, apperr.Invalid("audio is required"))
		return
	}
	defer up.close()

	text, err := s.svc.Transcribe(c.Request.Context(), &up.Upload)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// ---------------------------------------------------------------------------
// POST /cortex/capture
// ---------------------------------------------------------------------------

type captureRequest struct {
	Title      string `json:"title" form:"title"`
	SourceType string `json:"sourceType" form:"sourceType"`
	Content    string `json:"content" form:"content"`
}

func (s *Server) handleCapture(c *gin.Context) {
	var req captureRequest
	var up *formFile

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var err error
		if up, err = s.formUpload(c, "file"); err != nil {
			s.writeError(c, err)
			return
		}
		if up != nil {
			defer up.close()
		}
		if err := c.ShouldBind(&req); err != nil {
			s.writeError(c, apperr.Invalid("invalid form: %v", err))
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Invalid("invalid JSON body"))
		return
	}

	creq := cortex.CaptureRequest{Title: req.Title, SourceType: req.SourceType, Content: req.Content}
	if up != nil {
		creq.Upload = &up.Upload
	}
	res, err := s.svc.Capture(c.Request.Context(), creq)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type formFile struct {
	cortex.Upload
	file multipart.File
}

func (f *formFile) close() { f.file.Close() }

// formUpload opens the named multipart file. The declared size is checked
// against the limit before the file is opened. A missing field returns nil.
func (s *Server) formUpload(c *gin.Context, field string) (*formFile, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, apperr.TooLarge("request body exceeds %d bytes", tooBig.Limit)
		case errors.Is(err, http.ErrMissingFile):
			return nil, nil
		case errors.Is(err, http.ErrNotMultipart):
			return nil, apperr.Invalid("expected multipart form data")
		}
		return nil, apperr.Invalid("invalid multipart form: %v", err)
	}
	if fh.Size > s.svc.MaxUpload() {
		return nil, apperr.TooLarge("file exceeds the %d MiB limit", s.svc.MaxUpload()>>20)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Internal("open upload", err)
	}
	return &formFile{
		Upload: cortex.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		},
		file: f,
	}, nil
}

// ---------------------------------------------------------------------------
// GET /cortex/items
// ---------------------------------------------------------------------------

func (s *Server) handleListItems(c *gin.Context) {
	var f model.InboxFilter
	for _, v := range splitComma(c.Query("status")) {
		st, ok := model.ParseTriageStatus(v)
		if !ok {
			s.writeError(c, apperr.Invalid("unknown status %q", v))
			return
		}
		f.Status = append(f.Status, st)
	}
	for _, v := range splitComma(c.Query("category")) {
		cat := model.Category(strings.ToLower(v))
		if !cat.Valid() {
			s.writeError(c, apperr.Invalid("unknown category %q", v))
			return
		}
		f.Category = append(f.Category, cat)
	}
	for _, v := range splitComma(c.Query("aiStatus")) {
		st, ok := model.ParseAIStatus(v)
		if !ok {
			s.writeError(c, apperr.Invalid("unknown aiStatus %q", v))
			return
		}
		f.AIStatus = append(f.AIStatus, st)
	}

	items, err := s.svc.List(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// ---------------------------------------------------------------------------
// GET /cortex/items/:id
// ---------------------------------------------------------------------------

func (s *Server) handleGetItem(c *gin.Context) {
	rec, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ---------------------------------------------------------------------------
// GET /cortex/items/:id/analysis
// ---------------------------------------------------------------------------

func (s *Server) handleAnalysis(c *gin.Context) {
	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.writeError(c, apperr.Invalid("wait must be a duration such as 5s"))
			return
		}
		wait = min(d, maxAnalysisWait)
	}

	st, err := s.svc.AnalysisStatus(c.Request.Context(), c.Param("id"), wait)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ---------------------------------------------------------------------------
// PATCH /cortex/items/:id/status
// ---------------------------------------------------------------------------

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Invalid("invalid JSON body"))
		return
	}
	rec, err := s.svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ---------------------------------------------------------------------------
// POST /cortex/items/:id/handoff
// ---------------------------------------------------------------------------

func (s *Server) handleHandOff(c *gin.Context) {
	res, err := s.svc.HandOff(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// DELETE /cortex/items/:id
// ---------------------------------------------------------------------------

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// GET /tasks, /cortex/categories, /healthz
// ---------------------------------------------------------------------------

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.svc.Tasks(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCategories(c *gin.Context) {
	c.JSON(http.StatusOK, model.Categories)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
