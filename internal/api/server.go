// Package api exposes the cortex pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yangwenmai/amigo/internal/apperr"
	"github.com/yangwenmai/amigo/internal/cortex"
	"github.com/yangwenmai/amigo/internal/logger"
)

// maxRequestBody is the maximum allowed JSON request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// FilesDir, when set, is served at /files for locally stored blobs.
	FilesDir string
	// Tracing adds the otelgin middleware under ServiceName.
	Tracing     bool
	ServiceName string
	// Health is checked by /healthz.
	Health func(ctx context.Context) error
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	svc    *cortex.Service
	log    *logger.Logger
	opts   Options
	engine *gin.Engine
}

// New creates a new API server.
func New(svc *cortex.Service, log *logger.Logger, opts Options) *Server {
	s := &Server{svc: svc, log: log.With("component", "api"), opts: opts, engine: gin.New()}

	s.engine.Use(gin.Recovery())
	if opts.Tracing {
		s.engine.Use(otelgin.Middleware(opts.ServiceName))
	}
	s.engine.Use(RequestLogger(s.log))
	s.engine.Use(CORS(opts.AllowedOrigins))
	// Multipart captures carry up to the upload limit plus form overhead.
	s.engine.Use(MaxBodySize(svc.MaxUpload() + maxRequestBody))

	s.routes()
	return s
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.handleHealth)
	r.GET("/tasks", s.handleListTasks)

	cx := r.Group("/cortex")
	{
		cx.POST("/analyze", s.handleAnalyze)
		cx.POST("/transcribe", s.handleTranscribe)
		cx.POST("/capture", s.handleCapture)
		cx.GET("/categories", s.handleCategories)

		cx.GET("/items", s.handleListItems)
		cx.GET("/items/:id", s.handleGetItem)
		cx.GET("/items/:id/analysis", s.handleAnalysis)
		cx.PATCH("/items/:id/status", s.handleUpdateStatus)
		cx.POST("/items/:id/handoff", s.handleHandOff)
		cx.DELETE("/items/:id", s.handleDelete)
	}

	if s.opts.FilesDir != "" {
		r.Static("/files", s.opts.FilesDir)
	}
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code,omitempty"`
}

// writeError renders err as {error, code}. Internal causes are logged but not
// echoed to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	status := apperr.StatusOf(err)
	body := errorBody{Error: err.Error(), Code: apperr.CodeInternal}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Code = ae.Code
		if ae.Code == apperr.CodeInternal {
			body.Error = ae.Message
		}
	} else {
		body.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "route", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}
