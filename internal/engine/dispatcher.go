package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/model"
)

// AnalysisStore persists the AI lifecycle of a record.
type AnalysisStore interface {
	BeginAnalysis(ctx context.Context, id string) (*model.InboxRecord, error)
	CompleteAnalysis(ctx context.Context, id, summary string, category model.Category) (*model.InboxRecord, error)
	FailAnalysis(ctx context.Context, id, reason string) (*model.InboxRecord, error)
}

// Input is what the dispatcher analyzes. Content is the note text, the URL
// for links, the transcript for voice and the file name for files. FileURL is
// the public image URL for images.
type Input struct {
	SourceType model.SourceType
	Content    string
	FileURL    string
}

// ErrInvalidInput reports an input that cannot be analyzed.
var ErrInvalidInput = errors.New("invalid analysis input")

// Validate checks that the modality carries what its prompt needs.
func (in Input) Validate() error {
	switch in.SourceType {
	case model.SourceText, model.SourceVoice, model.SourceLink, model.SourceFile:
		if strings.TrimSpace(in.Content) == "" {
			return fmt.Errorf("%w: %s needs content", ErrInvalidInput, in.SourceType)
		}
	case model.SourceImage:
		if in.imageURL() == "" {
			return fmt.Errorf("%w: image needs a file url", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, in.SourceType)
	}
	return nil
}

func (in Input) imageURL() string {
	if in.FileURL != "" {
		return in.FileURL
	}
	return strings.TrimSpace(in.Content)
}

// InputFromRecord rebuilds the analysis input from a stored record.
func InputFromRecord(rec *model.InboxRecord) Input {
	in := Input{SourceType: rec.SourceType, Content: rec.Content(), FileURL: rec.URL()}
	if rec.SourceType == model.SourceFile && in.Content == "" {
		in.Content = fileName(rec)
	}
	return in
}

// fileName recovers the uploaded name from a "<millis>-<name>" object path.
func fileName(rec *model.InboxRecord) string {
	if rec.FilePath == nil {
		return rec.Title
	}
	name := path.Base(*rec.FilePath)
	if millis, rest, ok := strings.Cut(name, "-"); ok && rest != "" && isDigits(millis) {
		return rest
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the failed step.
func (e *StepError) StepName() string {
	return e.Step
}

// Dispatcher runs one analysis: it builds the modality prompt, calls the
// model, parses the reply and records the outcome.
type Dispatcher struct {
	store   AnalysisStore
	model   ModelClient
	fetcher PageFetcher
	log     *logger.Logger
	tracer  trace.Tracer
}

// NewDispatcher creates a dispatcher with the given dependencies.
func NewDispatcher(s AnalysisStore, mc ModelClient, f PageFetcher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:   s,
		model:   mc,
		fetcher: f,
		log:     log.With("component", "dispatcher"),
		tracer:  otel.Tracer("github.com/yangwenmai/amigo/internal/engine"),
	}
}

// Process runs the analysis for a record the caller already moved to
// processing and leaves it done or failed. Invalid input fails the record.
func (d *Dispatcher) Process(ctx context.Context, rec *model.InboxRecord, in Input) (*model.InboxRecord, error) {
	ctx, span := d.tracer.Start(ctx, "cortex.analyze", trace.WithAttributes(
		attribute.String("item_id", rec.ID),
		attribute.String("source_type", string(in.SourceType)),
	))
	defer span.End()

	start := time.Now()
	log := d.log.With("item_id", rec.ID, "source_type", in.SourceType)
	log.Info("analysis started", "ai_status", model.AIProcessing)

	out, err := d.run(ctx, rec.ID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(ctx, log, rec.ID, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("category", string(*out.AICategory)))
	log.Info("analysis finished", "ai_status", out.AIStatus, "category", *out.AICategory, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (d *Dispatcher) run(ctx context.Context, id string, in Input) (*model.InboxRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, &StepError{Step: "prompt", Err: err}
	}
	req := d.buildRequest(ctx, in)

	raw, err := d.model.Complete(ctx, req)
	if err != nil {
		return nil, &StepError{Step: "classify", Err: err}
	}
	a := ParseAnalysis(raw)

	out, err := d.store.CompleteAnalysis(ctx, id, a.Summary, a.Category)
	if err != nil {
		return nil, &StepError{Step: "persist", Err: err}
	}
	return out, nil
}

func (d *Dispatcher) buildRequest(ctx context.Context, in Input) Request {
	req := Request{System: systemPrompt(), JSON: true}
	switch in.SourceType {
	case model.SourceText:
		req.Prompt = buildTextPrompt(in.Content)
	case model.SourceVoice:
		req.Prompt = buildVoicePrompt(in.Content)
	case model.SourceLink:
		url := strings.TrimSpace(in.Content)
		page := ""
		if d.fetcher != nil {
			var err error
			page, err = d.fetcher.FetchText(ctx, url)
			if err != nil {
				d.log.Warn("link fetch failed, using url only", "url", url, "error", err)
				page = ""
			}
		}
		req.Prompt = buildLinkPrompt(url, page)
	case model.SourceImage:
		req.Prompt = buildImagePrompt()
		req.ImageURL = in.imageURL()
	case model.SourceFile:
		req.Prompt = buildFilePrompt(in.Content)
	}
	return req
}

// fail records the failure. It runs detached from ctx so a cancelled request
// still leaves the record in failed rather than processing.
func (d *Dispatcher) fail(ctx context.Context, log *logger.Logger, id string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := d.store.FailAnalysis(ctx, id, cause.Error()); err != nil {
		log.Error("record analysis failure", "ai_status", model.AIFailed, "error", err, "cause", cause)
		return
	}
	log.Warn("analysis failed", "ai_status", model.AIFailed, "error", cause)
}
