// Package worker sweeps up records whose in-process analysis dispatch was
// lost and runs them.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/model"
)

// Processor analyzes a record the worker already moved to processing.
type Processor interface {
	ResumeClaimed(ctx context.Context, rec *model.InboxRecord) error
}

// IdleClaimer provides the atomic idle -> processing claim.
type IdleClaimer interface {
	ClaimNextIdle(ctx context.Context, createdBefore time.Time) (*model.InboxRecord, error)
}

// Worker polls for records still idle after the grace period. It never
// touches processing, done or failed records.
type Worker struct {
	claimer   IdleClaimer
	processor Processor
	interval  time.Duration
	grace     time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new Worker.
func New(claimer IdleClaimer, processor Processor, interval, grace time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		claimer:   claimer,
		processor: processor,
		interval:  interval,
		grace:     grace,
		log:       log.With("component", "worker"),
		now:       time.Now,
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker started", "interval", w.interval.String(), "grace", w.grace.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return
		default:
		}

		if !w.sweepOne(ctx) {
			w.sleep(ctx)
		}
	}
}

// sweepOne claims and processes one stale idle record. It reports whether a
// record was claimed.
func (w *Worker) sweepOne(ctx context.Context) bool {
	rec, err := w.claimer.ClaimNextIdle(ctx, w.now().Add(-w.grace))
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("worker claim error", "error", err)
		}
		return false
	}
	if rec == nil {
		return false
	}

	w.log.Info("processing stale idle item", "item_id", rec.ID, "source_type", rec.SourceType)
	if err := w.processor.ResumeClaimed(ctx, rec); err != nil {
		w.log.Error("analysis failed", "item_id", rec.ID, "step", stepOf(err), "error", err)
		return true
	}
	w.log.Info("item analyzed", "item_id", rec.ID)
	return true
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.interval):
	}
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func stepOf(err error) string {
	var sn stepNamer
	if errors.As(err, &sn) {
		return sn.StepName()
	}
	return "unknown"
}
