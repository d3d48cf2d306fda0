package cortex

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yangwenmai/amigo/internal/logger"
	"github.com/yangwenmai/amigo/internal/model"
)

var (
	// ErrTrackerClosed is returned by Start after Shutdown.
	ErrTrackerClosed = errors.New("analysis tracker is shut down")
	// ErrJobRunning is returned by Start when the record already has a job in
	// flight.
	ErrJobRunning = errors.New("analysis already running")
)

// JobFunc runs one analysis and returns the record in its terminal state.
type JobFunc func(ctx context.Context) (*model.InboxRecord, error)

// JobOption configures one job passed to Start.
type JobOption func(*job)

// OnAbandon registers fn to run when the job never gets a slot because the
// tracker was cancelled while it waited. fn receives the cancellation error.
func OnAbandon(fn func(err error)) JobOption {
	return func(j *job) { j.abandon = fn }
}

// JobStatus is the observable state of one analysis job.
type JobStatus struct {
	ItemID   string             `json:"itemId"`
	AIStatus model.AIStatus     `json:"aiStatus"`
	Tracked  bool               `json:"tracked"`
	Record   *model.InboxRecord `json:"record,omitempty"`
	Error    string             `json:"error,omitempty"`

	err error
}

// Err returns the job error of a failed job.
func (s JobStatus) Err() error { return s.err }

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool { return s.AIStatus.Terminal() }

type job struct {
	itemID  string
	done    chan struct{}
	abandon func(err error)

	// set once before done is closed
	record     *model.InboxRecord
	err        error
	finishedAt time.Time
}

func (j *job) status() JobStatus {
	st := JobStatus{ItemID: j.itemID, AIStatus: model.AIProcessing, Tracked: true}
	select {
	case <-j.done:
	default:
		return st
	}
	if j.err != nil {
		st.AIStatus = model.AIFailed
		st.Error = j.err.Error()
		st.err = j.err
		return st
	}
	st.AIStatus = model.AIDone
	st.Record = j.record
	return st
}

// Tracker runs analysis jobs in the background keyed by record id. Jobs are
// detached from the caller's context and bounded by a semaphore. Finished
// jobs stay observable for the retention period.
type Tracker struct {
	log       *logger.Logger
	sem       *semaphore.Weighted
	retention time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// NewTracker creates a tracker running at most maxConcurrent jobs at once.
func NewTracker(maxConcurrent int64, retention time.Duration, log *logger.Logger) *Tracker {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		log:       log.With("component", "tracker"),
		sem:       semaphore.NewWeighted(maxConcurrent),
		retention: retention,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*job),
	}
}

// Start launches fn for itemID.
func (t *Tracker) Start(itemID string, fn JobFunc, opts ...JobOption) (JobStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return JobStatus{}, ErrTrackerClosed
	}
	t.pruneLocked()
	if j, ok := t.jobs[itemID]; ok {
		if st := j.status(); !st.Finished() {
			return st, ErrJobRunning
		}
	}

	j := &job{itemID: itemID, done: make(chan struct{})}
	for _, opt := range opts {
		opt(j)
	}
	t.jobs[itemID] = j
	t.wg.Add(1)
	go t.run(j, fn)
	return j.status(), nil
}

func (t *Tracker) run(j *job, fn JobFunc) {
	defer t.wg.Done()

	var (
		rec *model.InboxRecord
		err error
	)
	if err = t.sem.Acquire(t.ctx, 1); err == nil {
		rec, err = t.safeCall(fn)
		t.sem.Release(1)
	} else if j.abandon != nil {
		t.log.Warn("analysis job abandoned before start", "item_id", j.itemID, "error", err)
		j.abandon(err)
	}

	t.mu.Lock()
	j.record, j.err, j.finishedAt = rec, err, t.now()
	close(j.done)
	t.mu.Unlock()
}

func (t *Tracker) safeCall(fn JobFunc) (rec *model.InboxRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("analysis job panicked", "panic", r)
			err = errors.New("analysis job panicked")
		}
	}()
	return fn(t.ctx)
}

// Status returns the job state for itemID, if one is tracked.
func (t *Tracker) Status(itemID string) (JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	j, ok := t.jobs[itemID]
	if !ok {
		return JobStatus{}, false
	}
	return j.status(), true
}

// Wait blocks until the job for itemID finishes or ctx is done and returns
// the latest status. The second result is false when no job is tracked.
func (t *Tracker) Wait(ctx context.Context, itemID string) (JobStatus, bool) {
	t.mu.Lock()
	j, ok := t.jobs[itemID]
	t.mu.Unlock()
	if !ok {
		return JobStatus{}, false
	}

	select {
	case <-j.done:
	case <-ctx.Done():
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return j.status(), true
}

// Forget drops the job for itemID. A running job keeps running.
func (t *Tracker) Forget(itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, itemID)
}

// Shutdown stops accepting jobs and waits for in-flight ones. When ctx ends
// first, running jobs are cancelled and ctx.Err() is returned.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}

func (t *Tracker) pruneLocked() {
	if t.retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.retention)
	for id, j := range t.jobs {
		select {
		case <-j.done:
			if j.finishedAt.Before(cutoff) {
				delete(t.jobs, id)
			}
		default:
		}
	}
}
