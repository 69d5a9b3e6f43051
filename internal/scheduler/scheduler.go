// Package scheduler owns the task queue, the batching policy, and the
// update loop that turns a stream of per-index mutation tasks into
// batches for a downstream performer: a mutex-guarded struct with a
// constructor and metrics on every state transition, built around this
// package's fairness/coalescing semantics.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/meilidex/searchcore/internal/incident"
	"github.com/meilidex/searchcore/internal/observability"
	"github.com/meilidex/searchcore/internal/store"
	"github.com/meilidex/searchcore/internal/tasks"
)

// Scheduler is the single-writer, many-reader owner of the pending
// task queue, the job deque, and the durable store handle. All
// mutation happens under mu; GetTask and ListTasks may run
// concurrently with a Prepare in flight because they only touch the
// store.
type Scheduler struct {
	mu sync.Mutex

	jobs              []Job
	tasks             *tasks.Queue
	store             store.TaskStore
	processing        []tasks.ID
	nextFetchedTaskID tasks.ID
	config            Config

	notifier  chan struct{}
	incidents *incident.Recorder
}

// New returns a Scheduler backed by s, ready to have tasks registered
// and Prepare called against it. The in-memory queue starts empty; the
// first Prepare call resynchronises it from the store.
func New(s store.TaskStore, config Config) *Scheduler {
	return &Scheduler{
		tasks:    tasks.NewQueue(),
		store:    s,
		config:   config,
		notifier: make(chan struct{}, 1),
	}
}

// SetIncidentRecorder attaches a recorder that captures the context
// around any CorruptInvariant occurrence. Optional: if never called,
// Prepare still returns ErrCorruptInvariant, it just isn't recorded.
func (s *Scheduler) SetIncidentRecorder(r *incident.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = r
}

// RegisterTask inserts an unfinished task into the pending queue. It
// does not touch the store; callers that want the task to survive a
// restart must have already persisted it there.
func (s *Scheduler) RegisterTask(t tasks.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks.Insert(t.ID, t.IndexUID, t.Content)
	observability.QueueDepth.WithLabelValues(t.IndexUID).Inc()
}

// ScheduleJob appends j to the back of the job deque.
func (s *Scheduler) ScheduleJob(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Notify wakes the update loop. It is idempotent and lossy: arbitrarily
// many calls between two loop iterations collapse into a single
// wake-up, because the notifier channel has capacity 1 and a full send
// is dropped rather than blocked.
func (s *Scheduler) Notify() {
	select {
	case s.notifier <- struct{}{}:
	default:
	}
}

// Finish clears processing. It is idempotent: calling it when
// processing is already empty is a no-op.
func (s *Scheduler) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = nil
}

// hasPendingWork reports whether the scheduler has any jobs or tasks
// left to serve, used to decide whether to re-fire Notify after
// draining one unit of work.
func (s *Scheduler) hasPendingWork() bool {
	return len(s.jobs) > 0 || !s.tasks.IsEmpty()
}

// Prepare assembles the next unit of work: a Job if any are queued, a
// Batch assembled from the pending task queue, or Nothing. It holds
// the scheduler's write lock for its entire duration, including store
// I/O, matching the locking discipline of one prepare-call-at-a-time
// access to the TaskQueue.
func (s *Scheduler) Prepare(ctx context.Context) (Pending, error) {
	start := time.Now()
	defer func() {
		observability.PrepareDuration.Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) > 0 {
		job := s.jobs[0]
		s.jobs = s.jobs[1:]
		if s.hasPendingWork() {
			s.Notify()
		}
		observability.JobsTotal.Inc()
		return Pending{Kind: PendingJob, Job: job}, nil
	}

	if err := s.fetchPendingTasks(ctx); err != nil {
		return Pending{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.processing = nil

	ids := makeBatch(s.tasks, s.config)
	if len(ids) == 0 {
		return Pending{Kind: PendingNothing}, nil
	}

	authoritativeIDs, fetched, err := s.store.GetPendingTasks(ctx, ids)
	if err != nil {
		return Pending{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(authoritativeIDs) == 0 {
		observability.CorruptInvariants.Inc()
		log.Printf("scheduler: make_batch selected %d ids but none are still pending; discarding batch", len(ids))
		if s.incidents != nil {
			s.incidents.Capture("make_batch selected ids that are no longer pending", ids, authoritativeIDs)
		}
		if os.Getenv("SCHEDULER_DEBUG") == "1" {
			panic(fmt.Sprintf("scheduler: corrupt invariant: make_batch selected %v but none are still pending", ids))
		}
		return Pending{}, ErrCorruptInvariant
	}

	batchID := fetched[0].ID
	now := time.Now()
	for i := range fetched {
		fetched[i].Events = append(fetched[i].Events, tasks.Event{
			Kind:      tasks.EventBatched,
			Timestamp: now,
			BatchID:   batchID,
		})
	}

	persisted, err := s.store.UpdateTasks(ctx, fetched)
	if err != nil {
		return Pending{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.processing = authoritativeIDs
	if s.hasPendingWork() {
		s.Notify()
	}

	return Pending{Kind: PendingBatch, Batch: Batch{ID: batchID, CreatedAt: now, Tasks: persisted}}, nil
}

// Resync discards the in-memory pending queue and the fetch watermark,
// then rehydrates both from the store. Call this once before the
// first Prepare of an UpdateLoop run, whether at process start or at
// leadership reacquisition: another process may have finished tasks
// this one had cached while it was not leading, and resuming from a
// stale nextFetchedTaskID/queue would let makeBatch select ids the
// store no longer considers pending, tripping a spurious
// ErrCorruptInvariant.
func (s *Scheduler) Resync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.tasks.Reset()
	for index, n := range counts {
		observability.QueueDepth.WithLabelValues(index).Sub(float64(n))
	}
	s.nextFetchedTaskID = 0
	s.processing = nil

	return s.fetchPendingTasks(ctx)
}

// fetchPendingTasks queries the store for every unfinished task with
// id at or above nextFetchedTaskID and registers each in ascending id
// order (the store returns them descending; this walks the slice
// backwards so registration respects monotonicity). Ids may be sparse
// if tasks were deleted; nextFetchedTaskID advances past the largest
// id seen regardless.
func (s *Scheduler) fetchPendingTasks(ctx context.Context) error {
	unfinished := store.Unfinished()
	afterID := s.nextFetchedTaskID
	fetched, err := s.store.ListTasks(ctx, &afterID, &unfinished, nil)
	if err != nil {
		return err
	}

	for i := len(fetched) - 1; i >= 0; i-- {
		t := fetched[i]
		s.nextFetchedTaskID = t.ID + 1
		s.tasks.Insert(t.ID, t.IndexUID, t.Content)
		observability.QueueDepth.WithLabelValues(t.IndexUID).Inc()
	}
	return nil
}

// UpdateTasks delegates to the store.
func (s *Scheduler) UpdateTasks(ctx context.Context, batch []tasks.Task) ([]tasks.Task, error) {
	return s.store.UpdateTasks(ctx, batch)
}

// GetTask delegates to the store.
func (s *Scheduler) GetTask(ctx context.Context, id tasks.ID, filter *store.Filter) (tasks.Task, error) {
	return s.store.GetTask(ctx, id, filter)
}

// ListTasks delegates to the store.
func (s *Scheduler) ListTasks(ctx context.Context, afterID *tasks.ID, filter *store.Filter, limit *int) ([]tasks.Task, error) {
	return s.store.ListTasks(ctx, afterID, filter, limit)
}

// GetProcessingTasks returns the ids currently between Prepare and
// Finish, or nil if none.
func (s *Scheduler) GetProcessingTasks() []tasks.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tasks.ID, len(s.processing))
	copy(out, s.processing)
	return out
}

// Snapshot is a point-in-time view of scheduler state for the
// dashboard hub and debugging endpoints.
type Snapshot struct {
	PendingJobs       int       `json:"pending_jobs"`
	ProcessingTasks   []tasks.ID `json:"processing_tasks"`
	NextFetchedTaskID tasks.ID  `json:"next_fetched_task_id"`
	QueueEmpty        bool      `json:"queue_empty"`
}

// Snapshot returns the current state for display purposes.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	processing := make([]tasks.ID, len(s.processing))
	copy(processing, s.processing)
	return Snapshot{
		PendingJobs:       len(s.jobs),
		ProcessingTasks:   processing,
		NextFetchedTaskID: s.nextFetchedTaskID,
		QueueEmpty:        s.tasks.IsEmpty(),
	}
}
