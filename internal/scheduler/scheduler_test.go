package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/meilidex/searchcore/internal/store"
	"github.com/meilidex/searchcore/internal/tasks"
)

func addReplace(n int) tasks.Content {
	return tasks.Content{Kind: tasks.ContentDocumentAddition, DocumentsCount: n, MergeStrategy: tasks.MergeReplace}
}

func other() tasks.Content {
	return tasks.Content{Kind: tasks.ContentIndexDeletion}
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return New(ms, cfg), ms
}

func enqueue(ms *store.MemoryStore, indexUID string, content tasks.Content) tasks.ID {
	return ms.Enqueue(indexUID, content)
}

// TestPrepareSixBatchScenario reproduces the literal walk from spec.md
// §8: additions on indexes a={0,4,5,7} and b={1,2,3,6}, with index
// deletions (Other) at 2 and 5 interrupting coalescing.
func TestPrepareSixBatchScenario(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	enqueue(ms, "a", addReplace(1)) // 0
	enqueue(ms, "b", addReplace(1)) // 1
	enqueue(ms, "b", other())       // 2
	enqueue(ms, "b", addReplace(1)) // 3
	enqueue(ms, "a", addReplace(1)) // 4
	enqueue(ms, "a", other())       // 5
	enqueue(ms, "b", addReplace(1)) // 6
	enqueue(ms, "a", addReplace(1)) // 7

	want := [][]tasks.ID{
		{0, 4},
		{1},
		{2},
		{3, 6},
		{5},
		{7},
	}

	for i, w := range want {
		p, err := s.Prepare(ctx)
		if err != nil {
			t.Fatalf("batch %d: prepare failed: %v", i, err)
		}
		if p.Kind != PendingBatch {
			t.Fatalf("batch %d: expected a batch, got kind %v", i, p.Kind)
		}
		got := idsOf(p.Batch.Tasks)
		if !idsEqual(got, w) {
			t.Fatalf("batch %d: got %v, want %v", i, got, w)
		}
		s.Finish()
	}

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("final prepare failed: %v", err)
	}
	if p.Kind != PendingNothing {
		t.Fatalf("expected Nothing after draining, got kind %v", p.Kind)
	}
}

// TestPrepareMaxBatchSize reproduces the max_batch_size=2 scenario:
// six additions on one index split into three batches of two.
func TestPrepareMaxBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBatchSize = 2
	s, ms := newTestScheduler(t, cfg)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		enqueue(ms, "a", addReplace(1))
	}

	want := [][]tasks.ID{{0, 1}, {2, 3}, {4, 5}}
	for i, w := range want {
		p, err := s.Prepare(ctx)
		if err != nil {
			t.Fatalf("batch %d: prepare failed: %v", i, err)
		}
		got := idsOf(p.Batch.Tasks)
		if !idsEqual(got, w) {
			t.Fatalf("batch %d: got %v, want %v", i, got, w)
		}
		s.Finish()
	}
}

// TestPrepareDocumentCapCoalescesThenStops reproduces the
// max_documents_per_batch=100 scenario: two Add{70} tasks coalesce
// into one batch of 140 documents because the bound check happens
// after the push, then the next prepare has nothing left.
func TestPrepareDocumentCapCoalescesThenStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDocumentsPerBatch = 100
	s, ms := newTestScheduler(t, cfg)
	ctx := context.Background()

	enqueue(ms, "a", addReplace(70))
	enqueue(ms, "a", addReplace(70))

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if got := idsOf(p.Batch.Tasks); !idsEqual(got, []tasks.ID{0, 1}) {
		t.Fatalf("got %v, want [0 1]", got)
	}
	s.Finish()

	p, err = s.Prepare(ctx)
	if err != nil {
		t.Fatalf("second prepare failed: %v", err)
	}
	if p.Kind != PendingNothing {
		t.Fatalf("expected Nothing, got kind %v", p.Kind)
	}
}

// TestPrepareOversizeTaskAlone reproduces the single Add{500} with a
// cap of 100: the task is admitted alone because the bound check
// happens after it is pushed.
func TestPrepareOversizeTaskAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDocumentsPerBatch = 100
	s, ms := newTestScheduler(t, cfg)
	ctx := context.Background()

	enqueue(ms, "a", addReplace(500))

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if got := idsOf(p.Batch.Tasks); !idsEqual(got, []tasks.ID{0}) {
		t.Fatalf("got %v, want [0]", got)
	}
}

// TestPrepareNeverMixesAdditionAndUpdate checks invariant 5: a
// DocumentAddition head never coalesces with a trailing
// DocumentsUpdate task on the same index.
func TestPrepareNeverMixesAdditionAndUpdate(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	enqueue(ms, "a", addReplace(1))
	enqueue(ms, "a", tasks.Content{Kind: tasks.ContentDocumentAddition, DocumentsCount: 1, MergeStrategy: tasks.MergeUpdate})

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if got := idsOf(p.Batch.Tasks); !idsEqual(got, []tasks.ID{0}) {
		t.Fatalf("got %v, want [0] (update must not coalesce with addition)", got)
	}
}

// TestScheduleJobDrainsBeforeTasks checks that a queued job is served
// ahead of any pending task batch, per the "jobs drain strictly
// between batches" policy.
func TestScheduleJobDrainsBeforeTasks(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	enqueue(ms, "a", addReplace(1))
	s.ScheduleJob(Job{ID: "dump-1"})

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if p.Kind != PendingJob || p.Job.ID != "dump-1" {
		t.Fatalf("expected job dump-1 first, got kind %v job %+v", p.Kind, p.Job)
	}
}

// TestNotifyCoalesces reproduces the notification-coalescing property:
// 1000 consecutive Notify calls collapse into a single buffered wake-up.
func TestNotifyCoalesces(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())
	for i := 0; i < 1000; i++ {
		s.Notify()
	}
	select {
	case <-s.notifier:
	default:
		t.Fatal("expected one buffered notification")
	}
	select {
	case <-s.notifier:
		t.Fatal("expected no second notification")
	default:
	}
}

// TestFinishIdempotent checks that calling Finish with nothing to
// clear is a harmless no-op.
func TestFinishIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())
	s.Finish()
	s.Finish()
	if got := s.GetProcessingTasks(); len(got) != 0 {
		t.Fatalf("expected empty processing, got %v", got)
	}
}

// TestFetchPendingTasksNoOpOnUnchangedStore checks the round-trip
// property: calling Prepare again with nothing new in the store and no
// pending work returns Nothing without re-registering anything.
func TestFetchPendingTasksNoOpOnUnchangedStore(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	enqueue(ms, "a", addReplace(1))

	p, err := s.Prepare(ctx)
	if err != nil || p.Kind != PendingBatch {
		t.Fatalf("expected a batch, got %v err %v", p.Kind, err)
	}
	s.Finish()

	p, err = s.Prepare(ctx)
	if err != nil {
		t.Fatalf("second prepare failed: %v", err)
	}
	if p.Kind != PendingNothing {
		t.Fatalf("expected Nothing on unchanged store, got kind %v", p.Kind)
	}
}

// TestResyncDropsStaleCachedTasksFinishedByAnotherProcess reproduces
// the leadership-reacquisition scenario: this scheduler cached a task
// while it held leadership, lost it, and another process finished
// that task before this one regained leadership. Resync must drop the
// stale entry so Prepare doesn't select an id the store no longer
// considers pending.
func TestResyncDropsStaleCachedTasksFinishedByAnotherProcess(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	id := enqueue(ms, "a", addReplace(1))
	s.RegisterTask(tasks.Task{ID: id, IndexUID: "a", Content: addReplace(1)})

	finished, err := ms.GetTask(ctx, id, nil)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	finished.Events = append(finished.Events, tasks.Event{Kind: tasks.EventSucceeded})
	if _, err := ms.UpdateTasks(ctx, []tasks.Task{finished}); err != nil {
		t.Fatalf("UpdateTasks: %v", err)
	}

	if err := s.Resync(ctx); err != nil {
		t.Fatalf("Resync failed: %v", err)
	}

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare after Resync should not surface a corrupt invariant, got: %v", err)
	}
	if p.Kind != PendingNothing {
		t.Fatalf("expected Nothing after resync drops the already-finished task, got kind %v", p.Kind)
	}
}

// TestResyncRehydratesFreshTasksFromStore confirms Resync doesn't just
// clear state — it also refetches whatever is still actually pending.
func TestResyncRehydratesFreshTasksFromStore(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	enqueue(ms, "a", addReplace(1))

	if err := s.Resync(ctx); err != nil {
		t.Fatalf("Resync failed: %v", err)
	}

	p, err := s.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare after Resync failed: %v", err)
	}
	if p.Kind != PendingBatch || len(p.Batch.Tasks) != 1 {
		t.Fatalf("expected Resync to rehydrate the pending task into a batch, got %+v", p)
	}
}

// TestUpdateLoopProcessesBatchAndShutsDown drives UpdateLoop end to
// end against a fake performer, confirms the pending task reaches the
// performer as a batch, and that the loop returns once the context is
// cancelled.
func TestUpdateLoopProcessesBatchAndShutsDown(t *testing.T) {
	s, ms := newTestScheduler(t, DefaultConfig())
	enqueue(ms, "a", addReplace(1))
	s.Notify()

	perf := &fakePerformer{done: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	loopDone := make(chan struct{})
	go func() {
		UpdateLoop(ctx, s, perf)
		close(loopDone)
	}()

	select {
	case <-perf.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch to be processed")
	}
	cancel()

	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("UpdateLoop did not return after context cancellation")
	}
}

type fakePerformer struct {
	done chan struct{}
}

func (f *fakePerformer) ProcessBatch(b Batch) Batch {
	now := time.Now()
	for i := range b.Tasks {
		b.Tasks[i].Events = append(b.Tasks[i].Events, tasks.Event{Kind: tasks.EventSucceeded, Timestamp: now})
	}
	select {
	case f.done <- struct{}{}:
	default:
	}
	return b
}

func (f *fakePerformer) ProcessJob(j Job) {}

func idsOf(ts []tasks.Task) []tasks.ID {
	out := make([]tasks.ID, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func idsEqual(a, b []tasks.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
