// Package store defines the durable task store contract the scheduler
// consumes, and the backends that implement it (in-memory, Postgres,
// Redis). The store itself is an external collaborator per spec.md —
// this package only needs to honor its consumed shape faithfully.
package store

import (
	"context"
	"errors"

	"github.com/meilidex/searchcore/internal/tasks"
)

// ErrNotFound is returned by GetTask when no task has the requested id.
var ErrNotFound = errors.New("store: task not found")

// Filter is a predicate over a Task. The scheduler uses it to select
// only unfinished tasks when fetching pending work.
type Filter struct {
	Predicate func(*tasks.Task) bool
}

// Unfinished is the filter the scheduler uses when fetching pending
// tasks: never re-enqueue an already-finished task.
func Unfinished() Filter {
	return Filter{Predicate: func(t *tasks.Task) bool { return !t.IsFinished() }}
}

func (f Filter) matches(t *tasks.Task) bool {
	if f.Predicate == nil {
		return true
	}
	return f.Predicate(t)
}

// TaskStore is the durable task log the scheduler resynchronises
// against. Every method may fail with a transient error (the
// scheduler treats any such failure as StoreUnavailable and retries).
type TaskStore interface {
	// ListTasks returns tasks with id >= afterID (or id >= 0 if afterID
	// is nil) matching filter, in descending id order, up to limit
	// entries (unbounded if limit is nil).
	ListTasks(ctx context.Context, afterID *tasks.ID, filter *Filter, limit *int) ([]tasks.Task, error)

	// GetPendingTasks returns the subset of ids that are still pending
	// (not finished, not deleted) and their full Task records, in
	// ascending id order. Some ids may be filtered out if the task
	// reached a terminal state or was removed between enqueue and now.
	GetPendingTasks(ctx context.Context, ids []tasks.ID) ([]tasks.ID, []tasks.Task, error)

	// UpdateTasks persists the appended events on each task and returns
	// the stored copies.
	UpdateTasks(ctx context.Context, batch []tasks.Task) ([]tasks.Task, error)

	// GetTask returns a single task, or ErrNotFound.
	GetTask(ctx context.Context, id tasks.ID, filter *Filter) (tasks.Task, error)
}
