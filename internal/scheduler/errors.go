package scheduler

import "errors"

// ErrStoreUnavailable wraps any failure from a store call made during
// Prepare. The update loop logs and retries after a backoff; tasks
// remain pending in the durable store regardless.
var ErrStoreUnavailable = errors.New("scheduler: store unavailable")

// ErrCorruptInvariant marks a batch assembled with no tasks, or a
// get_pending_tasks result inconsistent with what was requested. It is
// fatal to the current Prepare call: the scheduler aborts the batch
// without calling Finish, and the queue is rebuilt by re-fetching.
var ErrCorruptInvariant = errors.New("scheduler: corrupt invariant")
