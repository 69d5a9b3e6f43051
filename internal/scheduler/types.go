package scheduler

import (
	"time"

	"github.com/meilidex/searchcore/internal/tasks"
)

// Job is an ad-hoc piece of work not backed by the task store (a
// snapshot, a dump). Jobs are transient: pushed by callers, popped by
// Prepare, never persisted.
type Job struct {
	ID      string
	Payload interface{}
}

// Batch is a group of tasks selected to run as a unit, identified by
// the smallest task id it contains.
type Batch struct {
	ID        tasks.ID
	CreatedAt time.Time
	Tasks     []tasks.Task
}

// PendingKind tags what Prepare returned.
type PendingKind int

const (
	PendingNothing PendingKind = iota
	PendingBatch
	PendingJob
)

// Pending is the tagged result of Prepare: exactly one of Batch or Job
// is meaningful, selected by Kind.
type Pending struct {
	Kind  PendingKind
	Batch Batch
	Job   Job
}

// Config holds the batching policy's tunables.
type Config struct {
	// MaxBatchSize upper-bounds tasks per batch; treated as at least 1.
	MaxBatchSize int
	// MaxDocumentsPerBatch caps summed document counts across a batch;
	// zero means unbounded.
	MaxDocumentsPerBatch int
	// DebounceDurationSec delays batch assembly to let more tasks
	// accumulate; zero disables debouncing.
	DebounceDurationSec int
}

// DefaultConfig returns the scheduler's baseline tunables.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:         1000,
		MaxDocumentsPerBatch: 0,
		DebounceDurationSec:  0,
	}
}

func (c Config) maxBatchSize() int {
	if c.MaxBatchSize < 1 {
		return 1
	}
	return c.MaxBatchSize
}

// Performer is the downstream collaborator that executes batches and
// jobs. ProcessBatch runs every task serially and returns the batch
// with per-task events (Processing, Succeeded, Failed) appended;
// ProcessJob runs a job to completion.
type Performer interface {
	ProcessBatch(batch Batch) Batch
	ProcessJob(job Job)
}
