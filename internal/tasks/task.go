// Package tasks holds the durable-task data model the scheduler reasons
// about: tasks, their content tags, their event history, and the
// per-index pending-task structures used for batching.
package tasks

import "time"

// ID is a monotonically increasing, non-negative task identifier,
// unique across the process lifetime of the store that assigns it.
type ID uint64

// MergeStrategy is how a document addition combines with existing
// documents of the same primary key.
type MergeStrategy int

const (
	// MergeReplace overwrites any existing document with the same key.
	MergeReplace MergeStrategy = iota
	// MergeUpdate merges fields into any existing document.
	MergeUpdate
)

// ContentKind tags the variant of a Task's content. The scheduler only
// ever inspects the tag, never the payload.
type ContentKind string

const (
	ContentDocumentAddition ContentKind = "document_addition"
	ContentDocumentDeletion ContentKind = "document_deletion"
	ContentIndexCreation    ContentKind = "index_creation"
	ContentIndexUpdate      ContentKind = "index_update"
	ContentIndexDeletion    ContentKind = "index_deletion"
	ContentSettingsUpdate   ContentKind = "settings_update"
	ContentDump             ContentKind = "dump"
)

// Content is the tagged, opaque-to-the-scheduler payload of a Task.
// DocumentsCount and MergeStrategy are only meaningful when Kind is
// ContentDocumentAddition; every other kind classifies as Other for
// batching purposes regardless of its fields.
type Content struct {
	Kind           ContentKind
	DocumentsCount int
	MergeStrategy  MergeStrategy
}

// EventKind tags a TaskEvent.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventBatched    EventKind = "batched"
	EventProcessing EventKind = "processing"
	EventSucceeded  EventKind = "succeeded"
	EventFailed     EventKind = "failed"
)

// Event is one entry in a Task's event history. Only the scheduler
// appends Batched events; Created is appended by the store at
// creation time, and Processing/Succeeded/Failed are appended by the
// performer.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	BatchID   ID     // set when Kind == EventBatched
	Error     string // set when Kind == EventFailed
}

// IsTerminal reports whether this event kind ends a task's lifecycle.
func (e EventKind) IsTerminal() bool {
	return e == EventSucceeded || e == EventFailed
}

// Task is a durable record of a requested index mutation.
type Task struct {
	ID       ID
	IndexUID string
	Content  Content
	Events   []Event
}

// IsFinished reports whether a terminal event has been appended.
func (t *Task) IsFinished() bool {
	for _, e := range t.Events {
		if e.Kind.IsTerminal() {
			return true
		}
	}
	return false
}

// Type is the scheduler's classification of a task for coalescing
// purposes: Addition and Update carry the task's document count so
// the batching policy can enforce a document-count cap, but that
// count is ignored when comparing two Types for equality.
type Type struct {
	Variant Variant
	Number  int
}

// Variant distinguishes the coalescable task-type families.
type Variant int

const (
	VariantDocumentAddition Variant = iota
	VariantDocumentsUpdate
	VariantOther
)

// SameVariant reports whether two Types may be coalesced into the same
// batch. Two Other tasks are never coalescable, even with each other —
// index-level operations always run alone.
func (t Type) SameVariant(other Type) bool {
	if t.Variant == VariantOther || other.Variant == VariantOther {
		return false
	}
	return t.Variant == other.Variant
}

// Classify derives a task's scheduler-internal Type from its content.
func Classify(c Content) Type {
	if c.Kind != ContentDocumentAddition {
		return Type{Variant: VariantOther}
	}
	switch c.MergeStrategy {
	case MergeReplace:
		return Type{Variant: VariantDocumentAddition, Number: c.DocumentsCount}
	case MergeUpdate:
		return Type{Variant: VariantDocumentsUpdate, Number: c.DocumentsCount}
	default:
		return Type{Variant: VariantOther}
	}
}
