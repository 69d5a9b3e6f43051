package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meilidex/searchcore/internal/tasks"
)

// MemoryStore is a map-backed TaskStore for tests and single-process
// non-durable deployments: a mutex guarding a map, copying records out
// on every read so callers never observe a mutation in progress.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[tasks.ID]*tasks.Task
	nextID  tasks.ID
	deleted map[tasks.ID]bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[tasks.ID]*tasks.Task),
		deleted: make(map[tasks.ID]bool),
	}
}

// Enqueue assigns the next monotonic id to content, stores it with a
// Created event, and returns the assigned id. This stands in for
// whatever HTTP handler or dumper would normally write to the real
// durable store; it is not part of the TaskStore interface the
// scheduler consumes.
func (s *MemoryStore) Enqueue(indexUID string, content tasks.Content) tasks.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	t := &tasks.Task{
		ID:       id,
		IndexUID: indexUID,
		Content:  content,
		Events:   []tasks.Event{{Kind: tasks.EventCreated}},
	}
	s.byID[id] = t
	return id
}

// Delete removes a task outright, simulating the sparse-id scenario
// spec.md §9 asks implementers to tolerate.
func (s *MemoryStore) Delete(id tasks.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	s.deleted[id] = true
}

func copyTask(t *tasks.Task) tasks.Task {
	cp := *t
	cp.Events = append([]tasks.Event(nil), t.Events...)
	return cp
}

func (s *MemoryStore) ListTasks(ctx context.Context, afterID *tasks.ID, filter *Filter, limit *int) ([]tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threshold := tasks.ID(0)
	if afterID != nil {
		threshold = *afterID
	}

	var ids []tasks.ID
	for id := range s.byID {
		if id >= threshold {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] }) // descending

	var out []tasks.Task
	for _, id := range ids {
		t := s.byID[id]
		if filter != nil && !filter.matches(t) {
			continue
		}
		out = append(out, copyTask(t))
		if limit != nil && len(out) >= *limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetPendingTasks(ctx context.Context, ids []tasks.ID) ([]tasks.ID, []tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := append([]tasks.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var outIDs []tasks.ID
	var outTasks []tasks.Task
	for _, id := range sorted {
		t, ok := s.byID[id]
		if !ok || t.IsFinished() {
			continue
		}
		outIDs = append(outIDs, id)
		outTasks = append(outTasks, copyTask(t))
	}
	return outIDs, outTasks, nil
}

func (s *MemoryStore) UpdateTasks(ctx context.Context, batch []tasks.Task) ([]tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]tasks.Task, 0, len(batch))
	for _, t := range batch {
		existing, ok := s.byID[t.ID]
		if !ok {
			continue
		}
		existing.Events = append([]tasks.Event(nil), t.Events...)
		out = append(out, copyTask(existing))
	}
	return out, nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id tasks.ID, filter *Filter) (tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok || (filter != nil && !filter.matches(t)) {
		return tasks.Task{}, ErrNotFound
	}
	return copyTask(t), nil
}
