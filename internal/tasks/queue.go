package tasks

import (
	"container/heap"
	"fmt"
	"sync/atomic"
)

// entry is the arena slot backing a List inside the outer priority
// structure: the outer heap holds pointers to entries rather than
// Lists directly, so a list's position in the heap can be
// re-established after HeadMut mutates it without disturbing any
// other entry. This is the Go rendering of the design note's
// "arena-plus-index" alternative to runtime-checked shared mutability.
type entry struct {
	list *List
	busy int32 // guards against concurrent HeadMut borrows of the same list
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].list.Less(h[j].list) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the two-level structure fronting the scheduler: a mapping
// from index uid to that index's pending-task List, plus an outer
// priority structure over Lists ordered by each list's current head.
//
// Queue itself is not safe for concurrent use; the Scheduler serializes
// all access to it under its own write lock, matching spec.md §5's
// "Heap manipulations and batching logic never suspend — they execute
// atomically within one scheduler lock hold."
type Queue struct {
	byIndex map[string]*entry
	outer   entryHeap
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{byIndex: make(map[string]*entry)}
}

// Insert classifies task and pushes it onto its index's List, creating
// that List if this is the first pending task for the index.
func (q *Queue) Insert(id ID, indexUID string, content Content) {
	kind := Classify(content)
	pending := Pending{Kind: kind, ID: id}

	if e, ok := q.byIndex[indexUID]; ok {
		if head, ok := e.list.Peek(); ok && id <= head.ID {
			panic(fmt.Sprintf("tasks: non-monotonic insert into index %q: id %d <= current head %d", indexUID, id, head.ID))
		}
		e.list.Push(pending)
		return
	}

	list := NewList(indexUID)
	list.Push(pending)
	e := &entry{list: list}
	q.byIndex[indexUID] = e
	heap.Push(&q.outer, e)
}

// HeadMut borrows the List whose head currently carries the globally
// smallest pending task id, exclusively for the duration of f, then
// re-establishes its position in the outer structure (or drops it from
// both structures if f emptied it). It returns false if the queue was
// empty.
func (q *Queue) HeadMut(f func(*List)) bool {
	if len(q.outer) == 0 {
		return false
	}
	e := heap.Pop(&q.outer).(*entry)

	if !atomic.CompareAndSwapInt32(&e.busy, 0, 1) {
		panic(fmt.Sprintf("tasks: concurrent HeadMut borrow of index %q", e.list.Index))
	}
	f(e.list)
	atomic.StoreInt32(&e.busy, 0)

	if e.list.Len() > 0 {
		heap.Push(&q.outer, e)
	} else {
		delete(q.byIndex, e.list.Index)
	}
	return true
}

// IsEmpty reports whether the queue holds no pending tasks for any
// index.
func (q *Queue) IsEmpty() bool {
	return len(q.outer) == 0 && len(q.byIndex) == 0
}

// Reset discards every pending entry and returns the number of tasks
// that were held per index uid at the moment of the reset, so a
// caller can unwind any per-index accounting (like a queue-depth
// gauge) before rehydrating from scratch.
func (q *Queue) Reset() map[string]int {
	counts := make(map[string]int, len(q.byIndex))
	for index, e := range q.byIndex {
		counts[index] = e.list.Len()
	}
	q.byIndex = make(map[string]*entry)
	q.outer = nil
	return counts
}
