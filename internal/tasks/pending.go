package tasks

import "container/heap"

// Pending is a lightweight handle to a not-yet-batched task: enough to
// order it and classify it, without carrying the full Task payload.
type Pending struct {
	Kind Type
	ID   ID
}

// pendingHeap is a min-heap over Pending ordered by ID, so Pop always
// yields the oldest (lowest-id) pending task, via container/heap.
type pendingHeap []Pending

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].ID < h[j].ID }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(Pending)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// List holds every pending task for a single index, ordered so Pop
// always returns the lowest task id currently in the list.
type List struct {
	Index string
	h     pendingHeap
}

// NewList creates an empty pending-task list for the given index.
func NewList(index string) *List {
	return &List{Index: index}
}

// Push inserts a pending task. The caller must ensure id is strictly
// greater than any id already in the list (monotonic task ids).
func (l *List) Push(p Pending) {
	heap.Push(&l.h, p)
}

// Peek returns the lowest-id pending task without removing it, or
// false if the list is empty.
func (l *List) Peek() (Pending, bool) {
	if len(l.h) == 0 {
		return Pending{}, false
	}
	return l.h[0], true
}

// Pop removes and returns the lowest-id pending task, or false if the
// list is empty.
func (l *List) Pop() (Pending, bool) {
	if len(l.h) == 0 {
		return Pending{}, false
	}
	return heap.Pop(&l.h).(Pending), true
}

// Len reports the number of pending tasks in the list.
func (l *List) Len() int { return len(l.h) }

// Drain pops every pending task in ascending id order.
func (l *List) Drain() []ID {
	ids := make([]ID, 0, l.Len())
	for {
		p, ok := l.Pop()
		if !ok {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// Less defines the ordering between two Lists used by the outer queue:
// a list with no head sorts before one with a head (the queue removes
// emptied lists, so this case never arises there); between two
// non-empty lists the one with the smaller head id sorts first.
func (l *List) Less(other *List) bool {
	lh, lok := l.Peek()
	oh, ook := other.Peek()
	switch {
	case !lok && !ook:
		return false
	case !lok:
		return true
	case !ook:
		return false
	default:
		return lh.ID < oh.ID
	}
}
