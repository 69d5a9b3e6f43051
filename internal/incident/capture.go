// Package incident captures CorruptInvariant occurrences for later
// inspection: a structured, timestamped report gathered at the moment
// something goes wrong — narrowed here to the one invariant violation this
// scheduler can hit (make_batch or get_pending_tasks producing an
// inconsistent result) and held in a bounded ring buffer instead of
// being re-fetched from a timeline store.
package incident

import (
	"sync"
	"time"

	"github.com/meilidex/searchcore/internal/tasks"
)

// Report captures the context around one CorruptInvariant occurrence.
type Report struct {
	CapturedAt       time.Time  `json:"captured_at"`
	Reason           string     `json:"reason"`
	AttemptedIDs     []tasks.ID `json:"attempted_ids"`
	AuthoritativeIDs []tasks.ID `json:"authoritative_ids"`
}

// Recorder holds the most recent reports, oldest first, up to a fixed
// capacity.
type Recorder struct {
	mu       sync.Mutex
	reports  []Report
	capacity int
}

// NewRecorder returns a Recorder that keeps at most capacity reports.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{capacity: capacity}
}

// Capture appends a new report, evicting the oldest if at capacity.
func (r *Recorder) Capture(reason string, attempted, authoritative []tasks.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		CapturedAt:       time.Now(),
		Reason:           reason,
		AttemptedIDs:     append([]tasks.ID(nil), attempted...),
		AuthoritativeIDs: append([]tasks.ID(nil), authoritative...),
	}
	r.reports = append(r.reports, report)
	if len(r.reports) > r.capacity {
		r.reports = r.reports[len(r.reports)-r.capacity:]
	}
}

// Recent returns a copy of the captured reports, oldest first.
func (r *Recorder) Recent() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}
