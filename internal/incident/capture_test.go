package incident

import (
	"testing"

	"github.com/meilidex/searchcore/internal/tasks"
)

func TestRecorderEvictsOldestBeyondCapacity(t *testing.T) {
	r := NewRecorder(2)
	r.Capture("first", []tasks.ID{1}, nil)
	r.Capture("second", []tasks.ID{2}, nil)
	r.Capture("third", []tasks.ID{3}, nil)

	reports := r.Recent()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports retained, got %d", len(reports))
	}
	if reports[0].Reason != "second" || reports[1].Reason != "third" {
		t.Fatalf("expected oldest report evicted, got %+v", reports)
	}
}

func TestRecorderCopiesIDSlices(t *testing.T) {
	r := NewRecorder(4)
	attempted := []tasks.ID{1, 2}
	r.Capture("reason", attempted, nil)

	attempted[0] = 99
	reports := r.Recent()
	if reports[0].AttemptedIDs[0] == 99 {
		t.Fatalf("Capture must copy the attempted slice, not alias the caller's backing array")
	}
}

func TestNewRecorderClampsCapacityToOne(t *testing.T) {
	r := NewRecorder(0)
	r.Capture("a", nil, nil)
	r.Capture("b", nil, nil)

	reports := r.Recent()
	if len(reports) != 1 || reports[0].Reason != "b" {
		t.Fatalf("expected capacity clamped to 1 keeping only the latest report, got %+v", reports)
	}
}
