package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// JobAdmissionLimiter is a per-caller token bucket guarding
// ScheduleJob admission. It is not consulted by ScheduleJob itself —
// that call always appends unconditionally, per spec — this is the
// ingestion-side backpressure a caller (an HTTP handler, a dump
// trigger) applies before calling ScheduleJob.
type JobAdmissionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewJobAdmissionLimiter returns a limiter allowing r jobs per second
// per caller key, with burst capacity b.
func NewJobAdmissionLimiter(r float64, b int) *JobAdmissionLimiter {
	return &JobAdmissionLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		burst:    b,
	}
}

// Allow reports whether callerKey may submit another job right now,
// creating a fresh bucket for callers seen for the first time.
func (l *JobAdmissionLimiter) Allow(callerKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[callerKey]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.burst)
		l.limiters[callerKey] = limiter
	}
	return limiter.Allow()
}
