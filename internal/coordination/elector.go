// Package coordination elects a single process to run the scheduler's
// UpdateLoop across a fleet of replicas sharing one store, via a
// lease-acquire-renew-release loop with exponential backoff on error.
package coordination

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meilidex/searchcore/internal/observability"
	"github.com/meilidex/searchcore/internal/store"
)

const lockKey = "searchcore:lock:scheduler-leader"

// Elector runs a single goroutine that repeatedly tries to acquire or
// renew a lease in coordinator, calling onElected when this process
// becomes the leader and onLost when it steps down (voluntarily, on
// renew failure, or on shutdown).
type Elector struct {
	coordinator store.Coordinator
	nodeID      string
	ttl         time.Duration

	onElected func(ctx context.Context)
	onLost    func()

	mu           sync.RWMutex
	isLeader     bool
	leaseValue   string
	leaderCancel context.CancelFunc
	transitions  int64
}

// New returns an Elector that contends for leadership under nodeID,
// holding the lease for ttl between renewals.
func New(c store.Coordinator, nodeID string, ttl time.Duration) *Elector {
	return &Elector{coordinator: c, nodeID: nodeID, ttl: ttl}
}

// SetCallbacks registers the leadership transition hooks. onElected
// receives a context cancelled the moment leadership is lost, so the
// UpdateLoop it starts shuts down promptly on step-down.
func (e *Elector) SetCallbacks(onElected func(ctx context.Context), onLost func()) {
	e.onElected = onElected
	e.onLost = onLost
}

// IsLeader reports whether this process currently holds the lease.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// Run contends for leadership until ctx is cancelled, releasing the
// lease and stepping down on exit.
func (e *Elector) Run(ctx context.Context) {
	interval := e.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	minInterval := interval
	maxInterval := 10 * e.ttl

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if e.IsLeader() {
				e.release()
				e.stepDown()
			}
			return
		case <-timer.C:
			var err error
			if e.IsLeader() {
				var renewed bool
				renewed, err = e.renew(ctx)
				if err == nil && !renewed {
					e.stepDown()
				}
			} else {
				var acquired bool
				acquired, err = e.acquire(ctx)
				if err == nil && acquired {
					e.becomeLeader()
				}
			}

			if err != nil {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
				log.Printf("coordination: lease operation failed, backing off %v: %v", interval, err)
			} else {
				interval = minInterval
			}
			timer.Reset(interval)
		}
	}
}

func (e *Elector) acquire(ctx context.Context) (bool, error) {
	value := uuid.NewString()
	acquired, err := e.coordinator.AcquireLease(ctx, lockKey, value, e.ttl)
	if err != nil {
		return false, err
	}
	if acquired {
		e.mu.Lock()
		e.leaseValue = value
		e.mu.Unlock()
	}
	return acquired, nil
}

func (e *Elector) renew(ctx context.Context) (bool, error) {
	e.mu.RLock()
	value := e.leaseValue
	e.mu.RUnlock()
	if value == "" {
		return false, nil
	}
	return e.coordinator.RenewLease(ctx, lockKey, value, e.ttl)
}

func (e *Elector) release() {
	e.mu.RLock()
	value := e.leaseValue
	e.mu.RUnlock()
	if value == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.coordinator.ReleaseLease(ctx, lockKey, value); err != nil {
		log.Printf("coordination: failed to release lease: %v", err)
	}
}

func (e *Elector) becomeLeader() {
	e.mu.Lock()
	e.isLeader = true
	e.transitions++
	ctx, cancel := context.WithCancel(context.Background())
	e.leaderCancel = cancel
	e.mu.Unlock()

	observability.LeaderStatus.Set(1)
	observability.LeadershipTransitions.WithLabelValues(e.nodeID, "acquired").Inc()
	log.Printf("coordination: %s acquired scheduler leadership", e.nodeID)

	if e.onElected != nil {
		go e.onElected(ctx)
	}
}

func (e *Elector) stepDown() {
	e.mu.Lock()
	if !e.isLeader {
		e.mu.Unlock()
		return
	}
	e.isLeader = false
	e.transitions++
	if e.leaderCancel != nil {
		e.leaderCancel()
	}
	e.mu.Unlock()

	observability.LeaderStatus.Set(0)
	observability.LeadershipTransitions.WithLabelValues(e.nodeID, "lost").Inc()
	log.Printf("coordination: %s lost scheduler leadership", e.nodeID)

	if e.onLost != nil {
		e.onLost()
	}
}
