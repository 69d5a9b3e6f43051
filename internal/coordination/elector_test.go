package coordination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meilidex/searchcore/internal/store"
)

// fakeCoordinator is an in-memory store.Coordinator for exercising
// Elector without a real Redis instance.
type fakeCoordinator struct {
	mu    sync.Mutex
	value string
}

func (f *fakeCoordinator) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value != "" {
		return false, nil
	}
	f.value = value
	return true, nil
}

func (f *fakeCoordinator) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value == value, nil
}

func (f *fakeCoordinator) ReleaseLease(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.value == value {
		f.value = ""
	}
	return nil
}

var _ store.Coordinator = (*fakeCoordinator)(nil)

func TestElectorBecomesLeaderAndStepsDownOnCancel(t *testing.T) {
	coord := &fakeCoordinator{}
	e := New(coord, "node-a", 30*time.Millisecond)

	elected := make(chan struct{})
	lost := make(chan struct{}, 1)
	e.SetCallbacks(
		func(ctx context.Context) {
			close(elected)
			<-ctx.Done()
			lost <- struct{}{}
		},
		func() {},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case <-elected:
	case <-time.After(time.Second):
		t.Fatal("elector never became leader")
	}
	if !e.IsLeader() {
		t.Fatal("expected IsLeader true after election")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("onElected's context was never cancelled on step-down")
	}
	if e.IsLeader() {
		t.Fatal("expected IsLeader false after stepping down")
	}
}

func TestElectorSecondNodeWaitsForLease(t *testing.T) {
	coord := &fakeCoordinator{}
	first := New(coord, "node-a", 50*time.Millisecond)
	second := New(coord, "node-b", 50*time.Millisecond)

	firstElected := make(chan struct{})
	first.SetCallbacks(func(ctx context.Context) { close(firstElected); <-ctx.Done() }, func() {})
	second.SetCallbacks(func(ctx context.Context) { t.Error("second node should not be elected while first holds the lease") }, func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go first.Run(ctx)
	go second.Run(ctx)

	select {
	case <-firstElected:
	case <-time.After(time.Second):
		t.Fatal("first node never became leader")
	}

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	if second.IsLeader() {
		t.Fatal("second node must not acquire the lease while the first holds it")
	}
}
