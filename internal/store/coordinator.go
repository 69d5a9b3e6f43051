package store

import (
	"context"
	"time"
)

// Coordinator is the distributed-lease primitive the scheduler's
// leader election uses to ensure only one process drives the
// UpdateLoop against a shared store at a time: just the three lease
// operations coordination.Elector needs, no lock/epoch bookkeeping
// beyond that.
type Coordinator interface {
	// AcquireLease attempts to take the lease at key with the given
	// value (opaque owner metadata), succeeding only if unheld.
	AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// RenewLease extends the lease's ttl if it is currently held with
	// exactly this value.
	RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// ReleaseLease releases the lease if held with exactly this value.
	ReleaseLease(ctx context.Context, key, value string) error
}

// AcquireLease implements Coordinator for RedisStore via SET NX PX.
func (s *RedisStore) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	defer observe("redis", "acquire_lease", time.Now())
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

const renewLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RenewLease implements Coordinator for RedisStore via a Lua script
// that only extends the TTL if the caller still owns the lease
// (compare-and-expire).
func (s *RedisStore) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	defer observe("redis", "renew_lease", time.Now())
	res, err := s.client.Eval(ctx, renewLeaseScript, []string{key}, value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// ReleaseLease implements Coordinator for RedisStore via a compare-
// and-delete Lua script.
func (s *RedisStore) ReleaseLease(ctx context.Context, key, value string) error {
	defer observe("redis", "release_lease", time.Now())
	_, err := s.client.Eval(ctx, releaseLeaseScript, []string{key}, value).Result()
	return err
}
