package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/meilidex/searchcore/internal/observability"
	"github.com/meilidex/searchcore/internal/tasks"
	"github.com/redis/go-redis/v9"
)

const (
	redisTasksZSet = "searchcore:tasks:by_id"
	// NotifyChannel is the Pub/Sub channel used as the cross-process
	// fan-out for Scheduler.Notify: a task registered by one API
	// replica wakes whichever process currently runs the UpdateLoop.
	NotifyChannel = "searchcore:notify"
)

// RedisStore implements TaskStore against Redis: a sorted set of task
// ids scored by id for range queries, one hash-free JSON blob per task
// for content+events, and Pub/Sub for cross-process notify. Every
// TaskStore and lease call is wrapped with a latency histogram
// observation; Notify, Subscribe and PutTask are not.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Notify publishes on NotifyChannel, waking any process subscribed via
// Subscribe. This is the Redis-backed realisation of
// Scheduler.Notify's cross-process fan-out.
func (s *RedisStore) Notify(ctx context.Context) error {
	return s.client.Publish(ctx, NotifyChannel, "1").Err()
}

// Subscribe returns a channel that receives a value every time some
// process calls Notify. Closing ctx stops the subscription.
func (s *RedisStore) Subscribe(ctx context.Context) <-chan struct{} {
	sub := s.client.Subscribe(ctx, NotifyChannel)
	out := make(chan struct{}, 1)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func observe(backend, op string, start time.Time) {
	observability.StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func taskBlobKey(id tasks.ID) string {
	return fmt.Sprintf("searchcore:tasks:blob:%d", id)
}

func (s *RedisStore) ListTasks(ctx context.Context, afterID *tasks.ID, filter *Filter, limit *int) ([]tasks.Task, error) {
	defer observe("redis", "list_tasks", time.Now())

	threshold := tasks.ID(0)
	if afterID != nil {
		threshold = *afterID
	}

	ids, err := s.client.ZRevRangeByScore(ctx, redisTasksZSet, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", threshold),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []tasks.Task
	for _, idStr := range ids {
		raw, err := s.client.Get(ctx, "searchcore:tasks:blob:"+idStr).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var t tasks.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, err
		}
		if filter != nil && !filter.matches(&t) {
			continue
		}
		out = append(out, t)
		if limit != nil && len(out) >= *limit {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) GetPendingTasks(ctx context.Context, ids []tasks.ID) ([]tasks.ID, []tasks.Task, error) {
	defer observe("redis", "get_pending_tasks", time.Now())

	sorted := append([]tasks.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var outIDs []tasks.ID
	var outTasks []tasks.Task
	for _, id := range sorted {
		raw, err := s.client.Get(ctx, taskBlobKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		var t tasks.Task
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, nil, err
		}
		if t.IsFinished() {
			continue
		}
		outIDs = append(outIDs, id)
		outTasks = append(outTasks, t)
	}
	return outIDs, outTasks, nil
}

func (s *RedisStore) UpdateTasks(ctx context.Context, batch []tasks.Task) ([]tasks.Task, error) {
	defer observe("redis", "update_tasks", time.Now())

	pipe := s.client.Pipeline()
	for _, t := range batch {
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		pipe.Set(ctx, taskBlobKey(t.ID), raw, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *RedisStore) GetTask(ctx context.Context, id tasks.ID, filter *Filter) (tasks.Task, error) {
	defer observe("redis", "get_task", time.Now())

	raw, err := s.client.Get(ctx, taskBlobKey(id)).Result()
	if err == redis.Nil {
		return tasks.Task{}, ErrNotFound
	}
	if err != nil {
		return tasks.Task{}, err
	}
	var t tasks.Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return tasks.Task{}, err
	}
	if filter != nil && !filter.matches(&t) {
		return tasks.Task{}, ErrNotFound
	}
	return t, nil
}

// PutTask writes a task's full record (used by the ingestion path,
// outside the scheduler's own TaskStore contract) and indexes its id
// in the sorted set for range queries.
func (s *RedisStore) PutTask(ctx context.Context, t tasks.Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, taskBlobKey(t.ID), raw, 0)
	pipe.ZAdd(ctx, redisTasksZSet, redis.Z{Score: float64(t.ID), Member: fmt.Sprintf("%d", t.ID)})
	_, err = pipe.Exec(ctx)
	return err
}
