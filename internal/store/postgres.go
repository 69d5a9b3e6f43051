package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meilidex/searchcore/internal/tasks"
)

// PostgresStore implements TaskStore against a Postgres `tasks` table:
//
//	CREATE TABLE tasks (
//	    id               BIGINT PRIMARY KEY,
//	    index_uid        TEXT NOT NULL,
//	    content_kind     TEXT NOT NULL,
//	    documents_count  INT NOT NULL DEFAULT 0,
//	    merge_strategy   SMALLINT NOT NULL DEFAULT 0,
//	    events           JSONB NOT NULL DEFAULT '[]'
//	);
//
// Ids are assigned by a sequence upstream of this package (outside the
// scheduler's concern); this store only ever reads and appends events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a tuned connection pool against connString.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 50
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanTask(row pgx.Row) (tasks.Task, error) {
	var t tasks.Task
	var eventsJSON []byte
	var mergeStrategy int16

	if err := row.Scan(&t.ID, &t.IndexUID, &t.Content.Kind, &t.Content.DocumentsCount, &mergeStrategy, &eventsJSON); err != nil {
		return tasks.Task{}, err
	}
	t.Content.MergeStrategy = tasks.MergeStrategy(mergeStrategy)
	if err := json.Unmarshal(eventsJSON, &t.Events); err != nil {
		return tasks.Task{}, err
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, afterID *tasks.ID, filter *Filter, limit *int) ([]tasks.Task, error) {
	threshold := tasks.ID(0)
	if afterID != nil {
		threshold = *afterID
	}

	query := `
		SELECT id, index_uid, content_kind, documents_count, merge_strategy, events
		FROM tasks WHERE id >= $1 ORDER BY id DESC
	`
	rows, err := s.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
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
	return out, rows.Err()
}

func (s *PostgresStore) GetPendingTasks(ctx context.Context, ids []tasks.ID) ([]tasks.ID, []tasks.Task, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	query := `
		SELECT id, index_uid, content_kind, documents_count, merge_strategy, events
		FROM tasks WHERE id = ANY($1) ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var outIDs []tasks.ID
	var outTasks []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, nil, err
		}
		if t.IsFinished() {
			continue
		}
		outIDs = append(outIDs, t.ID)
		outTasks = append(outTasks, t)
	}
	return outIDs, outTasks, rows.Err()
}

func (s *PostgresStore) UpdateTasks(ctx context.Context, batch []tasks.Task) ([]tasks.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]tasks.Task, 0, len(batch))
	for _, t := range batch {
		eventsJSON, err := json.Marshal(t.Events)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `UPDATE tasks SET events = $1 WHERE id = $2`, eventsJSON, t.ID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id tasks.ID, filter *Filter) (tasks.Task, error) {
	query := `
		SELECT id, index_uid, content_kind, documents_count, merge_strategy, events
		FROM tasks WHERE id = $1
	`
	t, err := scanTask(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return tasks.Task{}, ErrNotFound
	}
	if err != nil {
		return tasks.Task{}, err
	}
	if filter != nil && !filter.matches(&t) {
		return tasks.Task{}, ErrNotFound
	}
	return t, nil
}
