package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/opspulse/opspulse/internal/types"
)

// PostgresStore is the durable RunStore plus the pending AI-request queue
// consumed by the batch processing task.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL, tunes the pool and bootstraps the
// schema. The returned store owns the pool; call Close when done.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) bootstrap() error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_runs (
		id          TEXT PRIMARY KEY,
		task_name   TEXT NOT NULL,
		queue       TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL,
		message     TEXT NOT NULL,
		extra       JSONB
	);
	CREATE INDEX IF NOT EXISTS task_runs_name_started
		ON task_runs (task_name, started_at DESC);
	CREATE TABLE IF NOT EXISTS ai_requests (
		id           BIGSERIAL PRIMARY KEY,
		service      TEXT NOT NULL,
		payload      JSONB,
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		claimed_at   TIMESTAMPTZ,
		processed_at TIMESTAMPTZ
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

// Append inserts one run record.
func (s *PostgresStore) Append(ctx context.Context, run types.TaskRun) error {
	extra, err := json.Marshal(run.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, task_name, queue, started_at, finished_at, status, message, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.TaskName, string(run.Queue), run.StartedAt, run.FinishedAt,
		run.Status, run.Message, extra,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Query returns run records matching the filter, newest first.
func (s *PostgresStore) Query(ctx context.Context, filter RunFilter) ([]types.TaskRun, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TaskName != "" {
		add("task_name = $%d", filter.TaskName)
	}
	if !filter.Since.IsZero() {
		add("started_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("started_at <= $%d", filter.Until)
	}

	query := `SELECT id, task_name, queue, started_at, finished_at, status, message, extra FROM task_runs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []types.TaskRun
	for rows.Next() {
		var (
			run   types.TaskRun
			queue string
			extra []byte
		)
		if err := rows.Scan(&run.ID, &run.TaskName, &queue, &run.StartedAt,
			&run.FinishedAt, &run.Status, &run.Message, &extra); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Queue = types.Queue(queue)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &run.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal extra: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PendingRequest is a queued AI request awaiting batch processing.
type PendingRequest struct {
	ID      int64
	Service string
	Payload []byte
}

// staleClaim is how long a claimed request may sit unprocessed before it
// is handed back to the pending pool. One batch cadence is long enough
// for any healthy worker to finish its batch.
const staleClaim = 15 * time.Minute

// PendingRequests claims up to limit pending AI requests by moving them to
// the processing state in a single statement. The subselect's SKIP LOCKED
// plus the status transition make the claim atomic: two concurrent callers
// cannot receive the same rows. Claims abandoned by a crashed worker are
// re-queued once they pass the stale cutoff.
func (s *PostgresStore) PendingRequests(ctx context.Context, limit int) ([]PendingRequest, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ai_requests
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing'
		  AND claimed_at < NOW() - INTERVAL '1 second' * $1`,
		int(staleClaim.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("requeue stale claims: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE ai_requests
		SET status = 'processing', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM ai_requests
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, service, payload`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending requests: %w", err)
	}
	defer rows.Close()

	var reqs []PendingRequest
	for rows.Next() {
		var r PendingRequest
		if err := rows.Scan(&r.ID, &r.Service, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// MarkProcessed completes claimed requests. Safe to call twice for the
// same ids; already-processed rows are left alone.
func (s *PostgresStore) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE ai_requests
		SET status = 'processed', processed_at = NOW()
		WHERE id IN (%s) AND status = 'processing'`,
		strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// DB exposes the pool for connection-level health probes.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
