// Package store persists the export job ledger in SQLite. Every export
// submitted through the HTTP or MCP surfaces gets a row; progress updates
// are best-effort while the terminal transition is authoritative.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iEdric/VectorMotionPro/dbopen"
)

// Schema for the export_jobs table. Applied by Open.
const Schema = `
CREATE TABLE IF NOT EXISTS export_jobs (
	id TEXT PRIMARY KEY,
	format TEXT NOT NULL,
	settings TEXT NOT NULL DEFAULT '{}',
	state TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	mime TEXT NOT NULL DEFAULT '',
	output BLOB,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_export_jobs_state ON export_jobs(state);
CREATE INDEX IF NOT EXISTS idx_export_jobs_created ON export_jobs(created_at);
`

// Job states.
const (
	StatePending  = "pending"
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("store: job not found")

// Job is one row of the export ledger. Output is only populated by GetJob
// when the job completed.
type Job struct {
	ID        string          `json:"id"`
	Format    string          `json:"format"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	State     string          `json:"state"`
	Progress  int             `json:"progress"`
	MIME      string          `json:"mime,omitempty"`
	Output    []byte          `json:"-"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is the SQLite-backed job ledger.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the ledger database at path and applies the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return New(db, logger), nil
}

// InitSchema applies the ledger schema to an already-open database.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// New wraps an already-open database. The caller is responsible for having
// applied Schema.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a pending job with its requested settings and returns
// the generated id.
func (s *Store) CreateJob(ctx context.Context, format string, settings json.RawMessage) (string, error) {
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	id := uuid.NewString()
	now := time.Now().Unix()
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO export_jobs (id, format, settings, state, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, format, string(settings), StatePending, now, now)
	if err != nil {
		return "", fmt.Errorf("store: create job: %w", err)
	}
	return id, nil
}

// SetState moves a job to the given non-terminal state.
func (s *Store) SetState(ctx context.Context, id, state string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE export_jobs SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: set state: %w", err)
	}
	return oneRow(res)
}

// SetProgress records the latest progress percentage. Failures are logged
// and swallowed: a missed progress row must never fail an export.
func (s *Store) SetProgress(ctx context.Context, id string, pct int) {
	_, err := dbopen.Exec(ctx, s.db,
		`UPDATE export_jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		pct, time.Now().Unix(), id)
	if err != nil {
		s.logger.Warn("store: progress update dropped", "job", id, "error", err)
	}
}

// Finish marks a job complete and stores the finished blob. A job already
// in a terminal state is left untouched.
func (s *Store) Finish(ctx context.Context, id, mime string, output []byte) error {
	err := s.terminal(ctx, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`UPDATE export_jobs SET state = ?, progress = 100, mime = ?, output = ?, updated_at = ?
			 WHERE id = ?`,
			StateComplete, mime, output, time.Now().Unix(), id)
	})
	if err != nil {
		return fmt.Errorf("store: finish job: %w", err)
	}
	return nil
}

// Fail marks a job failed with the error message. No output is retained,
// and a job already in a terminal state is left untouched.
func (s *Store) Fail(ctx context.Context, id, msg string) error {
	err := s.terminal(ctx, id, func(tx *sql.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`UPDATE export_jobs SET state = ?, error = ?, output = NULL, updated_at = ?
			 WHERE id = ?`,
			StateFailed, msg, time.Now().Unix(), id)
	})
	if err != nil {
		return fmt.Errorf("store: fail job: %w", err)
	}
	return nil
}

// terminal applies a terminal transition atomically: the current state is
// observed and the update applied in one transaction, so two racing
// finishers cannot both claim the job.
func (s *Store) terminal(ctx context.Context, id string, update func(*sql.Tx) (sql.Result, error)) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM export_jobs WHERE id = ?`, id).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if state == StateComplete || state == StateFailed {
			return fmt.Errorf("job %s already %s", id, state)
		}
		res, err := update(tx)
		if err != nil {
			return err
		}
		return oneRow(res)
	})
}

// GetJob loads one job including its output blob.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, format, settings, state, progress, mime, output, error, created_at, updated_at
		 FROM export_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns the most recent jobs, newest first, without output
// blobs.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, format, settings, state, progress, mime, error, created_at, updated_at
		 FROM export_jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var j Job
		var settings string
		var created, updated int64
		if err := rows.Scan(&j.ID, &j.Format, &settings, &j.State, &j.Progress, &j.MIME,
			&j.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: list jobs: %w", err)
		}
		j.Settings = json.RawMessage(settings)
		j.CreatedAt = time.Unix(created, 0)
		j.UpdatedAt = time.Unix(updated, 0)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var settings string
	var created, updated int64
	if err := row.Scan(&j.ID, &j.Format, &settings, &j.State, &j.Progress, &j.MIME,
		&j.Output, &j.Error, &created, &updated); err != nil {
		return nil, err
	}
	j.Settings = json.RawMessage(settings)
	j.CreatedAt = time.Unix(created, 0)
	j.UpdatedAt = time.Unix(updated, 0)
	return &j, nil
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
