// Package store persists jobs in SQLite.
//
// Queryable fields live in their own columns; the negotiation records
// (proposals, slots, estimate, cancellation and completion state) travel
// in a single JSON body column. The version column is the authoritative
// optimistic-concurrency token and overrides whatever the body carries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fieldops/dispatch/errors"
	"github.com/fieldops/dispatch/job"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	status        TEXT NOT NULL,
	contractor_id TEXT NOT NULL DEFAULT '',
	customer_id   TEXT NOT NULL DEFAULT '',
	scheduled_at  TEXT,
	body          TEXT NOT NULL,
	version       INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_contractor_status ON jobs (contractor_id, status);
CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_at ON jobs (scheduled_at);
`

// JobStore handles persistence of scheduler jobs.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a store over an open database, bootstrapping the
// schema if it is not present yet.
func NewJobStore(db *sql.DB) (*JobStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.WrapUnavailable(err, "failed to initialize jobs schema")
	}
	return &JobStore{db: db}, nil
}

// Create inserts a new job. The job keeps whatever version it carries;
// NewJob starts at 1.
func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	if !job.IsValidStatus(string(j.Status)) {
		return errors.NewValidationError("unknown status %q", j.Status)
	}
	body, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job")
	}

	query := `
		INSERT INTO jobs (
			id, title, status, contractor_id, customer_id,
			scheduled_at, body, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		j.ID,
		j.Title,
		j.Status,
		j.ContractorID,
		j.CustomerID,
		scheduledColumn(j),
		string(body),
		j.Version,
		j.CreatedAt.Time.UTC().Format(time.RFC3339Nano),
		j.UpdatedAt.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.WrapUnavailable(err, "failed to create job")
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	query := `SELECT body, version FROM jobs WHERE id = ?`

	var body string
	var version int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.WrapUnavailable(err, "failed to get job")
	}

	return unmarshalJob(body, version)
}

// Update writes the job back if and only if the stored version still
// equals expectedVersion. On success the job's Version is advanced to
// expectedVersion+1, in memory and in the row.
func (s *JobStore) Update(ctx context.Context, j *job.Job, expectedVersion int64) error {
	if !job.IsValidStatus(string(j.Status)) {
		return errors.NewValidationError("unknown status %q", j.Status)
	}
	next := expectedVersion + 1
	j.Version = next
	body, err := json.Marshal(j)
	if err != nil {
		j.Version = expectedVersion
		return errors.Wrap(err, "failed to marshal job")
	}

	query := `
		UPDATE jobs
		SET title = ?,
		    status = ?,
		    contractor_id = ?,
		    customer_id = ?,
		    scheduled_at = ?,
		    body = ?,
		    version = ?,
		    updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		j.Title,
		j.Status,
		j.ContractorID,
		j.CustomerID,
		scheduledColumn(j),
		string(body),
		next,
		j.UpdatedAt.Time.UTC().Format(time.RFC3339Nano),
		j.ID,
		expectedVersion,
	)
	if err != nil {
		j.Version = expectedVersion
		return errors.WrapUnavailable(err, "failed to update job")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		j.Version = expectedVersion
		return errors.WrapUnavailable(err, "failed to get rows affected")
	}
	if rows == 0 {
		j.Version = expectedVersion
		var exists int
		checkErr := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, j.ID).Scan(&exists)
		if errors.Is(checkErr, sql.ErrNoRows) {
			return errors.NewNotFoundError("job not found: %s", j.ID)
		}
		if checkErr != nil {
			return errors.WrapUnavailable(checkErr, "failed to check job existence")
		}
		return errors.Wrapf(errors.ErrConflict, "job %s changed since version %d was read", j.ID, expectedVersion)
	}
	return nil
}

// ListActiveByProvider returns the provider's non-terminal jobs, oldest
// first. Jobs with no contractor yet are excluded.
func (s *JobStore) ListActiveByProvider(ctx context.Context, providerID string) ([]*job.Job, error) {
	query := `
		SELECT body, version FROM jobs
		WHERE contractor_id = ?
		  AND status NOT IN (?, ?)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, providerID, job.StatusCompleted, job.StatusCancelled)
	if err != nil {
		return nil, errors.WrapUnavailable(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

// ListByStatus returns jobs in the given status, newest first.
func (s *JobStore) ListByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	query := `
		SELECT body, version FROM jobs
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, errors.WrapUnavailable(err, "failed to list jobs by status")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs by status")
}

// ListAll returns every job, newest first.
func (s *JobStore) ListAll(ctx context.Context, limit int) ([]*job.Job, error) {
	query := `SELECT body, version FROM jobs ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.WrapUnavailable(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// Delete removes a job from the database.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return errors.WrapUnavailable(err, "failed to delete job")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WrapUnavailable(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}
	return nil
}

func scanJobs(rows *sql.Rows, context string) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		var body string
		var version int64
		if err := rows.Scan(&body, &version); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		j, err := unmarshalJob(body, version)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}
	return jobs, nil
}

func unmarshalJob(body string, version int64) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal job")
	}
	j.Version = version
	return &j, nil
}

func scheduledColumn(j *job.Job) sql.NullString {
	if !j.ScheduledTime.IsSet() {
		return sql.NullString{}
	}
	return sql.NullString{
		String: j.ScheduledTime.Time.UTC().Format(time.RFC3339Nano),
		Valid:  true,
	}
}
