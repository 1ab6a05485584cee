// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

const jobColumns = `id, status, original_query, parsed_queries, progress, error_message,
	failed_stage, created_at, updated_at, completed_at, request`

// CreateJob inserts a new job row. A job without an id gets a fresh UUID;
// zero timestamps are set to now.
func (s *Store) CreateJob(ctx context.Context, job *types.IngestJob) error {
	if job.ID == "" {
		job.ID = newID()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = types.JobPending
	}
	if job.Progress.Stages == nil {
		job.Progress = types.NewProgress()
	}

	if job.Request.Query == "" {
		job.Request.Query = job.OriginalQuery
	}

	queries, progress, err := encodeJob(job)
	if err != nil {
		return err
	}
	req, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return s.withRetry(ctx, "create job", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO ingest_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, string(job.Status), job.OriginalQuery, queries, progress,
			nullString(job.ErrorMessage), nullString(string(job.FailedStage)),
			formatTime(job.CreatedAt), formatTime(job.UpdatedAt), nullTime(job.CompletedAt), string(req))
		return err
	})
}

// UpdateJob persists the mutable fields of job: status, parsed queries,
// progress, error fields, and completion time. It refreshes UpdatedAt. The
// request is fixed at creation.
func (s *Store) UpdateJob(ctx context.Context, job *types.IngestJob) error {
	job.UpdatedAt = time.Now().UTC()
	queries, progress, err := encodeJob(job)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "update job", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE ingest_jobs SET status = ?, parsed_queries = ?, progress = ?, error_message = ?,
				failed_stage = ?, updated_at = ?, completed_at = ?
			 WHERE id = ?`,
			string(job.Status), queries, progress, nullString(job.ErrorMessage),
			nullString(string(job.FailedStage)), formatTime(job.UpdatedAt), nullTime(job.CompletedAt),
			job.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
		}
		return nil
	})
}

// GetJob loads one job.
func (s *Store) GetJob(ctx context.Context, id string) (*types.IngestJob, error) {
	var job *types.IngestJob
	err := s.withRetry(ctx, "get job", func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = ?`, id)
		j, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		job = j
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first. limit <= 0 returns
// every job.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*types.IngestJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingest_jobs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryJobs(ctx, "list jobs", q, args)
}

// NonTerminalJobs returns jobs that are neither completed nor failed,
// oldest first.
func (s *Store) NonTerminalJobs(ctx context.Context) ([]*types.IngestJob, error) {
	return s.queryJobs(ctx, "list unfinished jobs",
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE status NOT IN (?, ?) ORDER BY created_at, rowid`,
		[]any{string(types.JobCompleted), string(types.JobFailed)})
}

func (s *Store) queryJobs(ctx context.Context, op, q string, args []any) ([]*types.IngestJob, error) {
	var jobs []*types.IngestJob
	err := s.withRetry(ctx, op, func() error {
		jobs = jobs[:0]
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func encodeJob(job *types.IngestJob) (queries, progress string, err error) {
	q, err := json.Marshal(job.ParsedQueries)
	if err != nil {
		return "", "", fmt.Errorf("encoding parsed queries: %w", err)
	}
	p, err := json.Marshal(job.Progress)
	if err != nil {
		return "", "", fmt.Errorf("encoding progress: %w", err)
	}
	return string(q), string(p), nil
}

func scanJob(row scanner) (*types.IngestJob, error) {
	var (
		j                         types.IngestJob
		status                    string
		queries, progress, errMsg sql.NullString
		failedStage, completed    sql.NullString
		req                       sql.NullString
		created, updated          string
	)
	err := row.Scan(&j.ID, &status, &j.OriginalQuery, &queries, &progress, &errMsg,
		&failedStage, &created, &updated, &completed, &req)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	j.Status = types.JobStatus(status)
	j.ParsedQueries = unmarshalList(queries)
	if progress.Valid && progress.String != "" {
		if err := json.Unmarshal([]byte(progress.String), &j.Progress); err != nil {
			return nil, fmt.Errorf("decoding progress of job %s: %w", j.ID, err)
		}
	} else {
		j.Progress = types.NewProgress()
	}
	if req.Valid && req.String != "" {
		if err := json.Unmarshal([]byte(req.String), &j.Request); err != nil {
			return nil, fmt.Errorf("decoding request of job %s: %w", j.ID, err)
		}
	}
	if j.Request.Query == "" {
		j.Request.Query = j.OriginalQuery
	}
	j.ErrorMessage = errMsg.String
	j.FailedStage = types.JobStatus(failedStage.String)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if completed.Valid {
		t := parseTime(completed.String)
		j.CompletedAt = &t
	}
	return &j, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
