package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"venuebook/internal/models"
)

const jobColumns = `id, booking_id, job_type, run_at, status, attempts, last_error, completed_at, created_at, updated_at`

// Job timestamps are stored at second precision in UTC so that text
// comparison of run_at matches time order.
func jobTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (db *DB) EnqueueJob(ctx context.Context, job *models.ScheduledJob) error {
	now := jobTime(time.Now())
	job.RunAt = jobTime(job.RunAt)
	if job.Status == "" {
		job.Status = models.JobPending
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (booking_id, job_type, run_at, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		nullInt64(job.BookingID), string(job.Type), job.RunAt, string(job.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.CreatedAt, job.UpdatedAt = now, now
	job.ID, err = res.LastInsertId()
	return err
}

// EnqueueJobOnce inserts in a single statement so concurrent callers cannot
// both pass the existence check.
func (db *DB) EnqueueJobOnce(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	if job.BookingID == nil {
		return false, errors.New("enqueue once requires a booking id")
	}
	now := jobTime(time.Now())
	job.RunAt = jobTime(job.RunAt)
	job.Status = models.JobPending

	res, err := db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (booking_id, job_type, run_at, status, attempts, created_at, updated_at)
		SELECT ?, ?, ?, 'pending', 0, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM scheduled_jobs
			WHERE booking_id = ? AND job_type = ? AND status IN ('pending', 'completed')
		)`,
		*job.BookingID, string(job.Type), job.RunAt, now, now,
		*job.BookingID, string(job.Type),
	)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	job.CreatedAt, job.UpdatedAt = now, now
	job.ID, err = res.LastInsertId()
	return true, err
}

func (db *DB) GetJob(ctx context.Context, id int64) (*models.ScheduledJob, error) {
	row := db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, models.ErrNotFound)
	}
	return job, err
}

func (db *DB) ListJobs(ctx context.Context, f models.JobFilter) ([]models.ScheduledJob, error) {
	var (
		where []string
		args  []any
	)
	if f.BookingID != nil {
		where = append(where, "booking_id = ?")
		args = append(args, *f.BookingID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "job_type = ?")
		args = append(args, string(f.Type))
	}
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY run_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return db.queryJobs(ctx, query, args...)
}

// DueJobs selects pending jobs with run_at <= now and budget left, oldest first.
func (db *DB) DueJobs(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.ScheduledJob, error) {
	return db.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE status = 'pending' AND run_at <= ? AND attempts < ?
		ORDER BY run_at ASC, id ASC
		LIMIT ?`,
		jobTime(now), maxAttempts, limit,
	)
}

// IncrementJobAttempts is a single conditional UPDATE, so two processors
// racing on the same job can never push attempts past maxAttempts.
func (db *DB) IncrementJobAttempts(ctx context.Context, id int64, maxAttempts int, now time.Time) (int, error) {
	var attempts int
	err := db.QueryRowContext(ctx, `
		UPDATE scheduled_jobs SET attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending' AND attempts < ?
		RETURNING attempts`,
		jobTime(now), id, maxAttempts,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("job %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment attempts for job %d: %w", id, err)
	}
	return attempts, nil
}

// FailExhaustedJobs fails pending jobs that reached maxAttempts without a
// recorded outcome and returns the rows it changed.
func (db *DB) FailExhaustedJobs(ctx context.Context, maxAttempts int, message string, now time.Time) ([]models.ScheduledJob, error) {
	jobs, err := db.queryJobs(ctx, `
		UPDATE scheduled_jobs SET status = 'failed', last_error = ?, updated_at = ?
		WHERE status = 'pending' AND attempts >= ?
		RETURNING `+jobColumns,
		message, jobTime(now), maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("fail exhausted jobs: %w", err)
	}
	return jobs, nil
}

// CompleteJob marks a job completed; note is kept in last_error for moot outcomes.
func (db *DB) CompleteJob(ctx context.Context, id int64, note string, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = 'completed', completed_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		jobTime(now), nullString(note), jobTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// RecordJobError stores the failure message and, if terminal, fails the job.
func (db *DB) RecordJobError(ctx context.Context, id int64, message string, terminal bool, now time.Time) error {
	status := models.JobPending
	if terminal {
		status = models.JobFailed
	}
	_, err := db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET last_error = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		message, string(status), jobTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("record error for job %d: %w", id, err)
	}
	return nil
}

// RescheduleJob moves a pending job.
func (db *DB) RescheduleJob(ctx context.Context, id int64, runAt, now time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET run_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		jobTime(runAt), jobTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("reschedule job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending job %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// RequeueJob resets a failed job with a fresh retry budget.
func (db *DB) RequeueJob(ctx context.Context, id int64, runAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = 'pending', attempts = 0, last_error = NULL, run_at = ?, updated_at = ?
		WHERE id = ? AND status = 'failed'`,
		jobTime(runAt), jobTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed job %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// CancelJobs cancels pending and failed jobs of a booking; completed ones stay.
func (db *DB) CancelJobs(ctx context.Context, bookingID int64, now time.Time) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = 'cancelled', updated_at = ?
		WHERE booking_id = ? AND status IN ('pending', 'failed')`,
		jobTime(now), bookingID,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs for booking %d: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CancelJob cancels a single pending job.
func (db *DB) CancelJob(ctx context.Context, id int64, now time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = 'cancelled', updated_at = ? WHERE id = ? AND status = 'pending'`,
		jobTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending job %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *DB) CountJobsByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scheduled_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[models.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...any) ([]models.ScheduledJob, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []models.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*models.ScheduledJob, error) {
	var (
		j           models.ScheduledJob
		bookingID   sql.NullInt64
		jobType, st string
		lastError   sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&j.ID, &bookingID, &jobType, &j.RunAt, &st, &j.Attempts,
		&lastError, &completedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if bookingID.Valid {
		id := bookingID.Int64
		j.BookingID = &id
	}
	j.Type = models.JobType(jobType)
	j.Status = models.JobStatus(st)
	j.LastError = lastError.String
	j.CompletedAt = timePtr(completedAt)
	j.RunAt = j.RunAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
