package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/job"
)

const jobColumns = `
	id, resource_id, version, type, description, parameters, status, percentage,
	reason, is_cleaned, priority, expiration_date, internal_id, producer_name,
	product_name, product_type, additional_identifiers, task_count,
	completed_tasks, failed_tasks, expired_tasks, pending_tasks,
	in_progress_tasks, aborted_tasks, created_at, updated_at`

// CreateJob persists a new job together with any tasks it carries, in a
// single transaction.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = jobmanager.StatusPending
	}
	if j.Priority == 0 {
		j.Priority = job.DefaultPriority
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: begin create job: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (
			id, resource_id, version, type, description, parameters, status,
			percentage, reason, is_cleaned, priority, expiration_date,
			internal_id, producer_name, product_name, product_type,
			additional_identifiers
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17
		)
		RETURNING created_at, updated_at`,
		j.ID, j.ResourceID, j.Version, j.Type, j.Description, j.Parameters,
		string(j.Status), j.Percentage, j.Reason, j.IsCleaned, j.Priority,
		j.ExpirationDate, j.InternalID, j.ProducerName, j.ProductName,
		j.ProductType, j.AdditionalIdentifiers,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isConstraint(err, pgExclusionViolation, constraintActiveJob) {
			s.logger.Warn("active job already exists",
				"resourceId", j.ResourceID, "version", j.Version, "type", j.Type)
			return jobmanager.ErrActiveJobExists
		}
		return fmt.Errorf("jobmanager/postgres: create job: %w", err)
	}

	for _, t := range j.Tasks {
		t.JobID = j.ID
		if createErr := createTask(ctx, tx, t); createErr != nil {
			return createErr
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobmanager/postgres: commit create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id, optionally with its tasks.
func (s *Store) GetJob(ctx context.Context, jobID string, withTasks bool) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobmanager.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobmanager/postgres: get job: %w", err)
	}

	if withTasks {
		j.Tasks, err = s.ListTasks(ctx, jobID)
		if err != nil {
			return nil, err
		}
	}
	return j, nil
}

// FindJobs returns jobs matching the filter.
func (s *Store) FindJobs(ctx context.Context, f job.Filter) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	addArg := func(clause string, value any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if f.ResourceID != "" {
		addArg(" AND resource_id = $%d", f.ResourceID)
	}
	if f.Version != "" {
		addArg(" AND version = $%d", f.Version)
	}
	if f.Type != "" {
		addArg(" AND type = $%d", f.Type)
	}
	if f.ProductType != "" {
		addArg(" AND product_type = $%d", f.ProductType)
	}
	if f.Status != "" {
		addArg(" AND status = $%d", string(f.Status))
	}
	if f.IsCleaned != nil {
		addArg(" AND is_cleaned = $%d", *f.IsCleaned)
	}
	if f.FromDate != nil {
		addArg(" AND updated_at >= $%d", *f.FromDate)
	}
	if f.TillDate != nil {
		addArg(" AND updated_at <= $%d", *f.TillDate)
	}
	if len(f.Parameters) > 0 {
		addArg(" AND parameters @> $%d", f.Parameters)
	}

	query += " ORDER BY created_at ASC"

	if f.Limit > 0 {
		addArg(" LIMIT $%d", f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: find jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}

	if f.WithTasks {
		for _, j := range jobs {
			j.Tasks, err = s.ListTasks(ctx, j.ID)
			if err != nil {
				return nil, err
			}
		}
	}
	return jobs, nil
}

// UpdateJob applies a partial update to an existing job.
func (s *Store) UpdateJob(ctx context.Context, u job.Update) error {
	return s.updateJob(ctx, s.pool, u)
}

func (s *Store) updateJob(ctx context.Context, q dbtx, u job.Update) error {
	query := `UPDATE jobs SET updated_at = NOW()`
	args := []any{}
	argIdx := 1

	set := func(column string, value any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Reason != nil {
		set("reason", *u.Reason)
	}
	if u.Percentage != nil {
		set("percentage", *u.Percentage)
	}
	if u.IsCleaned != nil {
		set("is_cleaned", *u.IsCleaned)
	}
	if u.Priority != nil {
		set("priority", *u.Priority)
	}
	if u.ExpirationDate != nil {
		set("expiration_date", *u.ExpirationDate)
	}
	if len(u.Parameters) > 0 {
		set("parameters", u.Parameters)
	}
	if u.InternalID != nil {
		set("internal_id", *u.InternalID)
	}
	if u.ProducerName != nil {
		set("producer_name", *u.ProducerName)
	}
	if u.ProductName != nil {
		set("product_name", *u.ProductName)
	}
	if u.ProductType != nil {
		set("product_type", *u.ProductType)
	}

	query += fmt.Sprintf(" WHERE id = $%d", argIdx)
	args = append(args, u.JobID)

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		if isConstraint(err, pgExclusionViolation, constraintActiveJob) {
			return jobmanager.ErrActiveJobExists
		}
		return fmt.Errorf("jobmanager/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobmanager.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job. Jobs that still own tasks are rejected.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		if isConstraint(err, pgForeignKeyViolation, constraintTaskJobFK) {
			s.logger.Info("refusing to delete job that still has tasks", "jobId", jobID)
			return jobmanager.ErrJobHasTasks
		}
		return fmt.Errorf("jobmanager/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobmanager.ErrJobNotFound
	}
	return nil
}

// JobExists reports whether the job id is known.
func (s *Store) JobExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("jobmanager/postgres: job exists: %w", err)
	}
	return exists, nil
}

// IsResettable reports whether the job can be reset.
func (s *Store) IsResettable(ctx context.Context, jobID string) (bool, error) {
	return isResettable(ctx, s.pool, jobID)
}

// isResettable runs the resettability check on the given handle so ResetJob
// can re-validate inside its own transaction.
func isResettable(ctx context.Context, q dbtx, jobID string) (bool, error) {
	var resettableTasks, nonResettableTasks int
	err := q.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE t.status IN ('Failed', 'Expired', 'Aborted')) AS resettable_tasks,
			count(*) FILTER (WHERE t.resettable = FALSE) AS non_resettable_tasks
		FROM jobs j
		INNER JOIN tasks t ON t.job_id = j.id
		WHERE j.id = $1
		  AND j.status IN ('Failed', 'Expired', 'Aborted')
		  AND j.is_cleaned = FALSE`,
		jobID,
	).Scan(&resettableTasks, &nonResettableTasks)
	if err != nil {
		return false, fmt.Errorf("jobmanager/postgres: is resettable: %w", err)
	}
	// A missing, cleaned, taskless, or still-live job yields zero candidate
	// tasks and is simply not resettable. A single resettable=false task
	// vetoes the whole job.
	return resettableTasks > 0 && nonResettableTasks == 0, nil
}

// SweepExpired transitions overdue active jobs to Expired, then the live
// tasks of Expired jobs. Jobs first, in one transaction, so the task
// predicate sees the job sweep's results.
func (s *Store) SweepExpired(ctx context.Context) (job.SweepResult, error) {
	var res job.SweepResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("jobmanager/postgres: begin sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'Expired', updated_at = NOW()
		WHERE expiration_date < NOW()
		  AND status IN ('Pending', 'In-Progress')`)
	if err != nil {
		return res, fmt.Errorf("jobmanager/postgres: sweep expired jobs: %w", err)
	}
	res.ExpiredJobs = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		UPDATE tasks
		SET status = 'Expired', updated_at = NOW()
		WHERE status IN ('Pending', 'In-Progress')
		  AND job_id IN (SELECT id FROM jobs WHERE status = 'Expired')`)
	if err != nil {
		return res, fmt.Errorf("jobmanager/postgres: sweep expired tasks: %w", err)
	}
	res.ExpiredTasks = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("jobmanager/postgres: commit sweep: %w", err)
	}

	if res.ExpiredJobs > 0 || res.ExpiredTasks > 0 {
		s.logger.Info("expiration sweep moved rows",
			"expiredJobs", res.ExpiredJobs, "expiredTasks", res.ExpiredTasks)
	}
	return res, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		statusStr string
	)
	err := row.Scan(
		&j.ID, &j.ResourceID, &j.Version, &j.Type, &j.Description,
		&j.Parameters, &statusStr, &j.Percentage, &j.Reason, &j.IsCleaned,
		&j.Priority, &j.ExpirationDate, &j.InternalID, &j.ProducerName,
		&j.ProductName, &j.ProductType, &j.AdditionalIdentifiers,
		&j.TaskCount, &j.CompletedTasks, &j.FailedTasks, &j.ExpiredTasks,
		&j.PendingTasks, &j.InProgressTasks, &j.AbortedTasks,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = jobmanager.Status(statusStr)
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobmanager/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}

