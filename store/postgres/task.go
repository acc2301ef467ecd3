package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/task"
)

const taskColumns = `
	id, job_id, type, description, parameters, status, percentage, reason,
	attempts, resettable, block_duplication, created_at, updated_at`

// CreateTask persists a single task.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	return createTask(ctx, s.pool, t)
}

// createTask inserts one task on the given handle so job creation can reuse
// it inside its transaction. Constraint violations are mapped here, once.
func createTask(ctx context.Context, q dbtx, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = jobmanager.StatusPending
	}

	err := q.QueryRow(ctx, `
		INSERT INTO tasks (
			id, job_id, type, description, parameters, status, percentage,
			reason, attempts, resettable, block_duplication
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11
		)
		RETURNING created_at, updated_at`,
		t.ID, t.JobID, t.Type, t.Description, t.Parameters, string(t.Status),
		t.Percentage, t.Reason, t.Attempts, t.Resettable, t.BlockDuplication,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isConstraint(err, pgForeignKeyViolation, constraintTaskJobFK) {
			return jobmanager.ErrJobNotFound
		}
		if isConstraint(err, pgExclusionViolation, constraintTaskJobType) {
			return fmt.Errorf("%w: type %q for job %s", jobmanager.ErrDuplicateTask, t.Type, t.JobID)
		}
		return fmt.Errorf("jobmanager/postgres: create task: %w", err)
	}
	return nil
}

// CreateTasks persists a batch of tasks for one job. Duplicate-task
// conflicts are collected instead of aborting the batch; any other failure
// aborts and propagates.
func (s *Store) CreateTasks(ctx context.Context, ts []*task.Task) (*task.BatchResult, error) {
	res := &task.BatchResult{IDs: []string{}}
	for _, t := range ts {
		err := createTask(ctx, s.pool, t)
		if err != nil {
			if errors.Is(err, jobmanager.ErrDuplicateTask) {
				res.Errors = append(res.Errors, err.Error())
				continue
			}
			s.logger.Error("batched task creation failed",
				"jobId", t.JobID, "taskType", t.Type, "error", err)
			return nil, err
		}
		res.IDs = append(res.IDs, t.ID)
	}
	return res, nil
}

// GetTask retrieves a task scoped to its job.
func (s *Store) GetTask(ctx context.Context, jobID, taskID string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND job_id = $2`,
		taskID, jobID)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobmanager.ErrTaskNotFound
		}
		return nil, fmt.Errorf("jobmanager/postgres: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks of a job, oldest first.
func (s *Store) ListTasks(ctx context.Context, jobID string) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = $1 ORDER BY created_at ASC`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// FindTasks returns tasks matching the filter.
func (s *Store) FindTasks(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}
	argIdx := 1

	addArg := func(clause string, value any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	if f.JobID != "" {
		addArg(" AND job_id = $%d", f.JobID)
	}
	if f.Type != "" {
		addArg(" AND type = $%d", f.Type)
	}
	if f.Status != "" {
		addArg(" AND status = $%d", string(f.Status))
	}
	if f.Resettable != nil {
		addArg(" AND resettable = $%d", *f.Resettable)
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: find tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// UpdateTask applies a partial update to an existing task.
func (s *Store) UpdateTask(ctx context.Context, u task.Update) error {
	query := `UPDATE tasks SET updated_at = NOW()`
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
	if len(u.Parameters) > 0 {
		set("parameters", u.Parameters)
	}
	if u.Percentage != nil {
		set("percentage", *u.Percentage)
	}
	if u.Reason != nil {
		set("reason", *u.Reason)
	}
	if u.Attempts != nil {
		set("attempts", *u.Attempts)
	}

	query += fmt.Sprintf(" WHERE id = $%d AND job_id = $%d", argIdx, argIdx+1)
	args = append(args, u.TaskID, u.JobID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobmanager.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task scoped to its job.
func (s *Store) DeleteTask(ctx context.Context, jobID, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND job_id = $2`, taskID, jobID)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobmanager.ErrTaskNotFound
	}
	return nil
}

// TaskExists reports whether the (job, task) pair is known.
func (s *Store) TaskExists(ctx context.Context, jobID, taskID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND job_id = $2)`,
		taskID, jobID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("jobmanager/postgres: task exists: %w", err)
	}
	return exists, nil
}

// CountByStatus counts a job's tasks in the given status.
func (s *Store) CountByStatus(ctx context.Context, jobID string, status jobmanager.Status) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tasks WHERE job_id = $1 AND status = $2`,
		jobID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("jobmanager/postgres: count tasks by status: %w", err)
	}
	return count, nil
}

// StatusSummary aggregates a job's task progress.
func (s *Store) StatusSummary(ctx context.Context, jobID string) (*task.StatusSummary, error) {
	var (
		sum   task.StatusSummary
		total int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			j.resource_id,
			j.version,
			count(t.id) AS total,
			count(t.id) FILTER (WHERE t.status = 'Completed') AS completed,
			count(t.id) FILTER (WHERE t.status = 'Failed') AS failed
		FROM jobs j
		LEFT JOIN tasks t ON t.job_id = j.id
		WHERE j.id = $1
		GROUP BY j.resource_id, j.version`,
		jobID,
	).Scan(&sum.ResourceID, &sum.ResourceVersion, &total, &sum.CompletedCount, &sum.FailedCount)
	if err != nil {
		if isNoRows(err) {
			return nil, jobmanager.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobmanager/postgres: task status summary: %w", err)
	}
	sum.AllCompleted = total > 0 && total == sum.CompletedCount
	return &sum, nil
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		statusStr string
	)
	err := row.Scan(
		&t.ID, &t.JobID, &t.Type, &t.Description, &t.Parameters, &statusStr,
		&t.Percentage, &t.Reason, &t.Attempts, &t.Resettable,
		&t.BlockDuplication, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = jobmanager.Status(statusStr)
	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("jobmanager/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
