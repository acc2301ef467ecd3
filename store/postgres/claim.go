package postgres

import (
	"context"
	"fmt"
	"strings"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/task"
)

// ClaimNext atomically claims exactly one pending task for a worker.
//
// The candidate subquery orders by owning-job priority and locks the chosen
// task row with FOR UPDATE SKIP LOCKED: concurrent claimants skip rows
// already examined by another claimant instead of waiting on them, so the
// same task can never be handed to two callers and claimants never queue up
// behind each other. A read-then-write claim would reintroduce exactly that
// race. The price is weak priority ordering under contention, which is
// accepted.
//
// The job counters move transitively via the counter triggers.
func (s *Store) ClaimNext(ctx context.Context, jobType, taskType string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks
		SET status = 'In-Progress', updated_at = NOW()
		WHERE id = (
			SELECT t.id
			FROM tasks AS t
			INNER JOIN jobs AS j ON t.job_id = j.id
			WHERE t.status = 'Pending'
			  AND t.type = $1
			  AND j.type = $2
			ORDER BY j.priority DESC, t.created_at ASC
			LIMIT 1
			FOR UPDATE OF t SKIP LOCKED
		)
		RETURNING `+taskColumns,
		taskType, jobType,
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, jobmanager.ErrNoPendingTasks
		}
		return nil, fmt.Errorf("jobmanager/postgres: claim next task: %w", err)
	}

	s.logger.Info("claimed task", "taskId", t.ID, "jobId", t.JobID, "taskType", taskType, "jobType", jobType)
	return t, nil
}

// FindInactive returns ids of In-Progress tasks whose last update is older
// than the threshold. It mutates nothing: liveness confirmation and the
// release decision are separate steps, because a stale timestamp alone does
// not prove the worker is dead.
func (s *Store) FindInactive(ctx context.Context, f task.InactiveFilter) ([]string, error) {
	query := `
		SELECT t.id
		FROM tasks AS t
		INNER JOIN jobs AS j ON t.job_id = j.id
		WHERE t.status = 'In-Progress'
		  AND t.updated_at < NOW() - $1::interval`
	args := []any{f.InactiveFor.String()}
	argIdx := 2

	if len(f.Types) > 0 {
		pairs := make([]string, 0, len(f.Types))
		for _, p := range f.Types {
			pairs = append(pairs,
				fmt.Sprintf("(t.type = $%d AND j.type = $%d)", argIdx, argIdx+1))
			args = append(args, p.TaskType, p.JobType)
			argIdx += 2
		}
		query += " AND (" + strings.Join(pairs, " OR ") + ")"
	}
	for _, p := range f.IgnoreTypes {
		query += fmt.Sprintf(" AND NOT (t.type = $%d AND j.type = $%d)", argIdx, argIdx+1)
		args = append(args, p.TaskType, p.JobType)
		argIdx += 2
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: find inactive tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("jobmanager/postgres: scan inactive task id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: iterate inactive task ids: %w", err)
	}
	return ids, nil
}

// ReleaseInactive recovers tasks abandoned by dead workers in one atomic
// statement. Tasks of still-active jobs go back to Pending; tasks of
// terminal jobs move to Aborted. Only tasks found to actually still be
// In-Progress are acted on and returned, which makes the operation
// idempotent under concurrent releases.
func (s *Store) ReleaseInactive(ctx context.Context, taskIDs []string, raiseAttempts bool) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE tasks AS t
		SET status = CASE
				WHEN j.status IN ('Pending', 'In-Progress') THEN 'Pending'::operation_status
				ELSE 'Aborted'::operation_status
			END,
			attempts = t.attempts + CASE WHEN $2 THEN 1 ELSE 0 END,
			updated_at = NOW()
		FROM jobs AS j
		WHERE t.job_id = j.id
		  AND t.id = ANY($1)
		  AND t.status = 'In-Progress'
		RETURNING t.id`,
		taskIDs, raiseAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: release inactive tasks: %w", err)
	}
	defer rows.Close()

	var released []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("jobmanager/postgres: scan released task id: %w", scanErr)
		}
		released = append(released, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobmanager/postgres: iterate released task ids: %w", err)
	}

	if len(released) > 0 {
		s.logger.Info("released inactive tasks", "count", len(released), "raiseAttempts", raiseAttempts)
	}
	return released, nil
}
