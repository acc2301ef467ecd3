package postgres

import (
	"context"
	"fmt"
	"time"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/job"
)

// ResetJob resumes a dead job. The whole protocol is one transaction and the
// resettability check runs inside it: a concurrent abort or cleanup between
// an earlier IsResettable call and this one must be caught here, not trusted
// away.
func (s *Store) ResetJob(ctx context.Context, jobID string, newExpiration *time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	ok, err := isResettable(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s", jobmanager.ErrJobNotResettable, jobID)
	}

	status := jobmanager.StatusInProgress
	if err := s.updateJob(ctx, tx, job.Update{
		JobID:          jobID,
		Status:         &status,
		ExpirationDate: newExpiration,
	}); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tasks
		SET status = 'Pending', reason = '', attempts = 0, percentage = 0,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND status IN ('Failed', 'Expired', 'Aborted')`,
		jobID)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: reset job tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobmanager/postgres: commit reset: %w", err)
	}

	s.logger.Info("job reset", "jobId", jobID)
	return nil
}

// AbortJob cancels a live job and its Pending tasks in one transaction.
// In-Progress tasks are deliberately left alone: they either terminate
// naturally or get swept up by the inactive-task release.
func (s *Store) AbortJob(ctx context.Context, jobID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: begin abort: %w", err)
	}
	defer tx.Rollback(ctx)

	var statusStr string
	err = tx.QueryRow(ctx,
		`SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID,
	).Scan(&statusStr)
	if err != nil {
		if isNoRows(err) {
			return jobmanager.ErrJobNotFound
		}
		return fmt.Errorf("jobmanager/postgres: abort load job: %w", err)
	}
	if !jobmanager.Status(statusStr).Active() {
		return fmt.Errorf("%w: job %s is %s", jobmanager.ErrJobNotAbortable, jobID, statusStr)
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = 'Aborted', updated_at = NOW() WHERE id = $1`,
		jobID)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: abort job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE tasks
		SET status = 'Aborted', updated_at = NOW()
		WHERE job_id = $1
		  AND status = 'Pending'`,
		jobID)
	if err != nil {
		return fmt.Errorf("jobmanager/postgres: abort job tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobmanager/postgres: commit abort: %w", err)
	}

	s.logger.Info("job aborted", "jobId", jobID)
	return nil
}
