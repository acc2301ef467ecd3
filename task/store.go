package task

import (
	"context"

	jobmanager "github.com/MapColonies/job-manager"
)

// Filter selects tasks in FindTasks. Zero-valued fields are ignored.
type Filter struct {
	JobID      string
	Type       string
	Status     jobmanager.Status
	Resettable *bool
}

// Update carries a partial task update. Nil fields are left untouched.
type Update struct {
	JobID  string
	TaskID string

	Status      *jobmanager.Status
	Description *string
	Parameters  []byte
	Percentage  *int
	Reason      *string
	Attempts    *int
}

// Store defines the persistence contract for tasks, including the claim
// engine and the abandoned-work recovery operations.
type Store interface {
	// CreateTask persists a single task. An unknown job fails with
	// jobmanager.ErrJobNotFound; a second duplication-blocked task of the
	// same type for the job fails with jobmanager.ErrDuplicateTask.
	CreateTask(ctx context.Context, t *Task) error

	// CreateTasks persists a batch for one job. Duplicate-task conflicts
	// are collected into the result instead of aborting the batch; any
	// other failure aborts and propagates.
	CreateTasks(ctx context.Context, ts []*Task) (*BatchResult, error)

	// GetTask retrieves a task scoped to its job.
	GetTask(ctx context.Context, jobID, taskID string) (*Task, error)

	// ListTasks returns all tasks of a job.
	ListTasks(ctx context.Context, jobID string) ([]*Task, error)

	// FindTasks returns tasks matching the filter.
	FindTasks(ctx context.Context, f Filter) ([]*Task, error)

	// UpdateTask applies a partial update to an existing task.
	UpdateTask(ctx context.Context, u Update) error

	// DeleteTask removes a task scoped to its job.
	DeleteTask(ctx context.Context, jobID, taskID string) error

	// TaskExists reports whether the (job, task) pair is known.
	TaskExists(ctx context.Context, jobID, taskID string) (bool, error)

	// CountByStatus counts a job's tasks in the given status.
	CountByStatus(ctx context.Context, jobID string, status jobmanager.Status) (int, error)

	// StatusSummary aggregates a job's task progress. An unknown job fails
	// with jobmanager.ErrJobNotFound.
	StatusSummary(ctx context.Context, jobID string) (*StatusSummary, error)

	// ClaimNext atomically claims exactly one Pending task of the given
	// task type whose owning job has the given job type, preferring tasks
	// of higher-priority jobs and breaking ties by task creation order. The
	// selected task moves to In-Progress and is returned. Candidates locked
	// by concurrent claimants are skipped, never waited on, so two callers
	// can never receive the same task. An empty queue fails with
	// jobmanager.ErrNoPendingTasks.
	//
	// Priority is best-effort under contention: a lower-priority task can
	// win when the higher-priority candidate is locked by another claimant
	// at that instant. This weak ordering is the accepted cost of the
	// lock-and-skip design.
	ClaimNext(ctx context.Context, jobType, taskType string) (*Task, error)

	// FindInactive returns ids of In-Progress tasks that look abandoned by
	// timestamp. It mutates nothing: a stale task may still have a live
	// worker, so liveness confirmation and the release decision are
	// separate steps.
	FindInactive(ctx context.Context, f InactiveFilter) ([]string, error)

	// ReleaseInactive recovers confirmed-dead tasks in one atomic
	// statement. Each given task still In-Progress returns to Pending when
	// its job is still active, or moves to Aborted when the job is
	// terminal; attempts is incremented when raiseAttempts is set. Ids
	// already transitioned by someone else are silently skipped, and only
	// the acted-on ids are returned.
	ReleaseInactive(ctx context.Context, taskIDs []string, raiseAttempts bool) ([]string, error)
}
