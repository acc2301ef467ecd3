package job

import (
	"context"
	"encoding/json"
	"time"

	jobmanager "github.com/MapColonies/job-manager"
)

// Filter selects jobs in FindJobs. Zero-valued fields are ignored.
type Filter struct {
	ResourceID  string
	Version     string
	Type        string
	ProductType string
	Status      jobmanager.Status

	// IsCleaned filters on the post-completion cleanup mark when non-nil.
	IsCleaned *bool

	// FromDate and TillDate bound the job's last update time.
	FromDate *time.Time
	TillDate *time.Time

	// Parameters, when non-empty, matches jobs whose parameters document
	// contains the given JSON document (jsonb containment). The engine never
	// interprets parameter contents beyond this predicate.
	Parameters json.RawMessage

	// WithTasks includes each job's tasks in the result.
	WithTasks bool

	// Limit caps the number of returned jobs. Zero means no limit.
	Limit int
}

// Update carries a partial job update. Nil fields are left untouched.
// Counter fields are deliberately absent: they move only via task mutations.
type Update struct {
	JobID string

	Status         *jobmanager.Status
	Description    *string
	Reason         *string
	Percentage     *int
	IsCleaned      *bool
	Priority       *int
	ExpirationDate *time.Time
	Parameters     json.RawMessage
	InternalID     *string
	ProducerName   *string
	ProductName    *string
	ProductType    *string
}

// SweepResult reports how many rows each half of the expiration sweep moved.
type SweepResult struct {
	ExpiredJobs  int64 `json:"expiredJobs"`
	ExpiredTasks int64 `json:"expiredTasks"`
}

// Store defines the persistence contract for jobs, including the job-scoped
// lifecycle protocols.
type Store interface {
	// CreateJob persists a new job together with any tasks it carries, in a
	// single transaction. A second active job with the same natural key
	// fails with jobmanager.ErrActiveJobExists; duplicate blocking tasks in
	// the initial set fail with jobmanager.ErrDuplicateTask.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by id, optionally with its tasks.
	GetJob(ctx context.Context, jobID string, withTasks bool) (*Job, error)

	// FindJobs returns jobs matching the filter.
	FindJobs(ctx context.Context, f Filter) ([]*Job, error)

	// UpdateJob applies a partial update to an existing job.
	UpdateJob(ctx context.Context, u Update) error

	// DeleteJob removes a job. A job that still owns tasks fails with
	// jobmanager.ErrJobHasTasks; callers must delete the tasks first.
	DeleteJob(ctx context.Context, jobID string) error

	// JobExists reports whether the job id is known.
	JobExists(ctx context.Context, jobID string) (bool, error)

	// IsResettable reports whether the job can be reset: status and at
	// least one task in a resettable status, not cleaned, and no task
	// explicitly marked non-resettable. A missing, taskless, or cleaned
	// job is simply not resettable, not an error.
	IsResettable(ctx context.Context, jobID string) (bool, error)

	// ResetJob resumes a dead job inside one transaction: it re-checks
	// resettability, moves the job to In-Progress (applying the new
	// expiration date when given), and returns the job's failed, expired,
	// and aborted tasks to Pending with reason, attempts, and percentage
	// cleared. A non-resettable job fails with
	// jobmanager.ErrJobNotResettable and writes nothing.
	ResetJob(ctx context.Context, jobID string, newExpiration *time.Time) error

	// AbortJob cancels a live job inside one transaction: the job moves to
	// Aborted and its Pending tasks follow. In-Progress tasks are left to
	// finish or be released. Aborting a job that is not Pending or
	// In-Progress fails with jobmanager.ErrJobNotAbortable; a missing job
	// with jobmanager.ErrJobNotFound.
	AbortJob(ctx context.Context, jobID string) error

	// SweepExpired moves every active job past its expiration date to
	// Expired, then every Pending or In-Progress task of an Expired job to
	// Expired. Jobs are swept before tasks so the task predicate sees the
	// job sweep's results.
	SweepExpired(ctx context.Context) (SweepResult, error)
}
