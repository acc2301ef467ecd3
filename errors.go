package jobmanager

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("jobmanager: no store configured")
	ErrStoreClosed     = errors.New("jobmanager: store closed")
	ErrMigrationFailed = errors.New("jobmanager: migration failed")

	// Not found errors.
	ErrJobNotFound    = errors.New("jobmanager: job not found")
	ErrTaskNotFound   = errors.New("jobmanager: task not found")
	ErrNoPendingTasks = errors.New("jobmanager: no pending task matched")

	// Conflict errors. The store's exclusion constraints raise these; they
	// are mapped from the violated constraint's identity, never from error
	// message text.
	ErrActiveJobExists = errors.New("jobmanager: another active job exists for this resource")
	ErrDuplicateTask   = errors.New("jobmanager: a duplication-blocked task of this type already exists for the job")

	// Structural constraint errors.
	ErrJobHasTasks = errors.New("jobmanager: job still has tasks")

	// State errors.
	ErrJobNotResettable = errors.New("jobmanager: job is not resettable")
	ErrJobNotAbortable  = errors.New("jobmanager: job is not in an abortable status")
)
