package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the store translates into the error taxonomy. The
// violated constraint's identity decides the mapping; error message text is
// never inspected. The same foreign key violation means "job not found" on a
// task insert and "job still has tasks" on a job delete, so the mapping is
// done per operation, not globally.
const (
	pgForeignKeyViolation = "23503"
	pgExclusionViolation  = "23P01"

	constraintActiveJob   = "uq_active_job"
	constraintTaskJobType = "uq_task_job_type"
	constraintTaskJobFK   = "fk_tasks_job_id"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isConstraint reports whether err is a PostgreSQL error with the given
// SQLSTATE code raised by the named constraint.
func isConstraint(err error, code, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code && pgErr.ConstraintName == constraint
	}
	return false
}
