// Package postgres implements job.Store and task.Store on PostgreSQL using
// pgx/v5. The hard invariants live in the database itself: exclusion
// constraints reject duplicate active jobs and duplicate blocking tasks,
// triggers keep job counters consistent with task state, and the claim
// engine relies on FOR UPDATE SKIP LOCKED for contention-safe dequeue.
package postgres
