package jobmanager

// Status is the shared lifecycle status vocabulary for jobs and tasks.
// The string values are persisted verbatim in the database enum.
type Status string

const (
	// StatusPending means the work is waiting to be picked up.
	StatusPending Status = "Pending"
	// StatusInProgress means a worker is currently executing the work.
	StatusInProgress Status = "In-Progress"
	// StatusCompleted means the work finished successfully.
	StatusCompleted Status = "Completed"
	// StatusFailed means the work failed.
	StatusFailed Status = "Failed"
	// StatusExpired means the work outlived its expiration date.
	StatusExpired Status = "Expired"
	// StatusAborted means the work was explicitly cancelled.
	StatusAborted Status = "Aborted"
)

// Statuses lists every valid status value.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusExpired,
	StatusAborted,
}

// Valid reports whether s is a member of the status enum.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Active reports whether s counts as active for the active-job exclusion
// rule: at most one Pending or In-Progress job may exist per natural key.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal reports whether s is a final status. Terminal work only moves
// again through an explicit reset.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusAborted:
		return true
	}
	return false
}

// Resettable reports whether work in status s may be returned to Pending by
// a job reset. Completed work is never reset.
func (s Status) Resettable() bool {
	switch s {
	case StatusFailed, StatusExpired, StatusAborted:
		return true
	}
	return false
}
