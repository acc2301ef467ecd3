package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	jobmanager "github.com/MapColonies/job-manager"
)

// Task is an atomic work item owned by exactly one job. Its type, combined
// with the owning job's type, is what workers match on when claiming.
type Task struct {
	ID          string            `json:"id"`
	JobID       string            `json:"jobId"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Parameters  json.RawMessage   `json:"parameters"`
	Status      jobmanager.Status `json:"status"`
	Percentage  *int              `json:"percentage,omitempty"`
	Reason      string            `json:"reason,omitempty"`

	// Attempts counts how many times the task was released back to Pending
	// after being judged abandoned.
	Attempts int `json:"attempts"`

	// Resettable=false vetoes any reset of the owning job.
	Resettable bool `json:"resettable"`

	// BlockDuplication opts the task into the store's duplicate-task
	// exclusion: at most one blocking task per (type, job) may exist.
	BlockDuplication bool `json:"blockDuplication,omitempty"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// New returns a Pending, resettable task with a generated id.
func New(jobID, taskType string, parameters json.RawMessage) *Task {
	return &Task{
		ID:         uuid.NewString(),
		JobID:      jobID,
		Type:       taskType,
		Parameters: parameters,
		Status:     jobmanager.StatusPending,
		Resettable: true,
	}
}

// TypePair identifies a class of work by owning-job type and task type.
type TypePair struct {
	JobType  string `json:"jobType"`
	TaskType string `json:"taskType"`
}

// BatchResult reports a batched task creation: ids of created tasks plus the
// messages of requests skipped because of the duplicate-task exclusion.
type BatchResult struct {
	IDs    []string `json:"ids"`
	Errors []string `json:"errors,omitempty"`
}

// StatusSummary aggregates a job's task progress for callers deciding
// whether the job as a whole is done.
type StatusSummary struct {
	AllCompleted    bool   `json:"allTasksCompleted"`
	CompletedCount  int    `json:"completedTasksCount"`
	FailedCount     int    `json:"failedTasksCount"`
	ResourceID      string `json:"resourceId"`
	ResourceVersion string `json:"resourceVersion"`
}

// InactiveFilter selects In-Progress tasks whose last update is older than
// the threshold. Types and IgnoreTypes may combine: a task must match at
// least one Types pair when any are given, and must not match any
// IgnoreTypes pair.
type InactiveFilter struct {
	InactiveFor time.Duration `json:"-"`
	Types       []TypePair    `json:"types,omitempty"`
	IgnoreTypes []TypePair    `json:"ignoreTypes,omitempty"`
}
