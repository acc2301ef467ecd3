package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/task"
)

// DefaultPriority is the priority assigned to jobs that do not request one.
// Higher values are served first by the task claim engine.
const DefaultPriority = 1000

// Job is a requested unit of work identified by resource, version, and type.
// It owns zero or more tasks.
//
// The per-status counters are denormalized aggregates maintained by database
// triggers on every task insert, delete, and status change; application code
// must never write them directly. TaskCount always equals the sum of the six
// status counters.
type Job struct {
	ID          string             `json:"id"`
	ResourceID  string             `json:"resourceId"`
	Version     string             `json:"version"`
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Parameters  json.RawMessage    `json:"parameters"`
	Status      jobmanager.Status  `json:"status"`
	Percentage  *int               `json:"percentage,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	IsCleaned   bool               `json:"isCleaned"`
	Priority    int                `json:"priority"`

	// ExpirationDate is an optional deadline; the expiration sweep moves
	// past-due active jobs to Expired.
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`

	InternalID            *string `json:"internalId,omitempty"`
	ProducerName          *string `json:"producerName,omitempty"`
	ProductName           *string `json:"productName,omitempty"`
	ProductType           *string `json:"productType,omitempty"`
	AdditionalIdentifiers *string `json:"additionalIdentifiers,omitempty"`

	TaskCount       int `json:"taskCount"`
	CompletedTasks  int `json:"completedTasks"`
	FailedTasks     int `json:"failedTasks"`
	ExpiredTasks    int `json:"expiredTasks"`
	PendingTasks    int `json:"pendingTasks"`
	InProgressTasks int `json:"inProgressTasks"`
	AbortedTasks    int `json:"abortedTasks"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`

	// Tasks is populated on creation requests carrying initial tasks and on
	// reads that ask for them.
	Tasks []*task.Task `json:"tasks,omitempty"`

	// AvailableActions is populated only when a read asks for it.
	AvailableActions *AvailableActions `json:"availableActions,omitempty"`
}

// AvailableActions tells a caller which lifecycle operations the job
// currently accepts.
type AvailableActions struct {
	Resumable bool `json:"isResumable"`
	Abortable bool `json:"isAbortable"`
}

// New returns a Pending job with a generated id and default priority.
func New(resourceID, version, jobType string, parameters json.RawMessage) *Job {
	return &Job{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Version:    version,
		Type:       jobType,
		Parameters: parameters,
		Status:     jobmanager.StatusPending,
		Priority:   DefaultPriority,
	}
}

// Abortable reports whether the job may be aborted in its current status.
// Only Pending and In-Progress jobs accept an abort.
func (j *Job) Abortable() bool {
	return j.Status.Active()
}
