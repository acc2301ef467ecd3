package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/task"
)

// CreateTaskRequest is one task in a creation body, either standalone under
// POST /jobs/:jobId/tasks or nested in a job creation.
type CreateTaskRequest struct {
	Type             string             `json:"type" binding:"required"`
	Description      string             `json:"description"`
	Parameters       json.RawMessage    `json:"parameters" binding:"required"`
	Status           *jobmanager.Status `json:"status"`
	Percentage       *int               `json:"percentage"`
	Reason           string             `json:"reason"`
	Attempts         *int               `json:"attempts"`
	Resettable       *bool              `json:"resettable"`
	BlockDuplication bool               `json:"blockDuplication"`
}

// UpdateTaskRequest is the PUT /jobs/:jobId/tasks/:taskId body.
type UpdateTaskRequest struct {
	Status      *jobmanager.Status `json:"status"`
	Description *string            `json:"description"`
	Parameters  json.RawMessage    `json:"parameters"`
	Percentage  *int               `json:"percentage"`
	Reason      *string            `json:"reason"`
	Attempts    *int               `json:"attempts"`
}

// FindInactiveRequest is the POST /tasks/findInactive body. InactiveTime is
// in seconds, matching the original API contract.
type FindInactiveRequest struct {
	InactiveTime int             `json:"inactiveTime" binding:"required"`
	Types        []task.TypePair `json:"types"`
	IgnoreTypes  []task.TypePair `json:"ignoreTypes"`
}

// ReleaseInactiveRequest is the POST /tasks/releaseInactive body.
type ReleaseInactiveRequest struct {
	TaskIDs       []string `json:"taskIds" binding:"required"`
	RaiseAttempts *bool    `json:"raiseAttempts"`
}

func (r CreateTaskRequest) toTask(jobID string) *task.Task {
	t := task.New(jobID, r.Type, r.Parameters)
	t.Description = r.Description
	t.Reason = r.Reason
	t.Percentage = r.Percentage
	t.BlockDuplication = r.BlockDuplication
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Attempts != nil {
		t.Attempts = *r.Attempts
	}
	if r.Resettable != nil {
		t.Resettable = *r.Resettable
	}
	return t
}

func (r CreateTaskRequest) validStatus() bool {
	return r.Status == nil || r.Status.Valid()
}

func (a *API) listTasks(c *gin.Context) {
	jobID := c.Param("jobId")

	f := task.Filter{JobID: jobID, Type: c.Query("type")}
	if s := c.Query("status"); s != "" {
		status := jobmanager.Status(s)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status: " + s})
			return
		}
		f.Status = status
	}

	tasks, err := a.tasks.FindTasks(c.Request.Context(), f)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// createTasks accepts a single task object or an array of them; the original
// API allows both shapes.
func (a *API) createTasks(c *gin.Context) {
	jobID := c.Param("jobId")

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	var reqs []CreateTaskRequest
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &reqs)
	} else {
		var one CreateTaskRequest
		if err = json.Unmarshal(body, &one); err == nil {
			reqs = []CreateTaskRequest{one}
		}
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	for _, r := range reqs {
		if r.Type == "" || len(r.Parameters) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "task type and parameters are required"})
			return
		}
		if !r.validStatus() {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status: " + string(*r.Status)})
			return
		}
	}

	ts := make([]*task.Task, 0, len(reqs))
	for _, r := range reqs {
		ts = append(ts, r.toTask(jobID))
	}

	res, err := a.tasks.CreateTasks(c.Request.Context(), ts)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *API) getTask(c *gin.Context) {
	t, err := a.tasks.GetTask(c.Request.Context(), c.Param("jobId"), c.Param("taskId"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) updateTask(c *gin.Context) {
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status: " + string(*req.Status)})
		return
	}

	err := a.tasks.UpdateTask(c.Request.Context(), task.Update{
		JobID:       c.Param("jobId"),
		TaskID:      c.Param("taskId"),
		Status:      req.Status,
		Description: req.Description,
		Parameters:  req.Parameters,
		Percentage:  req.Percentage,
		Reason:      req.Reason,
		Attempts:    req.Attempts,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "TASK_UPDATED_SUCCESSFULLY"})
}

func (a *API) deleteTask(c *gin.Context) {
	if err := a.tasks.DeleteTask(c.Request.Context(), c.Param("jobId"), c.Param("taskId")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "TASK_DELETED_SUCCESSFULLY"})
}

func (a *API) tasksStatus(c *gin.Context) {
	summary, err := a.tasks.StatusSummary(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *API) startPending(c *gin.Context) {
	t, err := a.tasks.ClaimNext(c.Request.Context(), c.Param("jobType"), c.Param("taskType"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (a *API) findInactiveTasks(c *gin.Context) {
	var req FindInactiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.InactiveTime <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "inactiveTime must be positive"})
		return
	}

	ids, err := a.tasks.FindInactive(c.Request.Context(), task.InactiveFilter{
		InactiveFor: time.Duration(req.InactiveTime) * time.Second,
		Types:       req.Types,
		IgnoreTypes: req.IgnoreTypes,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ids)
}

func (a *API) releaseInactiveTasks(c *gin.Context) {
	var req ReleaseInactiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	raise := true
	if req.RaiseAttempts != nil {
		raise = *req.RaiseAttempts
	}

	released, err := a.tasks.ReleaseInactive(c.Request.Context(), req.TaskIDs, raise)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if released == nil {
		released = []string{}
	}
	c.JSON(http.StatusOK, released)
}

func (a *API) updateExpiredStatus(c *gin.Context) {
	res, err := a.jobs.SweepExpired(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) heartbeat(c *gin.Context) {
	if err := a.beats.Beat(c.Request.Context(), c.Param("taskId")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "TASK_HEARTBEAT_RECORDED"})
}

func (a *API) removeHeartbeat(c *gin.Context) {
	if err := a.beats.Remove(c.Request.Context(), c.Param("taskId")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "TASK_HEARTBEAT_REMOVED"})
}

func (a *API) abortJob(c *gin.Context) {
	if err := a.jobs.AbortJob(c.Request.Context(), c.Param("jobId")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "JOB_ABORTED_SUCCESSFULLY"})
}
