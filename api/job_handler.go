package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/job"
)

// CreateJobRequest is the POST /jobs body. Tasks, when present, are created
// with the job in the same transaction.
type CreateJobRequest struct {
	ResourceID            string              `json:"resourceId" binding:"required"`
	Version               string              `json:"version" binding:"required"`
	Type                  string              `json:"type" binding:"required"`
	Description           string              `json:"description"`
	Parameters            json.RawMessage     `json:"parameters" binding:"required"`
	Status                *jobmanager.Status  `json:"status"`
	Percentage            *int                `json:"percentage"`
	Reason                string              `json:"reason"`
	Priority              *int                `json:"priority"`
	ExpirationDate        *time.Time          `json:"expirationDate"`
	InternalID            *string             `json:"internalId"`
	ProducerName          *string             `json:"producerName"`
	ProductName           *string             `json:"productName"`
	ProductType           *string             `json:"productType"`
	AdditionalIdentifiers *string             `json:"additionalIdentifiers"`
	Tasks                 []CreateTaskRequest `json:"tasks"`
}

// CreateJobResponse echoes the generated ids.
type CreateJobResponse struct {
	ID      string   `json:"id"`
	TaskIDs []string `json:"taskIds"`
}

// UpdateJobRequest is the PUT /jobs/:jobId body. Absent fields are left
// untouched.
type UpdateJobRequest struct {
	Status         *jobmanager.Status `json:"status"`
	Description    *string            `json:"description"`
	Reason         *string            `json:"reason"`
	Percentage     *int               `json:"percentage"`
	IsCleaned      *bool              `json:"isCleaned"`
	Priority       *int               `json:"priority"`
	ExpirationDate *time.Time         `json:"expirationDate"`
	Parameters     json.RawMessage    `json:"parameters"`
	InternalID     *string            `json:"internalId"`
	ProducerName   *string            `json:"producerName"`
	ProductName    *string            `json:"productName"`
	ProductType    *string            `json:"productType"`
}

// ResetJobRequest optionally carries a fresh expiration date for the resumed
// job.
type ResetJobRequest struct {
	NewExpirationDate *time.Time `json:"newExpirationDate"`
}

func (a *API) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status: " + string(*req.Status)})
		return
	}

	j := job.New(req.ResourceID, req.Version, req.Type, req.Parameters)
	j.Description = req.Description
	j.Reason = req.Reason
	j.Percentage = req.Percentage
	j.ExpirationDate = req.ExpirationDate
	j.InternalID = req.InternalID
	j.ProducerName = req.ProducerName
	j.ProductName = req.ProductName
	j.ProductType = req.ProductType
	j.AdditionalIdentifiers = req.AdditionalIdentifiers
	if req.Status != nil {
		j.Status = *req.Status
	}
	if req.Priority != nil {
		j.Priority = *req.Priority
	}
	for _, tr := range req.Tasks {
		j.Tasks = append(j.Tasks, tr.toTask(j.ID))
	}

	if err := a.jobs.CreateJob(c.Request.Context(), j); err != nil {
		a.writeError(c, err)
		return
	}

	resp := CreateJobResponse{ID: j.ID, TaskIDs: make([]string, 0, len(j.Tasks))}
	for _, t := range j.Tasks {
		resp.TaskIDs = append(resp.TaskIDs, t.ID)
	}
	c.JSON(http.StatusCreated, resp)
}

func (a *API) findJobs(c *gin.Context) {
	f, err := jobFilterFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	jobs, err := a.jobs.FindJobs(c.Request.Context(), f)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) getJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("jobId")
	withTasks := c.Query("shouldReturnTasks") == "true"

	j, err := a.jobs.GetJob(ctx, jobID, withTasks)
	if err != nil {
		a.writeError(c, err)
		return
	}

	if c.Query("shouldReturnAvailableActions") == "true" {
		resumable, err := a.jobs.IsResettable(ctx, jobID)
		if err != nil {
			a.writeError(c, err)
			return
		}
		j.AvailableActions = &job.AvailableActions{
			Resumable: resumable,
			Abortable: j.Abortable(),
		}
	}
	c.JSON(http.StatusOK, j)
}

func (a *API) updateJob(c *gin.Context) {
	var req UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status: " + string(*req.Status)})
		return
	}

	err := a.jobs.UpdateJob(c.Request.Context(), job.Update{
		JobID:          c.Param("jobId"),
		Status:         req.Status,
		Description:    req.Description,
		Reason:         req.Reason,
		Percentage:     req.Percentage,
		IsCleaned:      req.IsCleaned,
		Priority:       req.Priority,
		ExpirationDate: req.ExpirationDate,
		Parameters:     req.Parameters,
		InternalID:     req.InternalID,
		ProducerName:   req.ProducerName,
		ProductName:    req.ProductName,
		ProductType:    req.ProductType,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "JOB_UPDATED_SUCCESSFULLY"})
}

func (a *API) deleteJob(c *gin.Context) {
	if err := a.jobs.DeleteJob(c.Request.Context(), c.Param("jobId")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "JOB_DELETED_SUCCESSFULLY"})
}

func (a *API) jobResettable(c *gin.Context) {
	jobID := c.Param("jobId")
	ok, err := a.jobs.IsResettable(c.Request.Context(), jobID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "isResettable": ok})
}

func (a *API) resetJob(c *gin.Context) {
	var req ResetJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	if err := a.jobs.ResetJob(c.Request.Context(), c.Param("jobId"), req.NewExpirationDate); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "JOB_RESET_SUCCESSFULLY"})
}

// jobFilterFromQuery builds a job.Filter from GET /jobs query parameters.
func jobFilterFromQuery(c *gin.Context) (job.Filter, error) {
	f := job.Filter{
		ResourceID:  c.Query("resourceId"),
		Version:     c.Query("version"),
		Type:        c.Query("type"),
		ProductType: c.Query("productType"),
		WithTasks:   c.Query("shouldReturnTasks") == "true",
	}

	if s := c.Query("status"); s != "" {
		status := jobmanager.Status(s)
		if !status.Valid() {
			return job.Filter{}, errors.New("invalid status: " + s)
		}
		f.Status = status
	}
	if s := c.Query("isCleaned"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return job.Filter{}, errors.New("invalid isCleaned: " + s)
		}
		f.IsCleaned = &v
	}
	if s := c.Query("fromDate"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return job.Filter{}, errors.New("invalid fromDate: " + s)
		}
		f.FromDate = &t
	}
	if s := c.Query("tillDate"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return job.Filter{}, errors.New("invalid tillDate: " + s)
		}
		f.TillDate = &t
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return job.Filter{}, errors.New("invalid limit: " + s)
		}
		f.Limit = n
	}
	if s := c.Query("parameters"); s != "" {
		if !json.Valid([]byte(s)) {
			return job.Filter{}, errors.New("parameters must be a JSON document")
		}
		f.Parameters = json.RawMessage(s)
	}
	return f, nil
}
