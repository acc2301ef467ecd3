package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MapColonies/job-manager/api"
	"github.com/MapColonies/job-manager/job"
)

// GetJobOptions controls what a job read includes.
type GetJobOptions struct {
	WithTasks            bool
	WithAvailableActions bool
}

// CreateJob creates a job, optionally with its initial tasks.
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*api.CreateJobResponse, error) {
	var resp api.CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob retrieves a job by id.
func (c *Client) GetJob(ctx context.Context, jobID string, opts GetJobOptions) (*job.Job, error) {
	q := url.Values{}
	if opts.WithTasks {
		q.Set("shouldReturnTasks", "true")
	}
	if opts.WithAvailableActions {
		q.Set("shouldReturnAvailableActions", "true")
	}

	var j job.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, q, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// FindJobs returns jobs matching the filter.
func (c *Client) FindJobs(ctx context.Context, f job.Filter) ([]*job.Job, error) {
	q := url.Values{}
	setIfNotEmpty(q, "resourceId", f.ResourceID)
	setIfNotEmpty(q, "version", f.Version)
	setIfNotEmpty(q, "type", f.Type)
	setIfNotEmpty(q, "productType", f.ProductType)
	setIfNotEmpty(q, "status", string(f.Status))
	if f.IsCleaned != nil {
		q.Set("isCleaned", strconv.FormatBool(*f.IsCleaned))
	}
	if f.FromDate != nil {
		q.Set("fromDate", f.FromDate.Format(time.RFC3339))
	}
	if f.TillDate != nil {
		q.Set("tillDate", f.TillDate.Format(time.RFC3339))
	}
	if len(f.Parameters) > 0 {
		q.Set("parameters", string(f.Parameters))
	}
	if f.WithTasks {
		q.Set("shouldReturnTasks", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var jobs []*job.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", q, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJob applies a partial update to a job.
func (c *Client) UpdateJob(ctx context.Context, jobID string, req api.UpdateJobRequest) error {
	return c.do(ctx, http.MethodPut, "/jobs/"+jobID, nil, req, nil)
}

// DeleteJob removes a taskless job.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+jobID, nil, nil, nil)
}

// IsJobResettable reports whether the job accepts a reset.
func (c *Client) IsJobResettable(ctx context.Context, jobID string) (bool, error) {
	var resp struct {
		IsResettable bool `json:"isResettable"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/resettable", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.IsResettable, nil
}

// ResetJob resumes a dead job, optionally with a fresh expiration date.
func (c *Client) ResetJob(ctx context.Context, jobID string, newExpiration *time.Time) error {
	req := api.ResetJobRequest{NewExpirationDate: newExpiration}
	return c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/reset", nil, req, nil)
}

// AbortJob cancels a live job.
func (c *Client) AbortJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/abort/"+jobID, nil, nil, nil)
}

// SweepExpired triggers an expiration sweep on the server.
func (c *Client) SweepExpired(ctx context.Context) (job.SweepResult, error) {
	var res job.SweepResult
	if err := c.do(ctx, http.MethodPost, "/tasks/updateExpiredStatus", nil, nil, &res); err != nil {
		return job.SweepResult{}, err
	}
	return res, nil
}

func setIfNotEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
