package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MapColonies/job-manager/api"
	"github.com/MapColonies/job-manager/task"
)

// CreateTasks adds tasks to an existing job. Duplicate-blocked tasks are
// reported in the result, not as an error.
func (c *Client) CreateTasks(ctx context.Context, jobID string, reqs []api.CreateTaskRequest) (*task.BatchResult, error) {
	var res task.BatchResult
	if err := c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/tasks", nil, reqs, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTask retrieves a task scoped to its job.
func (c *Client) GetTask(ctx context.Context, jobID, taskID string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/tasks/"+taskID, nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns a job's tasks, optionally filtered by type and status.
func (c *Client) ListTasks(ctx context.Context, jobID string, f task.Filter) ([]*task.Task, error) {
	q := url.Values{}
	setIfNotEmpty(q, "type", f.Type)
	setIfNotEmpty(q, "status", string(f.Status))

	var ts []*task.Task
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/tasks", q, nil, &ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, jobID, taskID string, req api.UpdateTaskRequest) error {
	return c.do(ctx, http.MethodPut, "/jobs/"+jobID+"/tasks/"+taskID, nil, req, nil)
}

// DeleteTask removes a task from its job.
func (c *Client) DeleteTask(ctx context.Context, jobID, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+jobID+"/tasks/"+taskID, nil, nil, nil)
}

// TasksStatus aggregates a job's task progress.
func (c *Client) TasksStatus(ctx context.Context, jobID string) (*task.StatusSummary, error) {
	var s task.StatusSummary
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/tasksStatus", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimTask claims the next pending task for the (jobType, taskType) pair.
// An empty queue fails with jobmanager.ErrNoPendingTasks.
func (c *Client) ClaimTask(ctx context.Context, jobType, taskType string) (*task.Task, error) {
	var t task.Task
	path := "/tasks/claim/" + jobType + "/" + taskType
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindInactiveTasks returns ids of tasks that look abandoned by timestamp.
func (c *Client) FindInactiveTasks(ctx context.Context, req api.FindInactiveRequest) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodPost, "/tasks/findInactive", nil, req, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReleaseInactiveTasks releases confirmed-dead tasks back to the queue.
func (c *Client) ReleaseInactiveTasks(ctx context.Context, req api.ReleaseInactiveRequest) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodPost, "/tasks/releaseInactive", nil, req, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Heartbeat records a liveness beat for a claimed task.
func (c *Client) Heartbeat(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/heartbeat/"+taskID, nil, nil, nil)
}

// RemoveHeartbeat drops a task's liveness beat, typically on completion.
func (c *Client) RemoveHeartbeat(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/heartbeat/"+taskID, nil, nil, nil)
}
