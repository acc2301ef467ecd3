// Package api exposes the job and task stores over HTTP. Handlers are thin:
// they bind the request, call one store operation, and translate the error
// taxonomy to status codes. All orchestration lives in the stores.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/job"
	"github.com/MapColonies/job-manager/liveness"
	"github.com/MapColonies/job-manager/task"
)

// API holds the handlers' dependencies.
type API struct {
	jobs   job.Store
	tasks  task.Store
	beats  liveness.Registry
	logger *slog.Logger
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithLiveness enables the worker heartbeat routes on the given registry.
func WithLiveness(r liveness.Registry) Option {
	return func(a *API) { a.beats = r }
}

// New creates the API over the given stores.
func New(jobs job.Store, tasks task.Store, opts ...Option) *API {
	a := &API{
		jobs:   jobs,
		tasks:  tasks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register mounts all routes on the router.
func (a *API) Register(r gin.IRouter) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("", a.createJob)
		jobs.GET("", a.findJobs)
		jobs.GET("/:jobId", a.getJob)
		jobs.PUT("/:jobId", a.updateJob)
		jobs.DELETE("/:jobId", a.deleteJob)
		jobs.GET("/:jobId/resettable", a.jobResettable)
		jobs.POST("/:jobId/reset", a.resetJob)

		jobs.GET("/:jobId/tasks", a.listTasks)
		jobs.POST("/:jobId/tasks", a.createTasks)
		jobs.GET("/:jobId/tasks/:taskId", a.getTask)
		jobs.PUT("/:jobId/tasks/:taskId", a.updateTask)
		jobs.DELETE("/:jobId/tasks/:taskId", a.deleteTask)
		jobs.GET("/:jobId/tasksStatus", a.tasksStatus)
	}

	// The claim route carries a static prefix because gin's router does not
	// allow a param segment beside the static management routes.
	tasks := r.Group("/tasks")
	{
		tasks.POST("/claim/:jobType/:taskType", a.startPending)
		tasks.POST("/findInactive", a.findInactiveTasks)
		tasks.POST("/releaseInactive", a.releaseInactiveTasks)
		tasks.POST("/updateExpiredStatus", a.updateExpiredStatus)
		tasks.POST("/abort/:jobId", a.abortJob)

		if a.beats != nil {
			tasks.POST("/heartbeat/:taskId", a.heartbeat)
			tasks.DELETE("/heartbeat/:taskId", a.removeHeartbeat)
		}
	}
}

// writeError translates store sentinel errors to HTTP status codes. Anything
// unrecognized is a 500, logged with the request path.
func (a *API) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobmanager.ErrJobNotFound),
		errors.Is(err, jobmanager.ErrTaskNotFound),
		errors.Is(err, jobmanager.ErrNoPendingTasks):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.Is(err, jobmanager.ErrActiveJobExists),
		errors.Is(err, jobmanager.ErrDuplicateTask):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, jobmanager.ErrJobHasTasks):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": err.Error()})
	case errors.Is(err, jobmanager.ErrJobNotResettable),
		errors.Is(err, jobmanager.ErrJobNotAbortable):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		a.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
}
