// Package worker provides the task execution side of the system: an Executor
// that runs one claimed task through a handler and writes the outcome back,
// and a Pool that manages concurrent claim loops for one work type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/liveness"
	"github.com/MapColonies/job-manager/task"
)

// Handler processes one claimed task. A nil return completes the task; an
// error fails it with the error text as the reason.
type Handler func(ctx context.Context, t *task.Task) error

// TaskStore is the slice of task.Store the worker needs.
type TaskStore interface {
	ClaimNext(ctx context.Context, jobType, taskType string) (*task.Task, error)
	UpdateTask(ctx context.Context, u task.Update) error
}

// Executor runs a single task through the handler and records the outcome.
// While the handler runs it keeps the task's liveness beat fresh so the
// release pass never mistakes a slow task for an abandoned one.
type Executor struct {
	store             TaskStore
	beats             liveness.Registry
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewExecutor creates an Executor. beats may be nil to disable heartbeats.
func NewExecutor(store TaskStore, beats liveness.Registry, heartbeatInterval time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		store:             store,
		beats:             beats,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// Execute runs a claimed task to completion or failure.
func (e *Executor) Execute(ctx context.Context, handler Handler, t *task.Task) error {
	stopBeats := e.startHeartbeats(ctx, t.ID)

	handlerErr := e.invoke(ctx, handler, t)

	stopBeats()

	if handlerErr != nil {
		return e.fail(ctx, t, handlerErr)
	}
	return e.complete(ctx, t)
}

// invoke calls the handler, converting a panic into an error so one bad task
// cannot take the whole claim loop down.
func (e *Executor) invoke(ctx context.Context, handler Handler, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, t)
}

// startHeartbeats begins periodic beats for the task and returns a stop
// function. With no registry or a zero interval it is a no-op.
func (e *Executor) startHeartbeats(ctx context.Context, taskID string) func() {
	if e.beats == nil || e.heartbeatInterval <= 0 {
		return func() {}
	}

	beatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.heartbeatInterval)
		defer ticker.Stop()

		if err := e.beats.Beat(beatCtx, taskID); err != nil {
			e.logger.Warn("heartbeat failed", "taskId", taskID, "error", err)
		}
		for {
			select {
			case <-beatCtx.Done():
				return
			case <-ticker.C:
				if err := e.beats.Beat(beatCtx, taskID); err != nil {
					e.logger.Warn("heartbeat failed", "taskId", taskID, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
		if err := e.beats.Remove(context.Background(), taskID); err != nil {
			e.logger.Warn("heartbeat cleanup failed", "taskId", taskID, "error", err)
		}
	}
}

func (e *Executor) complete(ctx context.Context, t *task.Task) error {
	status := jobmanager.StatusCompleted
	percentage := 100
	err := e.store.UpdateTask(ctx, task.Update{
		JobID:      t.JobID,
		TaskID:     t.ID,
		Status:     &status,
		Percentage: &percentage,
	})
	if err != nil {
		e.logger.Error("failed to mark task completed", "taskId", t.ID, "error", err)
		return err
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, t *task.Task, handlerErr error) error {
	status := jobmanager.StatusFailed
	reason := handlerErr.Error()
	err := e.store.UpdateTask(ctx, task.Update{
		JobID:  t.JobID,
		TaskID: t.ID,
		Status: &status,
		Reason: &reason,
	})
	if err != nil {
		e.logger.Error("failed to mark task failed", "taskId", t.ID, "error", err)
		return err
	}
	return handlerErr
}
