// Package sweeper runs the periodic lifecycle passes: expiring overdue jobs
// and their tasks, and releasing tasks abandoned by dead workers. Each pass
// composes store operations; the release pass additionally consults the
// liveness registry so a stale task with a live worker is never touched.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/job"
	"github.com/MapColonies/job-manager/liveness"
	"github.com/MapColonies/job-manager/task"
)

// JobSweeps is the slice of job.Store the sweeper needs.
type JobSweeps interface {
	SweepExpired(ctx context.Context) (job.SweepResult, error)
}

// TaskSweeps is the slice of task.Store the sweeper needs.
type TaskSweeps interface {
	FindInactive(ctx context.Context, f task.InactiveFilter) ([]string, error)
	ReleaseInactive(ctx context.Context, taskIDs []string, raiseAttempts bool) ([]string, error)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithTypes restricts the release pass to the given (jobType, taskType)
// pairs.
func WithTypes(types []task.TypePair) Option {
	return func(s *Sweeper) { s.types = types }
}

// WithIgnoreTypes excludes the given (jobType, taskType) pairs from the
// release pass.
func WithIgnoreTypes(ignore []task.TypePair) Option {
	return func(s *Sweeper) { s.ignoreTypes = ignore }
}

// Sweeper schedules the lifecycle passes on a cron runner.
type Sweeper struct {
	jobs   JobSweeps
	tasks  TaskSweeps
	beats  liveness.Registry
	config jobmanager.Config
	logger *slog.Logger
	cron   *cronlib.Cron

	types       []task.TypePair
	ignoreTypes []task.TypePair
}

// New creates a Sweeper. The liveness registry may be nil, in which case
// every timestamp-stale task is treated as dead.
func New(jobs JobSweeps, tasks TaskSweeps, beats liveness.Registry, cfg jobmanager.Config, opts ...Option) *Sweeper {
	s := &Sweeper{
		jobs:   jobs,
		tasks:  tasks,
		beats:  beats,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the periodic passes. Errors inside a pass are logged, never
// fatal: the next run is the retry.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cronlib.New()

	s.cron.Schedule(cronlib.Every(s.config.ExpireInterval), cronlib.FuncJob(func() {
		if _, err := s.jobs.SweepExpired(ctx); err != nil {
			s.logger.Error("expiration sweep failed", "error", err)
		}
	}))

	s.cron.Schedule(cronlib.Every(s.config.ReleaseInterval), cronlib.FuncJob(func() {
		if err := s.releasePass(ctx); err != nil {
			s.logger.Error("release pass failed", "error", err)
		}
	}))

	s.cron.Start()
	s.logger.Info("sweeper started",
		"expireInterval", s.config.ExpireInterval,
		"releaseInterval", s.config.ReleaseInterval,
		"inactiveAfter", s.config.InactiveAfter,
	)
	return nil
}

// Stop halts scheduling and waits for any running pass to finish, up to the
// context deadline.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releasePass finds timestamp-stale In-Progress tasks, filters out the ones
// whose workers still heartbeat, and releases the rest.
func (s *Sweeper) releasePass(ctx context.Context) error {
	candidates, err := s.tasks.FindInactive(ctx, task.InactiveFilter{
		InactiveFor: s.config.InactiveAfter,
		Types:       s.types,
		IgnoreTypes: s.ignoreTypes,
	})
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	dead := candidates
	if s.beats != nil {
		dead = dead[:0]
		for _, id := range candidates {
			at, beatErr := s.beats.LastBeat(ctx, id)
			switch {
			case errors.Is(beatErr, liveness.ErrNoHeartbeat):
				dead = append(dead, id)
			case beatErr != nil:
				return beatErr
			case time.Since(at) > s.config.InactiveAfter:
				dead = append(dead, id)
			default:
				s.logger.Debug("stale task still heartbeating, skipping", "taskId", id)
			}
		}
	}
	if len(dead) == 0 {
		return nil
	}

	released, err := s.tasks.ReleaseInactive(ctx, dead, s.config.RaiseAttempts)
	if err != nil {
		return err
	}
	s.logger.Info("release pass finished",
		"candidates", len(candidates), "confirmedDead", len(dead), "released", len(released))
	return nil
}
