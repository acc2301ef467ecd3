package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/backoff"
	"github.com/MapColonies/job-manager/liveness"
)

// Pool manages a set of concurrent claim loops for one (jobType, taskType)
// pair. Each loop claims the next pending task, executes it, and polls again.
type Pool struct {
	store    TaskStore
	executor *Executor
	handler  Handler
	jobType  string
	taskType string

	concurrency  int
	pollInterval time.Duration
	claimBackoff backoff.Strategy
	logger       *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent claim loops.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long a loop sleeps after finding no pending task.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithClaimBackoff sets the delay strategy after claim errors.
func WithClaimBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.claimBackoff = s }
}

// WithHeartbeats enables liveness beats for running tasks at the given
// interval.
func WithHeartbeats(beats liveness.Registry, interval time.Duration) PoolOption {
	return func(p *Pool) {
		p.executor = NewExecutor(p.store, beats, interval, p.logger)
	}
}

// WithPoolLogger sets the structured logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
		if p.executor != nil {
			p.executor.logger = l
		}
	}
}

// NewPool creates a worker pool for one work type.
func NewPool(store TaskStore, jobType, taskType string, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		handler:      handler,
		jobType:      jobType,
		taskType:     taskType,
		concurrency:  1,
		pollInterval: time.Second,
		claimBackoff: backoff.NewExponential(time.Second, 30*time.Second),
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
		active:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		p.executor = NewExecutor(p.store, nil, 0, p.logger)
	}
	return p
}

// Start launches the claim loops. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		"jobType", p.jobType,
		"taskType", p.taskType,
		"concurrency", p.concurrency,
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.claimLoop()
	}
	return nil
}

// Stop signals the loops to stop and waits for running tasks, cancelling
// them when the context expires first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.cancelActive()
		p.wg.Wait()
	}
	return nil
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	claimFailures := 0
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		t, err := p.store.ClaimNext(context.Background(), p.jobType, p.taskType)
		if err != nil {
			if errors.Is(err, jobmanager.ErrNoPendingTasks) {
				claimFailures = 0
				p.sleep(p.pollInterval)
				continue
			}
			claimFailures++
			p.logger.Error("claim error", "error", err, "failures", claimFailures)
			p.sleep(p.claimBackoff.Delay(claimFailures))
			continue
		}
		claimFailures = 0

		ctx, cancel := context.WithCancel(context.Background())
		p.track(t.ID, cancel)

		if execErr := p.executor.Execute(ctx, p.handler, t); execErr != nil {
			p.logger.Debug("task failed", "taskId", t.ID, "type", t.Type, "error", execErr)
		}

		p.untrack(t.ID)
		cancel()
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-p.stopCh:
	}
}

func (p *Pool) track(taskID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[taskID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(taskID string) {
	p.activeMu.Lock()
	delete(p.active, taskID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for taskID, cancel := range p.active {
		p.logger.Warn("cancelling active task", "taskId", taskID)
		cancel()
	}
}
