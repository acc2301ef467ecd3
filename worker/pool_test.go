package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmanager "github.com/MapColonies/job-manager"
	"github.com/MapColonies/job-manager/liveness"
	"github.com/MapColonies/job-manager/task"
)

type fakeTaskStore struct {
	mu      sync.Mutex
	pending []*task.Task
	updates []task.Update
}

func (f *fakeTaskStore) ClaimNext(_ context.Context, _, _ string) (*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, jobmanager.ErrNoPendingTasks
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	t.Status = jobmanager.StatusInProgress
	return t, nil
}

func (f *fakeTaskStore) UpdateTask(_ context.Context, u task.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeTaskStore) updateFor(taskID string) (task.Update, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.updates {
		if u.TaskID == taskID {
			return u, true
		}
	}
	return task.Update{}, false
}

type memoryRegistry struct {
	mu    sync.Mutex
	beats map[string]time.Time
}

func (m *memoryRegistry) Beat(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beats[taskID] = time.Now()
	return nil
}

func (m *memoryRegistry) LastBeat(_ context.Context, taskID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.beats[taskID]
	if !ok {
		return time.Time{}, liveness.ErrNoHeartbeat
	}
	return at, nil
}

func (m *memoryRegistry) Remove(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.beats, taskID)
	return nil
}

func (m *memoryRegistry) has(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.beats[taskID]
	return ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeTask(id string) *task.Task {
	t := task.New("job-1", "tiling", json.RawMessage(`{}`))
	t.ID = id
	return t
}

func runPool(t *testing.T, p *Pool, done func() bool) {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	assert.Eventually(t, done, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
}

func TestPool_CompletesClaimedTasks(t *testing.T) {
	store := &fakeTaskStore{pending: []*task.Task{newFakeTask("t1"), newFakeTask("t2")}}

	p := NewPool(store, "ingestion", "tiling",
		func(context.Context, *task.Task) error { return nil },
		WithConcurrency(2),
		WithPollInterval(5*time.Millisecond),
	)

	runPool(t, p, func() bool {
		_, ok1 := store.updateFor("t1")
		_, ok2 := store.updateFor("t2")
		return ok1 && ok2
	})

	u, _ := store.updateFor("t1")
	require.NotNil(t, u.Status)
	assert.Equal(t, jobmanager.StatusCompleted, *u.Status)
	require.NotNil(t, u.Percentage)
	assert.Equal(t, 100, *u.Percentage)
	assert.Equal(t, "job-1", u.JobID)
}

func TestPool_FailsTaskWithReason(t *testing.T) {
	store := &fakeTaskStore{pending: []*task.Task{newFakeTask("t1")}}

	p := NewPool(store, "ingestion", "tiling",
		func(context.Context, *task.Task) error { return errors.New("tile source unreachable") },
		WithPollInterval(5*time.Millisecond),
	)

	runPool(t, p, func() bool {
		_, ok := store.updateFor("t1")
		return ok
	})

	u, _ := store.updateFor("t1")
	require.NotNil(t, u.Status)
	assert.Equal(t, jobmanager.StatusFailed, *u.Status)
	require.NotNil(t, u.Reason)
	assert.Equal(t, "tile source unreachable", *u.Reason)
}

func TestPool_HandlerPanicFailsTask(t *testing.T) {
	store := &fakeTaskStore{pending: []*task.Task{newFakeTask("t1")}}

	p := NewPool(store, "ingestion", "tiling",
		func(context.Context, *task.Task) error { panic("boom") },
		WithPollInterval(5*time.Millisecond),
	)

	runPool(t, p, func() bool {
		_, ok := store.updateFor("t1")
		return ok
	})

	u, _ := store.updateFor("t1")
	require.NotNil(t, u.Status)
	assert.Equal(t, jobmanager.StatusFailed, *u.Status)
	require.NotNil(t, u.Reason)
	assert.Contains(t, *u.Reason, "handler panic")
}

func TestPool_StopWithoutStart(t *testing.T) {
	store := &fakeTaskStore{}
	p := NewPool(store, "ingestion", "tiling",
		func(context.Context, *task.Task) error { return nil })
	assert.NoError(t, p.Stop(context.Background()))
}

func TestExecutor_HeartbeatsWhileRunning(t *testing.T) {
	store := &fakeTaskStore{}
	beats := &memoryRegistry{beats: map[string]time.Time{}}
	exec := NewExecutor(store, beats, time.Millisecond, discardLogger())

	block := make(chan struct{})
	done := make(chan error, 1)
	tk := newFakeTask("t1")
	go func() {
		done <- exec.Execute(context.Background(), func(context.Context, *task.Task) error {
			<-block
			return nil
		}, tk)
	}()

	assert.Eventually(t, func() bool { return beats.has("t1") },
		time.Second, time.Millisecond, "beat should appear while the handler runs")

	close(block)
	require.NoError(t, <-done)

	assert.False(t, beats.has("t1"), "beat should be removed after completion")
}
