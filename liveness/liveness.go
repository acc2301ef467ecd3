// Package liveness tracks worker heartbeats for claimed tasks. The sweeper
// consults it before releasing a task that merely looks stale: an inactive
// updated_at timestamp alone does not prove the worker is dead.
package liveness

import (
	"context"
	"errors"
	"time"
)

// ErrNoHeartbeat means no live heartbeat is recorded for the task.
var ErrNoHeartbeat = errors.New("liveness: no heartbeat recorded")

// Registry is the heartbeat contract. Workers call Beat while executing a
// claimed task; the sweeper calls LastBeat to decide whether a stale task is
// genuinely abandoned.
type Registry interface {
	// Beat records a heartbeat for the task, refreshing its expiry.
	Beat(ctx context.Context, taskID string) error

	// LastBeat returns the time of the task's most recent heartbeat, or
	// ErrNoHeartbeat when none is live.
	LastBeat(ctx context.Context, taskID string) (time.Time, error)

	// Remove drops the task's heartbeat, typically after completion.
	Remove(ctx context.Context, taskID string) error
}
