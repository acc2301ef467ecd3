package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Registry = (*RedisRegistry)(nil)

const keyPrefix = "jobmanager:beat:"

// beatKey returns the heartbeat key for a task: jobmanager:beat:{taskID}
func beatKey(taskID string) string { return keyPrefix + taskID }

// RedisRegistry implements Registry on Redis. Each heartbeat is a key
// holding the beat time with a TTL; an expired key reads as no heartbeat,
// so dead workers age out without any cleanup pass.
type RedisRegistry struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the RedisRegistry.
type Option func(*RedisRegistry)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *RedisRegistry) { r.logger = l }
}

// NewRedis creates a Redis-backed heartbeat registry. The caller owns the
// Redis client lifecycle. Heartbeats expire after ttl without a refresh.
func NewRedis(client redis.Cmdable, ttl time.Duration, opts ...Option) *RedisRegistry {
	r := &RedisRegistry{
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Beat records a heartbeat for the task, refreshing its expiry.
func (r *RedisRegistry) Beat(ctx context.Context, taskID string) error {
	now := time.Now().UTC()
	if err := r.client.Set(ctx, beatKey(taskID), now.Format(time.RFC3339Nano), r.ttl).Err(); err != nil {
		return fmt.Errorf("liveness: record heartbeat: %w", err)
	}
	return nil
}

// LastBeat returns the time of the task's most recent heartbeat.
func (r *RedisRegistry) LastBeat(ctx context.Context, taskID string) (time.Time, error) {
	val, err := r.client.Get(ctx, beatKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, ErrNoHeartbeat
		}
		return time.Time{}, fmt.Errorf("liveness: read heartbeat: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("liveness: parse heartbeat %q: %w", val, err)
	}
	return at, nil
}

// Remove drops the task's heartbeat.
func (r *RedisRegistry) Remove(ctx context.Context, taskID string) error {
	if err := r.client.Del(ctx, beatKey(taskID)).Err(); err != nil {
		return fmt.Errorf("liveness: remove heartbeat: %w", err)
	}
	return nil
}
