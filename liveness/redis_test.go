//go:build integration

package liveness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MapColonies/job-manager/liveness"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRegistry_BeatAndLastBeat(t *testing.T) {
	ctx := context.Background()
	reg := liveness.NewRedis(setupRedis(t), time.Minute)

	before := time.Now().UTC()
	if err := reg.Beat(ctx, "task-1"); err != nil {
		t.Fatalf("beat: %v", err)
	}

	at, err := reg.LastBeat(ctx, "task-1")
	if err != nil {
		t.Fatalf("last beat: %v", err)
	}
	if at.Before(before.Add(-time.Second)) || at.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("beat time %v outside expected window", at)
	}

	// A second beat moves the timestamp forward.
	time.Sleep(10 * time.Millisecond)
	if err := reg.Beat(ctx, "task-1"); err != nil {
		t.Fatalf("second beat: %v", err)
	}
	later, err := reg.LastBeat(ctx, "task-1")
	if err != nil {
		t.Fatalf("last beat after refresh: %v", err)
	}
	if !later.After(at) {
		t.Fatalf("expected refreshed beat %v to be after %v", later, at)
	}
}

func TestRedisRegistry_MissingTask(t *testing.T) {
	reg := liveness.NewRedis(setupRedis(t), time.Minute)

	_, err := reg.LastBeat(context.Background(), "never-beat")
	if !errors.Is(err, liveness.ErrNoHeartbeat) {
		t.Fatalf("expected ErrNoHeartbeat, got %v", err)
	}
}

func TestRedisRegistry_Remove(t *testing.T) {
	ctx := context.Background()
	reg := liveness.NewRedis(setupRedis(t), time.Minute)

	if err := reg.Beat(ctx, "task-1"); err != nil {
		t.Fatalf("beat: %v", err)
	}
	if err := reg.Remove(ctx, "task-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := reg.LastBeat(ctx, "task-1"); !errors.Is(err, liveness.ErrNoHeartbeat) {
		t.Fatalf("expected ErrNoHeartbeat after remove, got %v", err)
	}

	// Removing an absent heartbeat is not an error.
	if err := reg.Remove(ctx, "task-1"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestRedisRegistry_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	reg := liveness.NewRedis(setupRedis(t), 200*time.Millisecond)

	if err := reg.Beat(ctx, "task-1"); err != nil {
		t.Fatalf("beat: %v", err)
	}
	if _, err := reg.LastBeat(ctx, "task-1"); err != nil {
		t.Fatalf("last beat before expiry: %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	if _, err := reg.LastBeat(ctx, "task-1"); !errors.Is(err, liveness.ErrNoHeartbeat) {
		t.Fatalf("expected ErrNoHeartbeat after TTL, got %v", err)
	}
}
