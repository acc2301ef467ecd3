package jobmanager

import "time"

// Config holds configuration for the Manager and its periodic sweeps.
type Config struct {
	// ExpireInterval is how often the expiration sweep runs.
	ExpireInterval time.Duration

	// ReleaseInterval is how often the inactive-task release pass runs.
	ReleaseInterval time.Duration

	// InactiveAfter is how long an In-Progress task may go without an
	// update before it is considered a release candidate. The liveness
	// registry is still consulted before the task is actually released.
	InactiveAfter time.Duration

	// RaiseAttempts controls whether releasing a task back to Pending
	// increments its attempts counter.
	RaiseAttempts bool

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExpireInterval:  1 * time.Minute,
		ReleaseInterval: 30 * time.Second,
		InactiveAfter:   5 * time.Minute,
		RaiseAttempts:   true,
		ShutdownTimeout: 30 * time.Second,
	}
}
