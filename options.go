package jobmanager

import (
	"context"
	"log/slog"
)

// Option configures a Manager.
type Option func(*Manager) error

// Storer is the minimal store interface held by the Manager. It covers
// lifecycle operations only; the job.Store and task.Store contracts are
// consumed by the layers that do not create import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// sweepRunner is an internal interface for the sweeper lifecycle.
type sweepRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager is the top-level coordinator: it owns the store handle and the
// periodic sweeper, and drives their startup and shutdown.
//
// Create one with New() and functional options. The HTTP layer and the
// sweeper consume the store contracts directly; the Manager only wires
// lifecycles together.
type Manager struct {
	config  Config
	logger  *slog.Logger
	store   Storer
	sweeper sweepRunner

	started bool
}

// New creates a new Manager with the given options.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Store returns the manager's store.
func (m *Manager) Store() Storer { return m.store }

// Config returns a copy of the manager's configuration.
func (m *Manager) Config() Config { return m.config }

// SetSweeper sets the periodic sweeper (wired by the caller to avoid an
// import cycle between the root package and the sweeper package).
func (m *Manager) SetSweeper(s sweepRunner) { m.sweeper = s }

// Start verifies store connectivity and begins the periodic sweeps.
func (m *Manager) Start(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}
	if err := m.store.Ping(ctx); err != nil {
		return err
	}
	if m.sweeper != nil {
		if err := m.sweeper.Start(ctx); err != nil {
			return err
		}
	}
	m.started = true
	return nil
}

// Stop gracefully shuts down the sweeper and closes the store.
func (m *Manager) Stop(ctx context.Context) error {
	if m.sweeper != nil && m.started {
		if err := m.sweeper.Stop(ctx); err != nil {
			m.logger.Error("sweeper stop error", "error", err)
		}
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// WithConfig replaces the manager's configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) error {
		m.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the manager.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the manager.
func WithStore(s Storer) Option {
	return func(m *Manager) error {
		m.store = s
		return nil
	}
}
