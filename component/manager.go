package component

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericpp/ppwatch/errors"
)

// Manager owns component lifecycle: initialization and startup happen in
// registration order, shutdown in reverse. Each component gets its own
// child context so the manager can cancel them individually.
type Manager struct {
	mu         sync.Mutex
	components []*managed
	logger     *slog.Logger
	started    bool
}

// NewManager creates an empty component manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a component. Registration order is start order.
func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, &managed{component: c, state: StateCreated})
}

// StartAll initializes and starts every registered component in order.
// The first failure aborts startup and stops the components already started.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.ErrAlreadyStarted
	}

	for i, mc := range m.components {
		name := mc.component.Name()

		if err := mc.component.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			m.stopStartedLocked(i, 5*time.Second)
			return errors.Wrap(err, "Manager", "StartAll", "initialize "+name)
		}
		mc.state = StateInitialized

		childCtx, cancel := context.WithCancel(ctx)
		mc.cancel = cancel

		if err := mc.component.Start(childCtx); err != nil {
			cancel()
			mc.state = StateFailed
			mc.lastError = err
			m.stopStartedLocked(i, 5*time.Second)
			return errors.Wrap(err, "Manager", "StartAll", "start "+name)
		}
		mc.state = StateStarted
		m.logger.Info("component started", "component", name)
	}

	m.started = true
	return nil
}

// StopAll stops every started component in reverse order, cancelling each
// component's context before calling Stop. Errors are logged, not returned;
// shutdown always proceeds through the full list.
func (m *Manager) StopAll(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopStartedLocked(len(m.components), timeout)
	m.started = false
}

// stopStartedLocked stops components[0:n] in reverse order. Caller holds mu.
func (m *Manager) stopStartedLocked(n int, timeout time.Duration) {
	for i := n - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}

		name := mc.component.Name()
		if mc.cancel != nil {
			mc.cancel()
		}
		if err := mc.component.Stop(timeout); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			m.logger.Error("component stop failed", "component", name, "error", err)
			continue
		}
		mc.state = StateStopped
		m.logger.Info("component stopped", "component", name)
	}
}

// States returns a snapshot of component names and lifecycle states
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		states[mc.component.Name()] = mc.state
	}
	return states
}
