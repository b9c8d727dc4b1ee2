// Package component defines the lifecycle contract shared by ppwatch's
// long-running pieces (watcher sources, the bot) and a small manager that
// starts them in dependency order and stops them in reverse.
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during a lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Component defines the unified lifecycle pattern:
//   - Initialize() error                 // Setup/create only, NO context
//   - Start(ctx context.Context) error   // Start with context passed through
//   - Stop(timeout time.Duration) error  // Graceful shutdown with timeout
//
// The component never stores the context it receives; the Manager owns the
// per-component child context so individual components can be cancelled.
type Component interface {
	Name() string
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// managed tracks a component together with its child context
type managed struct {
	component Component
	state     State
	cancel    context.CancelFunc
	lastError error
}
