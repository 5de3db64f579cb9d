// Package module defines the contract between the runtime and the compiled
// UI modules it mounts, plus the registry resolving dotted module ids.
package module

import (
	"sync"

	"realm/internal/ports"
)

// Flags is the object handed to a module's init.
type Flags = map[string]any

// Factory initialises a module with flags and returns the live instance.
type Factory func(flags Flags) (*Instance, error)

// Instance is a mounted module as seen by the runtime: its ports and a
// signal it resolves once it has torn itself down after a shutdown request.
type Instance struct {
	Ports ports.Set

	// Handle is the module's own value, opaque to the runtime.
	Handle any

	mu     sync.Mutex
	ack    chan struct{}
	closed bool
}

func NewInstance(p ports.Set) *Instance {
	if p == nil {
		p = ports.Set{}
	}
	return &Instance{Ports: p, ack: make(chan struct{})}
}

// AcknowledgeShutdown is called by the module once teardown is complete.
// Safe to call more than once.
func (i *Instance) AcknowledgeShutdown() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ack == nil {
		i.ack = make(chan struct{})
	}
	if !i.closed {
		i.closed = true
		close(i.ack)
	}
}

// ShutdownAcknowledged is closed after AcknowledgeShutdown.
func (i *Instance) ShutdownAcknowledged() <-chan struct{} {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ack == nil {
		i.ack = make(chan struct{})
	}
	return i.ack
}
