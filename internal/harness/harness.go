// Package harness holds the wire types exchanged between the runtime and a
// parent test harness driving it through the bridge.
package harness

import (
	"context"
	"encoding/json"
	"sync"
)

// Action is the command verb sent by the harness.
type Action string

const (
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionLoad     Action = "load"
	ActionRender   Action = "render"
)

// Command is a single harness instruction.
type Command struct {
	Action  Action          `json:"action"`
	URL     string          `json:"url,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	ID      string          `json:"id,omitempty"`
	Elm     string          `json:"elm,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

// TestContext is the command that put the runtime under harness control.
type TestContext = Command

// Kind names an event reported back to the harness.
type Kind string

const (
	Started   Kind = "Started"
	BadElm    Kind = "BadElm"
	BadServer Kind = "BadServer"
	TestDone  Kind = "TestDone"
)

type Event struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message,omitempty"`
	Flags   map[string]any `json:"flags,omitempty"`
}

// Emitter receives event batches. Implementations must not block for long.
type Emitter interface {
	Emit(events ...Event)
}

// Parent is the frame embedding the runtime: it receives event batches and
// the raw values a module relays through its toIframe port.
type Parent interface {
	Emitter
	Relay(value any)
}

// Discard drops everything.
var Discard Parent = discard{}

type discard struct{}

func (discard) Emit(...Event) {}
func (discard) Relay(any)     {}

// Recorder keeps every emitted batch and relayed value in memory.
type Recorder struct {
	mu      sync.Mutex
	batches [][]Event
	relayed []any
	notify  chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{})}
}

func (r *Recorder) Emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	r.batches = append(r.batches, append([]Event(nil), events...))
	if r.notify == nil {
		r.notify = make(chan struct{})
	}
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
}

func (r *Recorder) Relay(value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relayed = append(r.relayed, value)
}

// Relayed returns the relayed values in order.
func (r *Recorder) Relayed() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.relayed...)
}

// Batches returns every batch in emission order.
func (r *Recorder) Batches() [][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Event, len(r.batches))
	copy(out, r.batches)
	return out
}

// Events flattens the recorded batches.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

// Wait blocks until an event of kind has been recorded or ctx is done.
func (r *Recorder) Wait(ctx context.Context, kind Kind) (Event, error) {
	for {
		r.mu.Lock()
		for _, b := range r.batches {
			for _, ev := range b {
				if ev.Kind == kind {
					r.mu.Unlock()
					return ev, nil
				}
			}
		}
		if r.notify == nil {
			r.notify = make(chan struct{})
		}
		ch := r.notify
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
