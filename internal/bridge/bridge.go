// Package bridge connects the runtime to a parent test harness: commands
// come in, event batches and relayed module values go out.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"realm/internal/harness"
)

var (
	ErrUnknownAction = errors.New("bridge: unknown action")
	ErrNotBound      = errors.New("bridge: no runtime bound")
)

// Runtime is the part of the navigation runtime a harness drives.
type Runtime interface {
	SetTestContext(tc *harness.TestContext)
	Navigate(u string, isPop, initial bool)
	Submit(payload any) error
	LoadDocument() error
	Render(data any) error
}

// Frame kinds.
const (
	FrameEvents = "events"
	FrameRelay  = "relay"
	FrameAck    = "ack"
	FrameError  = "error"
	FramePong   = "pong"
	// FrameReady opens a connect event stream.
	FrameReady  = "ready"
)

// Frame is one outbound message to a harness.
type Frame struct {
	Type    string          `json:"type"`
	Action  harness.Action  `json:"action,omitempty"`
	Events  []harness.Event `json:"events,omitempty"`
	Value   any             `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}

const subscriberBuffer = 64

// Bridge dispatches harness commands to a Runtime and fans everything the
// runtime reports out to the attached harness connections. It is the
// runtime's harness.Parent.
type Bridge struct {
	log *slog.Logger

	mu     sync.RWMutex
	rt     Runtime
	nextID int
	subs   map[int]chan Frame
}

func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{log: logger, subs: map[int]chan Frame{}}
}

// Bind sets the runtime commands are dispatched to.
func (b *Bridge) Bind(rt Runtime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rt = rt
}

func (b *Bridge) runtime() (Runtime, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.rt == nil {
		return nil, ErrNotBound
	}
	return b.rt, nil
}

// Dispatch executes one harness command. navigate, submit and load put the
// runtime under harness control first.
func (b *Bridge) Dispatch(cmd harness.Command) error {
	rt, err := b.runtime()
	if err != nil {
		return err
	}
	b.log.Info("bridge: command", "action", cmd.Action, "url", cmd.URL, "elm", cmd.Elm)

	switch cmd.Action {
	case harness.ActionNavigate:
		tc := cmd
		rt.SetTestContext(&tc)
		rt.Navigate(cmd.URL, false, false)
		return nil
	case harness.ActionSubmit:
		tc := cmd
		rt.SetTestContext(&tc)
		return rt.Submit(cmd.Payload)
	case harness.ActionLoad:
		tc := cmd
		rt.SetTestContext(&tc)
		return rt.LoadDocument()
	case harness.ActionRender:
		return rt.Render(cmd.Data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

// Emit broadcasts an event batch.
func (b *Bridge) Emit(events ...harness.Event) {
	if len(events) == 0 {
		return
	}
	b.broadcast(Frame{Type: FrameEvents, Events: append([]harness.Event(nil), events...)})
}

// Relay broadcasts a value a module sent through its toIframe port.
func (b *Bridge) Relay(value any) {
	b.broadcast(Frame{Type: FrameRelay, Value: value})
}

func (b *Bridge) broadcast(f Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs) == 0 {
		b.log.Debug("bridge: no harness attached, dropping frame", "type", f.Type)
		return
	}
	for _, ch := range b.subs {
		push(ch, f)
	}
}

// Subscribe attaches a harness connection. The returned channel receives
// every frame broadcast until cancel is called.
func (b *Bridge) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, subscriberBuffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of attached connections.
func (b *Bridge) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// push delivers f, dropping the oldest queued frame when ch is full.
func push(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

var _ harness.Parent = (*Bridge)(nil)
