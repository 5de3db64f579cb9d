// Package ports implements the named channels a mounted module uses to talk
// to the runtime and the runtime uses to talk back.
package ports

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Name identifies a port on a module instance.
type Name string

// Outgoing ports: the module publishes, the runtime subscribes.
const (
	Navigate             Name = "navigate"
	Submit               Name = "submit"
	ChangePage           Name = "changePage"
	SetLoading           Name = "setLoading"
	CancelLoading        Name = "cancelLoading"
	ScrollIntoView       Name = "scrollIntoView"
	SetSessionStorage    Name = "setSessionStorage"
	SetLocalStorage      Name = "setLocalStorage"
	DeleteSessionStorage Name = "deleteSessionStorage"
	CopyToClipboard      Name = "copyToClipboard"
	DisableScrolling     Name = "disableScrolling"
	EnableScrolling      Name = "enableScrolling"
	ToIframe             Name = "toIframe"
	TriggerReload        Name = "triggerReload"
	TriggerClassReload   Name = "triggerClassReload"
)

// Incoming ports: the runtime sends, the module subscribes.
const (
	Shutdown        Name = "shutdown"
	OnUnloading     Name = "onUnloading"
	ViewPortChanged Name = "viewPortChanged"
	OnScroll        Name = "onScroll_"
)

type subscriber struct {
	id int
	fn func(any)
}

// Channel is a publish/subscribe port. Send delivers synchronously to every
// subscriber, in subscription order, on the caller's goroutine.
type Channel struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

func NewChannel() *Channel {
	return &Channel{}
}

// Subscribe registers fn and returns a function removing it again.
func (c *Channel) Subscribe(fn func(any)) func() {
	if c == nil || fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Channel) Send(v any) {
	if c == nil {
		return
	}
	c.mu.RLock()
	subs := append([]subscriber(nil), c.subs...)
	c.mu.RUnlock()
	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribers returns the number of live subscriptions.
func (c *Channel) Subscribers() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Set is the optional-capability map of a module's ports. A missing entry
// means the module does not expose that port.
type Set map[Name]*Channel

// NewSet creates a set holding a fresh channel for every name.
func NewSet(names ...Name) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = NewChannel()
	}
	return s
}

func (s Set) Get(name Name) (*Channel, bool) {
	if s == nil {
		return nil, false
	}
	ch, ok := s[name]
	return ch, ok && ch != nil
}

// Send sends v on name if the port exists and reports whether it did.
func (s Set) Send(name Name, v any) bool {
	ch, ok := s.Get(name)
	if !ok {
		return false
	}
	ch.Send(v)
	return true
}

// Decode converts a port value into out. Values arrive as whatever the
// sender passed: typed structs, maps, strings or raw JSON.
func Decode(v any, out any) error {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("ports: encode value: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ports: decode value: %w", err)
	}
	return nil
}
