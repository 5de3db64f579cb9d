package module

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrEmptyID is returned when registering a factory without an id.
	ErrEmptyID = errors.New("module(registry): empty module id")
	// ErrNilFactory is returned when registering a nil factory.
	ErrNilFactory = errors.New("module(registry): nil factory")
	// ErrConflictingRegistration indicates an attempt to register a second,
	// different factory under an id that is already taken.
	ErrConflictingRegistration = errors.New("module(registry): conflicting registration")
)

// Registry maps dotted module ids ("Pages.Index") to factories. Lookups are
// plain key equality.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds id to f. Registering the same factory twice is a no-op.
func (r *Registry) Register(id string, f Factory) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}
	if f == nil {
		return ErrNilFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if prev, ok := r.factories[id]; ok {
		if sameFactory(prev, f) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConflictingRegistration, id)
	}
	r.factories[id] = f
	return nil
}

// MustRegister is Register for start-up code.
func (r *Registry) MustRegister(id string, f Factory) {
	if err := r.Register(id, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(id string) (Factory, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.TrimSpace(id)]
	return f, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sameFactory(a, b Factory) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
