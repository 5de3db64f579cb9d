package navigation

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"realm/internal/harness"
	"realm/internal/module"
	"realm/internal/page"
	"realm/internal/ports"
)

// present swaps the mounted module for the one resp names. Teardown and
// mount are serialised so at most one module is live at any time.
func (r *Runtime) present(resp *page.Response, expectedURL string, isSubmit, isPop bool, mode page.Mode, contextID uuid.UUID) error {
	r.mountMu.Lock()
	defer r.mountMu.Unlock()

	if r.stale(contextID, mode) {
		r.log.Debug("navigation: stale before mount, ignoring", "url", expectedURL)
		return nil
	}

	old := r.shutdownCurrent()
	if !r.waitShutdown(old, contextID, mode, true) {
		r.log.Debug("navigation: superseded while waiting for shutdown", "url", expectedURL)
		return nil
	}
	r.unmount(old)

	if r.stale(contextID, mode) {
		r.log.Debug("navigation: superseded after shutdown, ignoring", "url", expectedURL)
		return nil
	}

	if target, ok := r.crossHost(resp.URL); ok {
		r.log.Info("navigation: response points to another host", "url", target)
		r.host.Assign(target)
		return nil
	}

	found := resp.FoundURL()
	pushed := false
	if found != expectedURL {
		if resp.Replace != "" {
			r.host.ReplaceState(resp.Replace)
		} else {
			r.host.PushState(resp.URL)
			pushed = true
		}
	}
	if isSubmit && found != expectedURL && !pushed {
		r.host.PushState(resp.URL)
	}

	if !isSubmit && r.cfg.BuildHash != "" && page.HashNewer(resp.Hash, r.cfg.BuildHash) && r.host.Online() {
		r.log.Info("navigation: newer build on server, reloading", "server", resp.Hash, "client", r.cfg.BuildHash)
		r.host.Reload()
		return nil
	}

	id := resp.ID
	flags := resp.Flags()
	if found == page.OfflineAppURL {
		offline := page.Offline(expectedURL, r.User())
		id, flags = offline.ID, offline.Flags()
		r.log.Info("navigation: using offline page", "url", expectedURL)
	}
	flags = r.attachEnv(flags)

	if tc := r.TestContext(); tc != nil {
		r.parent.Emit(harness.Event{Kind: harness.Started, Flags: flags})
		if tc.Elm != id {
			r.parent.Emit(
				harness.Event{Kind: harness.BadElm, Message: "Expected: " + tc.Elm + " got: " + id},
				harness.Event{Kind: harness.TestDone},
			)
			return fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedModule, tc.Elm, id)
		}
		var testContext any
		if len(tc.Context) > 0 {
			v, err := decodeJSON(tc.Context)
			if err != nil {
				r.log.Warn("navigation: test context is not json", "error", err)
			}
			testContext = v
		}
		id = resp.ID + "Test"
		flags = r.attachEnv(module.Flags{
			"id":      tc.ID,
			"title":   resp.Title,
			"config":  resp.Config,
			"context": testContext,
		})
	}

	return r.mount(id, flags, !isPop, contextID, mode)
}

// Render mounts the module data.id with data as flags, superseding any
// navigation in flight.
func (r *Runtime) Render(data any) error {
	var flags module.Flags
	if err := ports.Decode(data, &flags); err != nil {
		return fmt.Errorf("navigation: render data: %w", err)
	}
	id, _ := flags["id"].(string)

	r.mountMu.Lock()
	defer r.mountMu.Unlock()

	nc := r.newContext()
	old := r.shutdownCurrent()
	r.waitShutdown(old, uuid.Nil, page.ModeNothing, false)
	r.unmount(old)

	flags = r.attachEnv(flags)
	r.enableScrolling()
	return r.mount(id, flags, false, nc.id, page.ModeNothing)
}

// shutdownCurrent asks the mounted module to tear down and returns it.
func (r *Runtime) shutdownCurrent() *app {
	r.mu.Lock()
	a := r.current
	if a == nil {
		r.mu.Unlock()
		return nil
	}
	_, hasPort := a.inst.Ports.Get(ports.Shutdown)
	if hasPort {
		a.shuttingDown = true
	}
	r.mu.Unlock()

	if !hasPort {
		r.log.Debug("navigation: module has no shutdown port", "module", a.id)
		return a
	}
	r.log.Debug("navigation: sending shutdown", "module", a.id)
	a.inst.Ports.Send(ports.Shutdown, nil)
	if r.cfg.Hooks.OnShutdown != nil {
		r.cfg.Hooks.OnShutdown()
	}
	return a
}

// waitShutdown waits one frame at a time for a to acknowledge its shutdown,
// giving up after ShutdownPolls frames. With checkStale it reports false as
// soon as the navigation it serves is superseded.
func (r *Runtime) waitShutdown(a *app, contextID uuid.UUID, mode page.Mode, checkStale bool) bool {
	if a == nil {
		return true
	}
	for attempts := 0; ; attempts++ {
		if checkStale && r.stale(contextID, mode) {
			return false
		}
		if r.acknowledged(a) {
			return true
		}
		if attempts >= r.cfg.ShutdownPolls {
			r.log.Warn("navigation: module did not acknowledge shutdown, proceeding",
				"module", a.id, "attempts", attempts)
			return true
		}
		if err := r.host.NextFrame(r.base); err != nil {
			return false
		}
	}
}

func (r *Runtime) acknowledged(a *app) bool {
	select {
	case <-a.inst.ShutdownAcknowledged():
		return true
	default:
	}
	return r.host.ElementExists(ShutdownSentinel)
}

// unmount drops a's subscriptions and clears it as the current module.
func (r *Runtime) unmount(a *app) {
	if a == nil {
		return
	}
	r.mu.Lock()
	if r.current == a {
		r.current = nil
	}
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	r.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
}

// mount creates and wires module id. The module only becomes current if
// contextID is still the current navigation once it is wired; otherwise it
// is shut down again and dropped.
func (r *Runtime) mount(id string, flags module.Flags, scrollTop bool, contextID uuid.UUID, mode page.Mode) error {
	if r.stale(contextID, mode) {
		r.log.Debug("navigation: superseded before mount, ignoring", "id", id)
		return nil
	}
	factory, ok := r.registry.Lookup(id)
	if !ok {
		r.log.Error("navigation: no module found", "id", id)
		r.emit(
			harness.Event{Kind: harness.BadElm, Message: "No app found for: " + id},
			harness.Event{Kind: harness.TestDone},
		)
		return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	inst, err := factory(flags)
	if err != nil {
		return fmt.Errorf("navigation: init %s: %w", id, err)
	}
	if inst == nil {
		inst = module.NewInstance(nil)
	}

	a := &app{id: id, inst: inst}
	a.unsubscribe = r.wire(a)

	r.mu.Lock()
	if r.staleLocked(contextID, mode) {
		r.mu.Unlock()
		r.log.Debug("navigation: superseded while mounting, dropping", "id", id)
		r.discard(a)
		return nil
	}
	r.current = a
	r.mu.Unlock()

	if scrollTop {
		r.host.ScrollToTop()
	}

	if r.cfg.Hooks.OnInit != nil {
		r.cfg.Hooks.OnInit(id, flags, inst)
	}
	r.log.Info("navigation: mounted", "id", id)
	return nil
}

// discard tears down a module that never became current.
func (r *Runtime) discard(a *app) {
	if _, ok := a.inst.Ports.Get(ports.Shutdown); ok {
		a.inst.Ports.Send(ports.Shutdown, nil)
	}
	r.unmount(a)
}

// crossHost reports whether raw is an absolute url on another host.
func (r *Runtime) crossHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return "", false
	}
	return raw, u.Hostname() != r.host.Hostname()
}
