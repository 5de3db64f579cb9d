package navigation

import (
	"time"

	"realm/internal/ports"
)

// showLoading arms the loading indicator of the mounted module. After
// LoadingDelay the module gets onUnloading(true) unless it is shutting down
// or cancelled the indicator in the meantime.
func (r *Runtime) showLoading() {
	r.mu.Lock()
	a := r.current
	r.mu.Unlock()
	if a == nil {
		r.log.Debug("navigation: no module to show loading on")
		return
	}

	time.AfterFunc(r.cfg.LoadingDelay, func() {
		if r.base.Err() != nil {
			return
		}
		r.mu.Lock()
		if a.shuttingDown || a.cancelLoading {
			r.mu.Unlock()
			r.log.Debug("navigation: loading indicator suppressed", "module", a.id)
			return
		}
		if _, ok := a.inst.Ports.Get(ports.OnUnloading); !ok {
			r.mu.Unlock()
			return
		}
		a.showingLoading = true
		r.mu.Unlock()
		a.inst.Ports.Send(ports.OnUnloading, true)
	})
}

// cancelLoading retracts a visible indicator or pre-empts a pending one.
func (r *Runtime) cancelLoading(a *app) {
	r.mu.Lock()
	if !a.showingLoading {
		a.cancelLoading = true
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	a.inst.Ports.Send(ports.OnUnloading, false)
}
