package navigation

import (
	"encoding/json"

	"realm/internal/ports"
)

type storageValue struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type sessionValue struct {
	Key   string `json:"key"`
	Value struct {
		Local   json.RawMessage `json:"local"`
		Session json.RawMessage `json:"session"`
	} `json:"value"`
}

// wire subscribes the runtime to the outgoing ports of a, returning the
// unsubscribe functions. Every handler runs on its own goroutine.
func (r *Runtime) wire(a *app) []func() {
	handlers := map[ports.Name]func(any){
		ports.Navigate: func(v any) {
			var u string
			if err := ports.Decode(v, &u); err != nil {
				r.log.Warn("navigation: navigate port", "error", err)
				return
			}
			r.Navigate(u, false, false)
		},
		ports.SetLoading: func(any) { r.showLoading() },
		ports.CancelLoading: func(any) { r.cancelLoading(a) },
		ports.Submit: func(v any) {
			if err := r.Submit(v); err != nil {
				r.log.Warn("navigation: submit port", "error", err)
			}
		},
		ports.ChangePage: func(v any) {
			if err := r.ChangePage(v); err != nil {
				r.log.Warn("navigation: changePage port", "error", err)
			}
		},
		ports.ToIframe: func(v any) {
			r.log.Debug("navigation: relaying to parent", "value", v)
			r.parent.Relay(v)
		},
		ports.DisableScrolling: func(any) { r.host.LockScroll(r.sendScroll) },
		ports.EnableScrolling:  func(any) { r.enableScrolling() },
		ports.CopyToClipboard: func(v any) {
			var text string
			if err := ports.Decode(v, &text); err != nil {
				r.log.Warn("navigation: copyToClipboard port", "error", err)
				return
			}
			if err := r.host.CopyToClipboard(text); err != nil {
				r.log.Warn("navigation: copy to clipboard failed", "error", err)
			}
		},
		ports.SetSessionStorage: func(v any) {
			var sv sessionValue
			if err := ports.Decode(v, &sv); err != nil {
				r.log.Warn("navigation: setSessionStorage port", "error", err)
				return
			}
			r.host.SetLocalStorage(sv.Key, jsonOrNull(sv.Value.Local))
			r.host.SetSessionStorage(sv.Key, jsonOrNull(sv.Value.Session))
		},
		ports.DeleteSessionStorage: func(v any) {
			var sv storageValue
			if err := ports.Decode(v, &sv); err != nil {
				r.log.Warn("navigation: deleteSessionStorage port", "error", err)
				return
			}
			r.host.SetSessionStorage(sv.Key, "null")
			r.host.SetLocalStorage(sv.Key, "null")
		},
		ports.SetLocalStorage: func(v any) {
			var sv storageValue
			if err := ports.Decode(v, &sv); err != nil {
				r.log.Warn("navigation: setLocalStorage port", "error", err)
				return
			}
			r.host.SetLocalStorage(sv.Key, jsonOrNull(sv.Value))
		},
		ports.ScrollIntoView: stringPort(r, ports.ScrollIntoView, r.host.ScrollIntoView),
		ports.TriggerReload:  stringPort(r, ports.TriggerReload, r.host.ReloadFrame),
		ports.TriggerClassReload: stringPort(r, ports.TriggerClassReload,
			r.host.ReloadFramesByClass),
	}
	for name, fn := range r.cfg.ExtraPorts {
		if _, builtin := handlers[name]; builtin {
			r.log.Warn("navigation: extra port shadows a builtin, ignoring", "port", name)
			continue
		}
		handlers[name] = fn
	}

	var unsubscribe []func()
	for name, fn := range handlers {
		ch, ok := a.inst.Ports.Get(name)
		if !ok || fn == nil {
			continue
		}
		fn := fn
		unsubscribe = append(unsubscribe, ch.Subscribe(func(v any) {
			r.spawn(func() { fn(v) })
		}))
	}
	return unsubscribe
}

func stringPort(r *Runtime, name ports.Name, fn func(string)) func(any) {
	return func(v any) {
		var s string
		if err := ports.Decode(v, &s); err != nil {
			r.log.Warn("navigation: bad port value", "port", name, "error", err)
			return
		}
		fn(s)
	}
}

// sendScroll forwards a scroll event to the mounted module.
func (r *Runtime) sendScroll() {
	r.mu.Lock()
	a := r.current
	r.mu.Unlock()
	if a == nil {
		return
	}
	a.inst.Ports.Send(ports.OnScroll, nil)
}

func (r *Runtime) enableScrolling() {
	r.host.UnlockScroll(r.sendScroll)
}

func jsonOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
