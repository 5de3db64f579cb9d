package navigation

import (
	"encoding/json"
	"time"

	"realm/internal/module"
	"realm/internal/ports"
)

// attachEnv adds the viewport and runtime attributes every module expects
// in its flags.
func (r *Runtime) attachEnv(flags module.Flags) module.Flags {
	if flags == nil {
		flags = module.Flags{}
	}
	env := r.host.Environment()
	r.mu.Lock()
	dev, domain := r.dev, r.domain
	r.mu.Unlock()

	flags["width"] = env.Width
	flags["height"] = env.Height
	flags["iphoneX"] = env.IPhoneX
	flags["notch"] = env.Notch
	flags["darkMode"] = env.DarkMode
	flags["now"] = time.Now().UnixMilli()
	flags["dev"] = dev
	flags["domain"] = domain
	return flags
}

// ViewportChanged tells the mounted module about the new viewport.
func (r *Runtime) ViewportChanged() {
	r.mu.Lock()
	a := r.current
	r.mu.Unlock()
	if a == nil {
		return
	}
	env := r.host.Environment()
	a.inst.Ports.Send(ports.ViewPortChanged, map[string]any{
		"width":  env.Width,
		"height": env.Height,
		"notch":  env.Notch,
	})
}

func decodeJSON(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
