package module

import (
	"log/slog"

	"realm/internal/ports"
)

// Static returns a factory for a module that renders nothing. It exposes the
// incoming ports, logs what it receives, and acknowledges a shutdown
// request right away. The CLI mounts it for every id listed in its config.
func Static(id string, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(flags Flags) (*Instance, error) {
		p := ports.NewSet(
			ports.Shutdown,
			ports.OnUnloading,
			ports.ViewPortChanged,
			ports.OnScroll,
			ports.Navigate,
			ports.Submit,
		)
		inst := NewInstance(p)
		inst.Handle = flags

		logger.Info("module: mounted", "id", id, "title", flags["title"], "url", flags["url"])
		p[ports.Shutdown].Subscribe(func(any) {
			logger.Info("module: shutdown", "id", id)
			inst.AcknowledgeShutdown()
		})
		p[ports.OnUnloading].Subscribe(func(v any) {
			logger.Debug("module: loading indicator", "id", id, "showing", v)
		})
		p[ports.ViewPortChanged].Subscribe(func(v any) {
			logger.Debug("module: viewport changed", "id", id, "viewport", v)
		})
		return inst, nil
	}
}
