// Package app wires configuration, the Cache Store, the host, the
// navigation runtime, the harness bridge and the edge server together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"realm/internal/bridge"
	"realm/internal/cache"
	"realm/internal/config"
	"realm/internal/host"
	"realm/internal/host/rodhost"
	"realm/internal/module"
	"realm/internal/navigation"
	"realm/internal/server"
	"realm/internal/shell"
	"realm/internal/transport"
)

type App struct {
	cfg     *config.Config
	log     *slog.Logger
	store   cache.Store
	host    host.Host
	runtime *navigation.Runtime
	bridge  *bridge.Bridge
	handler http.Handler
	server  *server.Server
	closers []io.Closer
}

// New loads the configuration from the environment and builds the App.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, nil)
}

// NewWithConfig builds the App from cfg. A nil logger logs text to stderr
// at cfg.LogLevel.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.LogLevel)
	}
	a := &App{cfg: cfg, log: logger}

	store, closers, err := OpenStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	a.store, a.closers = store, closers
	logger.Info("cache store ready", "backend", cfg.Cache.Backend, "layered", cfg.Cache.Layered)

	h, err := a.openHost(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.host = h

	tr, err := transport.NewHTTP(transport.Config{
		BaseURL: cfg.Origin,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	registry := module.NewRegistry()
	for _, id := range cfg.Modules {
		if err := registry.Register(id, module.Static(id, logger)); err != nil {
			a.closeAll()
			return nil, err
		}
	}

	a.bridge = bridge.New(logger)
	a.runtime, err = navigation.New(navigation.Config{
		Host:           h,
		Transport:      tr,
		Store:          store,
		Registry:       registry,
		Parent:         a.bridge,
		Logger:         logger,
		BuildHash:      cfg.BuildHash,
		LoadingDelay:   cfg.LoadingDelay,
		ShutdownPolls:  cfg.ShutdownPolls,
		RequestTimeout: cfg.RequestTimeout,
		DisableCaching: cfg.DisableCaching,
		CancelStale:    cfg.CancelStale,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	a.bridge.Bind(a.runtime)

	edge, err := shell.NewEdge(shell.EdgeConfig{
		Origin: cfg.Origin,
		Store:  store,
		Online: h.Online,
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build edge: %w", err)
	}
	a.handler = server.Routes(a.bridge, edge)
	a.server = server.New(cfg.Addr, a.handler, logger)
	return a, nil
}

func (a *App) openHost(ctx context.Context) (host.Host, error) {
	hc := a.cfg.Host
	switch hc.Kind {
	case config.HostRod:
		if strings.TrimSpace(a.cfg.Origin) == "" {
			return nil, errors.New("rod host requires an origin")
		}
		h, err := rodhost.Open(ctx, rodhost.Config{
			RemoteURL: hc.RemoteURL,
			Stealth:   hc.Stealth,
			Timeout:   a.cfg.RequestTimeout,
			Logger:    a.log,
		}, a.cfg.Origin)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, h)
		return h, nil
	default:
		opts := []host.HeadlessOption{host.WithFrameInterval(a.cfg.FrameInterval)}
		if hc.Hostname != "" {
			opts = append(opts, host.WithHostname(hc.Hostname))
		}
		return host.NewHeadless(opts...), nil
	}
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Store() cache.Store { return a.store }
func (a *App) Host() host.Host { return a.host }
func (a *App) Runtime() *navigation.Runtime { return a.runtime }
func (a *App) Bridge() *bridge.Bridge { return a.bridge }
func (a *App) Handler() http.Handler { return a.handler }
func (a *App) Logger() *slog.Logger { return a.log }

// Start boots the runtime on the host's current page and serves until
// Shutdown.
func (a *App) Start(ctx context.Context) error {
	a.runtime.Start(ctx)
	return a.server.Start()
}

// Serve is Start on an existing listener.
func (a *App) Serve(ctx context.Context, l net.Listener) error {
	a.runtime.Start(ctx)
	return a.server.Serve(l)
}

// Shutdown stops the server, then drains the runtime and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if werr := a.runtime.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	a.Close()
	return err
}

// Close releases the runtime and every backend without waiting.
func (a *App) Close() {
	if a.runtime != nil {
		a.runtime.Close()
	}
	a.closeAll()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// NewLogger returns a text logger on stderr at level (debug, info, warn,
// error). Unknown levels mean info.
func NewLogger(level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
