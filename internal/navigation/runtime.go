// Package navigation is the page runtime: it races the cache, the CDN and
// the authenticated origin for every navigation, applies responses under a
// precedence rule and swaps the mounted module.
package navigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"realm/internal/cache"
	"realm/internal/harness"
	"realm/internal/host"
	"realm/internal/module"
	"realm/internal/page"
	"realm/internal/ports"
	"realm/internal/transport"
)

var (
	// ErrModuleNotFound is returned when a response names a module the
	// registry does not know.
	ErrModuleNotFound = errors.New("navigation: module not found")
	// ErrBadServer wraps response bodies that are not valid page JSON.
	ErrBadServer = errors.New("navigation: bad server response")
	// ErrUnexpectedModule is returned under a harness when the response
	// names a different module than the one the test expects.
	ErrUnexpectedModule = errors.New("navigation: unexpected module")
)

const (
	// UserCookie marks a logged in session.
	UserCookie = "ud"
	// ShutdownSentinel is the element a module creates once torn down.
	ShutdownSentinel = "appShutdownEmptyElement"
)

// Hooks are optional callbacks into the embedding application.
type Hooks struct {
	// OnShutdown runs after the current module was asked to shut down.
	OnShutdown func()
	// OnInit runs after a module has been mounted.
	OnInit func(id string, flags module.Flags, inst *module.Instance)
}

type Config struct {
	Host      host.Host
	Transport transport.Transport
	// Store is the Cache Store; nil runs without one.
	Store    cache.Store
	Registry *module.Registry
	// Parent receives harness events and toIframe relays. Nil drops them.
	Parent harness.Parent
	Hooks  Hooks
	Logger *slog.Logger

	// BuildHash is the fingerprint of the running client build.
	BuildHash string
	// LoadingDelay is how long a navigation may take before the module is
	// told to show its loading indicator.
	LoadingDelay time.Duration
	// ShutdownPolls bounds the frames spent waiting for a shutdown ack.
	ShutdownPolls  int
	RequestTimeout time.Duration
	// DisableCaching queries only the authenticated origin.
	DisableCaching bool
	// CancelStale aborts the requests of a superseded navigation instead
	// of only ignoring their responses.
	CancelStale bool
	// ExtraPorts are handlers for application specific outgoing ports.
	ExtraPorts map[ports.Name]func(any)
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Parent == nil {
		c.Parent = harness.Discard
	}
	if c.Registry == nil {
		c.Registry = module.NewRegistry()
	}
	if c.LoadingDelay <= 0 {
		c.LoadingDelay = 300 * time.Millisecond
	}
	if c.ShutdownPolls <= 0 {
		c.ShutdownPolls = 10
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// navContext is one navigation attempt.
type navContext struct {
	id     uuid.UUID
	best   page.Mode
	ctx    context.Context
	cancel context.CancelFunc
}

// app is the mounted module plus the runtime's bookkeeping about it.
type app struct {
	id   string
	inst *module.Instance

	shuttingDown   bool
	cancelLoading  bool
	showingLoading bool

	unsubscribe []func()
}

// Runtime owns the navigation state of one page.
type Runtime struct {
	cfg      Config
	host     host.Host
	tr       transport.Transport
	store    cache.Store
	writer   *cache.Async
	registry *module.Registry
	parent   harness.Parent
	log      *slog.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// mountMu serialises teardown and mount.
	mountMu sync.Mutex

	mu        sync.Mutex
	nav       *navContext
	current   *app
	testCtx   *harness.TestContext
	user      any
	firstLoad bool
	dev       bool
	domain    string
}

func New(cfg Config) (*Runtime, error) {
	if cfg.Host == nil {
		return nil, errors.New("navigation: host is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("navigation: transport is required")
	}
	cfg.defaults()

	base, stop := context.WithCancel(context.Background())
	r := &Runtime{
		cfg:       cfg,
		host:      cfg.Host,
		tr:        cfg.Transport,
		store:     cfg.Store,
		registry:  cfg.Registry,
		parent:    cfg.Parent,
		log:       cfg.Logger,
		base:      base,
		stop:      stop,
		firstLoad: true,
	}
	if cfg.Store != nil {
		r.writer = cache.NewAsync(cfg.Store, cache.AsyncConfig{Logger: cfg.Logger})
	}
	return r, nil
}

// LoadUser seeds the user snapshot from the Cache Store, which is what a
// fresh page does before its first navigation when the session cookie is
// present. Without the cookie the stored snapshot is purged.
func (r *Runtime) LoadUser(ctx context.Context) {
	if r.store == nil {
		return
	}
	if !r.host.HasCookie(UserCookie) {
		r.log.Info("navigation: no session, purging user snapshot")
		r.writer.Delete(cache.UserDataKey)
		return
	}
	raw, ok, err := r.store.Get(ctx, cache.UserDataKey)
	if err != nil {
		r.log.Warn("navigation: read user snapshot", "error", err)
		return
	}
	if !ok {
		return
	}
	user, err := decodeJSON(raw)
	if err != nil {
		r.log.Warn("navigation: cached user snapshot is not json", "error", err)
		return
	}
	r.mu.Lock()
	r.user = user
	r.mu.Unlock()
}

// SetTestContext puts the runtime under harness control.
func (r *Runtime) SetTestContext(tc *harness.TestContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.testCtx = tc
}

func (r *Runtime) TestContext() *harness.TestContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.testCtx
}

// Current returns the id and instance of the mounted module, if any.
func (r *Runtime) Current() (string, *module.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return "", nil
	}
	return r.current.id, r.current.inst
}

// Context returns the active navigation context id and the best mode
// applied to it so far.
func (r *Runtime) Context() (uuid.UUID, page.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nav == nil {
		return uuid.Nil, page.ModeNothing
	}
	return r.nav.id, r.nav.best
}

// User returns the current user snapshot.
func (r *Runtime) User() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// Wait blocks until every request and port handler started so far has
// finished, and queued cache writes are applied.
func (r *Runtime) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.writer.Flush(ctx)
}

// Close cancels in-flight work and drains the cache writer.
func (r *Runtime) Close() {
	r.stop()
	r.wg.Wait()
	r.writer.Close()
}

func (r *Runtime) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// newContext makes a fresh navigation context current.
func (r *Runtime) newContext() *navContext {
	nc := &navContext{id: uuid.New(), best: page.ModeNothing, ctx: r.base}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.CancelStale {
		if r.nav != nil && r.nav.cancel != nil {
			r.nav.cancel()
		}
		nc.ctx, nc.cancel = context.WithCancel(r.base)
	}
	r.nav = nc
	return nc
}

// staleLocked reports whether a response for id at mode lost to the
// current context.
func (r *Runtime) staleLocked(id uuid.UUID, mode page.Mode) bool {
	if r.nav == nil {
		return false
	}
	if id != uuid.Nil && r.nav.id != id {
		return true
	}
	return mode != page.ModeNothing && r.nav.best > mode
}

func (r *Runtime) stale(id uuid.UUID, mode page.Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleLocked(id, mode)
}

// emit reports events to the parent frame when under harness control.
func (r *Runtime) emit(events ...harness.Event) {
	if r.TestContext() == nil {
		return
	}
	r.parent.Emit(events...)
}
