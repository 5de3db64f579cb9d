// Package rodhost implements host.Host on top of a Chrome tab driven by
// go-rod.
package rodhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"realm/internal/host"
)

const scrollBinding = "__realmOnScroll"

// Config controls how the browser is reached.
type Config struct {
	// RemoteURL is the DevTools websocket of a running Chrome. Empty launches
	// a local headless one.
	RemoteURL string
	Stealth   bool
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Host drives a single rod page.
type Host struct {
	page    *rod.Page
	browser *rod.Browser
	lnch    *launcher.Launcher
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	onScroll func()
	bound    bool
}

var _ host.Host = (*Host)(nil)

// Open connects to Chrome, opens a tab on pageURL and returns a Host for it.
func Open(ctx context.Context, cfg Config, pageURL string) (*Host, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	h := &Host{timeout: cfg.Timeout, log: cfg.Logger}
	wsURL := cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodhost: launch: %w", err)
		}
		wsURL = u
		h.lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		h.cleanup()
		return nil, fmt.Errorf("rodhost: connect: %w", err)
	}
	h.browser = b

	var (
		page *rod.Page
		err  error
	)
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		h.cleanup()
		return nil, fmt.Errorf("rodhost: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		_ = page.Close()
		h.cleanup()
		return nil, fmt.Errorf("rodhost: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		h.log.Warn("rodhost: wait load", "url", pageURL, "error", err)
	}
	h.page = page
	return h, nil
}

// New wraps an already open page.
func New(page *rod.Page, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{page: page, timeout: 30 * time.Second, log: logger}
}

func (h *Host) Page() *rod.Page { return h.page }

// Close closes the tab and anything Open started.
func (h *Host) Close() error {
	var err error
	if h.page != nil {
		err = h.page.Close()
	}
	h.cleanup()
	return err
}

func (h *Host) cleanup() {
	if h.browser != nil {
		_ = h.browser.Close()
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
}

func (h *Host) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.page.Context(ctx).Eval(js, args...)
}

func (h *Host) run(op, js string, args ...any) {
	if _, err := h.eval(js, args...); err != nil {
		h.log.Warn("rodhost: eval failed", "op", op, "error", err)
	}
}

func (h *Host) PushState(u string) {
	h.run("pushState", `(u) => history.pushState(null, null, u)`, u)
}

func (h *Host) ReplaceState(u string) {
	h.run("replaceState", `(u) => history.replaceState(null, null, u)`, u)
}

func (h *Host) Assign(u string) {
	h.run("assign", `(u) => { document.location = u }`, u)
}

func (h *Host) LocationReplace(u string) {
	h.run("locationReplace", `(u) => window.location.replace(u)`, u)
}

func (h *Host) Reload() {
	h.run("reload", `() => document.location.reload()`)
}

func (h *Host) Hostname() string {
	res, err := h.eval(`() => window.location.hostname`)
	if err != nil {
		h.log.Warn("rodhost: hostname", "error", err)
		return ""
	}
	return res.Value.Str()
}

func (h *Host) Path() string {
	res, err := h.eval(`() => document.location.pathname + document.location.search`)
	if err != nil {
		h.log.Warn("rodhost: path", "error", err)
		return ""
	}
	return res.Value.Str()
}

func (h *Host) ScrollToTop() {
	h.run("scrollToTop", `() => { document.body.scrollTop = 0; document.documentElement.scrollTop = 0 }`)
}

func (h *Host) ScrollIntoView(id string) {
	h.run("scrollIntoView", `(id) => { const el = document.getElementById(id); if (el) el.scrollIntoView() }`, id)
}

func (h *Host) bindScroll() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bound {
		return nil
	}
	_, err := h.page.Expose(scrollBinding, func(gson.JSON) (interface{}, error) {
		h.mu.Lock()
		fn := h.onScroll
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	h.bound = true
	return nil
}

func (h *Host) setScroll(onScroll func()) bool {
	if err := h.bindScroll(); err != nil {
		h.log.Warn("rodhost: expose scroll binding", "error", err)
		return false
	}
	h.mu.Lock()
	h.onScroll = onScroll
	h.mu.Unlock()
	return true
}

func (h *Host) LockScroll(onScroll func()) {
	if !h.setScroll(onScroll) {
		return
	}
	h.run("lockScroll", `(b) => {
		const x = window.scrollX, y = window.scrollY;
		window.onscroll = () => { window.scrollTo(x, y); window[b](null) };
	}`, scrollBinding)
}

func (h *Host) UnlockScroll(onScroll func()) {
	if !h.setScroll(onScroll) {
		return
	}
	h.run("unlockScroll", `(b) => { window.onscroll = () => window[b](null) }`, scrollBinding)
}

func (h *Host) CopyToClipboard(text string) error {
	_, err := h.eval(`(t) => navigator.clipboard.writeText(t)`, text)
	if err != nil {
		return fmt.Errorf("rodhost: clipboard: %w", err)
	}
	return nil
}

func (h *Host) SetLocalStorage(key, value string) {
	h.run("setLocalStorage", `(k, v) => localStorage.setItem(k, v)`, key, value)
}

func (h *Host) SetSessionStorage(key, value string) {
	h.run("setSessionStorage", `(k, v) => sessionStorage.setItem(k, v)`, key, value)
}

func (h *Host) ReloadFrame(id string) {
	h.run("reloadFrame", `(id) => {
		const el = document.getElementById(id);
		if (el && el.contentDocument && el.contentDocument.location) el.contentDocument.location.reload(true);
	}`, id)
}

func (h *Host) ReloadFramesByClass(name string) {
	h.run("reloadFramesByClass", `(name) => {
		for (const el of document.getElementsByClassName(name)) {
			if (el.contentDocument && el.contentDocument.location) el.contentDocument.location.reload(true);
		}
	}`, name)
}

func (h *Host) Online() bool {
	res, err := h.eval(`() => navigator.onLine`)
	if err != nil {
		h.log.Warn("rodhost: online", "error", err)
		return false
	}
	return res.Value.Bool()
}

func (h *Host) HasCookie(name string) bool {
	cookies, err := h.page.Cookies(nil)
	if err != nil {
		h.log.Warn("rodhost: cookies", "error", err)
		return false
	}
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}

type deviceInfo struct {
	UserAgent       string  `json:"ua"`
	ScreenWidth     int     `json:"sw"`
	ScreenHeight    int     `json:"sh"`
	Ratio           float64 `json:"ratio"`
	HasOrientation  bool    `json:"hasOrientation"`
	Orientation     int     `json:"orientation"`
	OrientationType string  `json:"orientationType"`
	InnerWidth      int     `json:"w"`
	InnerHeight     int     `json:"h"`
	Dark            bool    `json:"dark"`
}

const deviceJS = `() => JSON.stringify({
	ua: navigator.userAgent,
	sw: window.screen.width,
	sh: window.screen.height,
	ratio: window.devicePixelRatio || 1,
	hasOrientation: 'orientation' in window,
	orientation: Number(window.orientation || 0),
	orientationType: (window.screen.orientation && window.screen.orientation.type) || window.screen.mozOrientation || "",
	w: window.innerWidth,
	h: window.innerHeight,
	dark: !!(window.matchMedia && window.matchMedia('(prefers-color-scheme: dark)').matches),
})`

func (h *Host) Environment() host.Env {
	res, err := h.eval(deviceJS)
	if err != nil {
		h.log.Warn("rodhost: environment", "error", err)
		return host.Env{}
	}
	var d deviceInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &d); err != nil {
		h.log.Warn("rodhost: decode environment", "error", err)
		return host.Env{}
	}
	dev := host.Device{
		UserAgent:       d.UserAgent,
		ScreenWidth:     d.ScreenWidth,
		ScreenHeight:    d.ScreenHeight,
		PixelRatio:      d.Ratio,
		HasOrientation:  d.HasOrientation,
		Orientation:     d.Orientation,
		OrientationType: d.OrientationType,
	}
	return host.EnvFor(dev, d.InnerWidth, d.InnerHeight, d.Dark)
}

func (h *Host) NextFrame(ctx context.Context) error {
	_, err := h.page.Context(ctx).Eval(`() => new Promise(r => window.requestAnimationFrame(() => r(true)))`)
	if err != nil {
		return fmt.Errorf("rodhost: next frame: %w", err)
	}
	return nil
}

func (h *Host) ElementExists(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	ok, _, err := h.page.Context(ctx).Has("#" + id)
	if err != nil {
		h.log.Warn("rodhost: element lookup", "id", id, "error", err)
		return false
	}
	return ok
}

func (h *Host) DocumentData() (string, bool) {
	res, err := h.eval(`() => { const el = document.getElementById("data"); return el ? el.text : null }`)
	if err != nil {
		h.log.Warn("rodhost: document data", "error", err)
		return "", false
	}
	if res.Value.Nil() {
		return "", false
	}
	return res.Value.Str(), true
}
