package host

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrClipboardUnavailable is returned by a Headless host with its clipboard
// switched off.
var ErrClipboardUnavailable = errors.New("host: clipboard unavailable")

// Headless is an in-memory Host. It records every side effect so callers can
// inspect what the runtime did.
type Headless struct {
	mu sync.Mutex

	hostname  string
	path      string
	history   []string
	assigned  []string
	replaced  []string
	reloads   int
	online    bool
	cookies   map[string]string
	env       Env
	elements  map[string]bool
	document  string
	hasDoc    bool
	clipboard string
	noClip    bool

	local   map[string]string
	session map[string]string

	scrollY      int
	scrollLocked bool
	onScroll     func()
	scrolledTo   []string

	frameReloads []string
	classReloads []string

	frame time.Duration
}

// HeadlessOption customises a Headless host.
type HeadlessOption func(*Headless)

func WithHostname(name string) HeadlessOption {
	return func(h *Headless) { h.hostname = name }
}

func WithOnline(online bool) HeadlessOption {
	return func(h *Headless) { h.online = online }
}

func WithCookie(name, value string) HeadlessOption {
	return func(h *Headless) { h.cookies[name] = value }
}

func WithEnv(e Env) HeadlessOption {
	return func(h *Headless) { h.env = e }
}

// WithDocumentData sets the embedded page data of the loaded document.
func WithDocumentData(data string) HeadlessOption {
	return func(h *Headless) { h.document, h.hasDoc = data, true }
}

// WithFrameInterval sets how long NextFrame waits.
func WithFrameInterval(d time.Duration) HeadlessOption {
	return func(h *Headless) { h.frame = d }
}

func WithoutClipboard() HeadlessOption {
	return func(h *Headless) { h.noClip = true }
}

// NewHeadless returns an online host at path "/" on hostname "localhost".
func NewHeadless(opts ...HeadlessOption) *Headless {
	h := &Headless{
		hostname: "localhost",
		path:     "/",
		history:  []string{"/"},
		online:   true,
		cookies:  map[string]string{},
		elements: map[string]bool{},
		local:    map[string]string{},
		session:  map[string]string{},
		env:      Env{Width: 1280, Height: 800},
		frame:    16 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Headless) PushState(u string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = u
	h.history = append(h.history, u)
}

func (h *Headless) ReplaceState(u string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = u
	if len(h.history) == 0 {
		h.history = append(h.history, u)
		return
	}
	h.history[len(h.history)-1] = u
}

// Assign records a full document navigation.
func (h *Headless) Assign(u string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.assigned = append(h.assigned, u)
	h.setLocation(u)
	h.history = append(h.history, h.path)
}

func (h *Headless) LocationReplace(u string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replaced = append(h.replaced, u)
	h.setLocation(u)
	if len(h.history) > 0 {
		h.history[len(h.history)-1] = h.path
	}
}

func (h *Headless) setLocation(u string) {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		h.path = u
		return
	}
	h.hostname = parsed.Hostname()
	h.path = parsed.RequestURI()
}

func (h *Headless) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
}

func (h *Headless) Hostname() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostname
}

func (h *Headless) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *Headless) ScrollToTop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollY = 0
}

func (h *Headless) ScrollIntoView(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.elements[id] {
		h.scrolledTo = append(h.scrolledTo, id)
	}
}

func (h *Headless) LockScroll(onScroll func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollLocked = true
	h.onScroll = onScroll
}

func (h *Headless) UnlockScroll(onScroll func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrollLocked = false
	h.onScroll = onScroll
}

// Scroll simulates the user scrolling to y.
func (h *Headless) Scroll(y int) {
	h.mu.Lock()
	if !h.scrollLocked {
		h.scrollY = y
	}
	fn := h.onScroll
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *Headless) ScrollY() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scrollY
}

func (h *Headless) ScrollLocked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scrollLocked
}

func (h *Headless) CopyToClipboard(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.noClip {
		return ErrClipboardUnavailable
	}
	h.clipboard = text
	return nil
}

func (h *Headless) Clipboard() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clipboard
}

func (h *Headless) SetLocalStorage(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local[key] = value
}

func (h *Headless) SetSessionStorage(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session[key] = value
}

func (h *Headless) LocalStorage(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.local[key]
	return v, ok
}

func (h *Headless) SessionStorage(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.session[key]
	return v, ok
}

func (h *Headless) ReloadFrame(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameReloads = append(h.frameReloads, id)
}

func (h *Headless) ReloadFramesByClass(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.classReloads = append(h.classReloads, name)
}

func (h *Headless) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

func (h *Headless) SetOnline(online bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online = online
}

func (h *Headless) HasCookie(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.cookies[name]
	return ok
}

func (h *Headless) SetCookie(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cookies[name] = value
}

func (h *Headless) DeleteCookie(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cookies, name)
}

func (h *Headless) Environment() Env {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.env
}

// Resize changes the viewport.
func (h *Headless) Resize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.env.Width, h.env.Height = width, height
}

func (h *Headless) NextFrame(ctx context.Context) error {
	h.mu.Lock()
	d := h.frame
	h.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Headless) ElementExists(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elements[id]
}

// SetElement adds or removes a DOM element id.
func (h *Headless) SetElement(id string, present bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if present {
		h.elements[id] = true
		return
	}
	delete(h.elements, id)
}

func (h *Headless) DocumentData() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.document, h.hasDoc
}

func (h *Headless) SetDocumentData(data string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.document, h.hasDoc = data, true
}

// History returns the session history entries, oldest first.
func (h *Headless) History() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.history...)
}

func (h *Headless) Assigned() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.assigned...)
}

func (h *Headless) Replaced() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.replaced...)
}

func (h *Headless) Reloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}

func (h *Headless) ScrolledInto() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.scrolledTo...)
}

// FrameReloads returns the reloaded frame ids and class names.
func (h *Headless) FrameReloads() (ids, classes []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frameReloads...), append([]string(nil), h.classReloads...)
}

// String renders the history for logs.
func (h *Headless) String() string {
	return strings.Join(h.History(), " -> ")
}
