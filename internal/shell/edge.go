package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"realm/internal/cache"
	"realm/internal/page"
)

type EdgeConfig struct {
	// Origin is the application server. Empty means always offline.
	Origin string
	Store  cache.Store
	// Online reports whether the origin may be contacted. Nil means always.
	Online func() bool
	Logger *slog.Logger
}

// Edge answers page requests from the cached template and page data, and
// forwards everything it cannot answer to the origin.
type Edge struct {
	store  cache.Store
	proxy  *httputil.ReverseProxy
	online func() bool
	log    *slog.Logger
}

func NewEdge(cfg EdgeConfig) (*Edge, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Edge{store: cfg.Store, online: cfg.Online, log: cfg.Logger}
	if e.online == nil {
		e.online = func() bool { return true }
	}
	if strings.TrimSpace(cfg.Origin) != "" {
		origin, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("shell: parse origin: %w", err)
		}
		e.proxy = httputil.NewSingleHostReverseProxy(origin)
		e.proxy.ModifyResponse = e.captureStatic
		e.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			e.log.Warn("shell: origin unreachable", "url", r.URL.RequestURI(), "error", err)
			http.Error(w, "origin unreachable", http.StatusBadGateway)
		}
	}
	return e, nil
}

func (e *Edge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u := r.URL.RequestURI()
	switch {
	case strings.Contains(u, "realm_mode="), r.Method != http.MethodGet:
		e.forward(w, r)
	case strings.HasPrefix(r.URL.Path, "/static/"):
		e.serveStatic(w, r)
	default:
		e.servePage(w, r, u)
	}
}

func (e *Edge) forward(w http.ResponseWriter, r *http.Request) {
	if e.proxy == nil || !e.online() {
		http.Error(w, "offline", http.StatusServiceUnavailable)
		return
	}
	e.proxy.ServeHTTP(w, r)
}

func (e *Edge) serveStatic(w http.ResponseWriter, r *http.Request) {
	raw, ok, err := cache.Get(r.Context(), e.store, r.URL.Path)
	if err != nil {
		e.log.Warn("shell: static cache read failed", "path", r.URL.Path, "error", err)
	}
	if ok {
		w.Header().Set("Content-Type", staticContentType(r.URL.Path))
		_, _ = w.Write(raw)
		return
	}
	e.forward(w, r)
}

// captureStatic stores successful static responses on their way out.
func (e *Edge) captureStatic(resp *http.Response) error {
	if e.store == nil || resp.Request == nil || resp.StatusCode != http.StatusOK {
		return nil
	}
	if !strings.HasPrefix(resp.Request.URL.Path, "/static/") {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err := e.store.Put(resp.Request.Context(), resp.Request.URL.Path, body); err != nil {
		e.log.Warn("shell: static cache write failed", "path", resp.Request.URL.Path, "error", err)
	}
	return nil
}

func (e *Edge) servePage(w http.ResponseWriter, r *http.Request, u string) {
	ctx := r.Context()
	user := e.userData(ctx)

	template, ok, err := cache.Get(ctx, e.store, cache.TemplateKey)
	if err != nil {
		e.log.Warn("shell: template read failed", "error", err)
	}
	if !ok {
		e.forward(w, r)
		return
	}

	resp := e.pageData(ctx, u)
	if resp != nil && user != nil {
		resp.SetBase(user)
	}
	if resp == nil && e.proxy != nil && e.online() {
		e.forward(w, r)
		return
	}
	if resp == nil {
		e.log.Info("shell: no page data, serving offline page", "url", u)
		resp = page.Offline(u, user)
	}

	out, err := Render(string(template), resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = io.WriteString(w, out)
}

func (e *Edge) userData(ctx context.Context) any {
	raw, ok, err := cache.Get(ctx, e.store, cache.UserDataKey)
	if err != nil || !ok {
		return nil
	}
	var user any
	if err := json.Unmarshal(raw, &user); err != nil {
		e.log.Warn("shell: cached user data is not json", "error", err)
		return nil
	}
	return user
}

func (e *Edge) pageData(ctx context.Context, u string) *page.Response {
	raw, ok, err := cache.Get(ctx, e.store, u)
	if err != nil || !ok {
		return nil
	}
	resp, err := page.Parse(string(raw))
	if err != nil {
		e.log.Warn("shell: cached page data is not valid", "url", u, "error", err)
		return nil
	}
	return resp
}

func staticContentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".js"):
		return "application/javascript"
	case strings.HasSuffix(path, ".css"):
		return "text/css"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	}
	return "application/octet-stream"
}
