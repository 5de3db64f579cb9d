package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"realm/internal/cache"
	"realm/internal/page"
	"realm/internal/ports"
	"realm/internal/transport"
)

const replayPrefix = "/test/replay/"

// Start boots the runtime for the document the host is showing: the user
// snapshot is restored and the embedded page data applied.
func (r *Runtime) Start(ctx context.Context) {
	r.LoadUser(ctx)
	r.Navigate(r.host.Path(), false, true)
}

// PopState handles a history traversal to the host's current location.
func (r *Runtime) PopState() {
	r.Navigate(r.host.Path(), true, false)
}

// Navigate races the planned sources for u. It returns once every request
// has been issued; responses are applied as they arrive.
func (r *Runtime) Navigate(u string, isPop, initial bool) {
	r.log.Info("navigation: navigate", "url", u, "pop", isPop, "initial", initial)
	r.enableScrolling()

	if strings.HasPrefix(u, replayPrefix) {
		r.host.Assign(u)
		return
	}

	nc := r.newContext()

	if initial {
		text, ok := r.host.DocumentData()
		if !ok {
			r.log.Warn("navigation: document has no page data", "url", u)
			return
		}
		r.spawn(func() {
			if err := r.HandleResponse(text, u, false, false, page.ModeAuthenticated, nc.id); err != nil {
				r.log.Error("navigation: apply document data", "url", u, "error", err)
			}
		})
		return
	}

	r.mu.Lock()
	underTest := r.testCtx != nil
	sig := Signals{
		Cookie:         r.host.HasCookie(UserCookie),
		Online:         r.host.Online(),
		FirstLoad:      r.firstLoad,
		CacheAvailable: r.store != nil,
		UnderTest:      underTest,
		DisableCaching: r.cfg.DisableCaching,
	}
	if !underTest && r.firstLoad {
		r.firstLoad = false
	}
	r.mu.Unlock()

	plan := PlanSources(sig)
	r.log.Debug("navigation: planned sources", "url", u,
		"auth", plan.Auth, "cdn", plan.CDN, "cache", plan.Cache,
		"pure_on_miss", plan.PureOnMiss, "page_data_on_miss", plan.PageDataOnMiss,
		"offline_on_miss", plan.OfflineOnMiss)

	if r.store == nil && !sig.Online && !plan.Queryable() {
		r.showOffline(u, isPop, nc.id)
		return
	}

	r.showLoading()

	if plan.Auth {
		r.fetch(nc, u, isPop, page.ModeAuthenticated)
	}
	if underTest {
		return
	}
	if plan.Cache {
		r.spawn(func() { r.lookupCache(nc, u, isPop, plan) })
	}
	if plan.CDN {
		r.fetch(nc, u, isPop, page.ModePure)
	}
}

// fetch requests the mode variant of u in the background.
func (r *Runtime) fetch(nc *navContext, u string, isPop bool, mode page.Mode) {
	target := transport.WithMode(u, mode)
	r.spawn(func() {
		ctx, cancel := context.WithTimeout(nc.ctx, r.cfg.RequestTimeout)
		defer cancel()
		text, err := r.tr.Fetch(ctx, target, nil)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.log.Debug("navigation: request cancelled", "url", target)
				return
			}
			r.log.Warn("navigation: request failed", "url", target, "error", err)
			return
		}
		if text == "" {
			r.log.Info("navigation: empty response, ignoring", "url", target, "online", r.host.Online())
			return
		}
		if err := r.HandleResponse(text, u, false, isPop, mode, nc.id); err != nil {
			r.log.Error("navigation: apply response", "url", target, "mode", mode, "error", err)
		}
	})
}

func (r *Runtime) lookupCache(nc *navContext, u string, isPop bool, plan Plan) {
	raw, ok, err := cache.Get(nc.ctx, r.store, u)
	if err != nil {
		r.log.Warn("navigation: cache lookup failed, treating as miss", "url", u, "error", err)
	}
	if ok {
		if err := r.HandleResponse(string(raw), u, false, isPop, page.ModeCache, nc.id); err != nil {
			r.log.Error("navigation: apply cached response", "url", u, "error", err)
		}
		return
	}

	r.log.Debug("navigation: cache miss", "url", u)
	if plan.OfflineOnMiss {
		r.showOffline(u, isPop, nc.id)
	}
	if plan.PureOnMiss {
		r.fetch(nc, u, isPop, page.ModePure)
	}
	if plan.PageDataOnMiss {
		text, ok := r.host.DocumentData()
		if !ok {
			return
		}
		if err := r.HandleResponse(text, u, false, isPop, page.ModePure, nc.id); err != nil {
			r.log.Error("navigation: apply document data", "url", u, "error", err)
		}
	}
}

// showOffline applies the built-in offline page for u at cache precedence
// on behalf of the navigation contextID.
func (r *Runtime) showOffline(u string, isPop bool, contextID uuid.UUID) {
	text, err := page.Offline(u, r.User()).Marshal()
	if err != nil {
		r.log.Error("navigation: build offline page", "error", err)
		return
	}
	if err := r.HandleResponse(text, u, false, isPop, page.ModeCache, contextID); err != nil {
		r.log.Error("navigation: apply offline page", "url", u, "error", err)
	}
}

type submitPayload struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data"`
}

var submitUnescaper = strings.NewReplacer(`\u003E`, ">", `\u003C`, "<", `\u0026`, "&")

// Submit sends a form to the authenticated origin. payload is either a url
// string, which is POSTed with an empty object, or {url, data} where a null
// data issues a GET. The response is applied as a submit.
func (r *Runtime) Submit(payload any) error {
	sp, err := decodeSubmit(payload)
	if err != nil {
		return err
	}
	r.log.Info("navigation: submit", "url", sp.URL)

	nc := r.newContext()
	r.showLoading()

	var body any
	if len(sp.Data) > 0 && string(sp.Data) != "null" {
		body = sp.Data
	}
	target := transport.WithMode(sp.URL, page.ModeAuthenticated)
	r.spawn(func() {
		ctx, cancel := context.WithTimeout(nc.ctx, r.cfg.RequestTimeout)
		defer cancel()
		text, err := r.tr.Fetch(ctx, target, body)
		if err != nil {
			r.log.Warn("navigation: submit failed", "url", target, "error", err)
			return
		}
		if text == "" {
			r.log.Info("navigation: empty submit response, ignoring", "url", target)
			return
		}
		if err := r.HandleResponse(text, sp.URL, true, false, page.ModeAuthenticated, nc.id); err != nil {
			r.log.Error("navigation: apply submit response", "url", target, "error", err)
		}
	})
	return nil
}

func decodeSubmit(payload any) (submitPayload, error) {
	var s string
	switch t := payload.(type) {
	case string:
		s = t
	case json.RawMessage:
		if err := json.Unmarshal(t, &s); err != nil {
			s = ""
		}
	}
	if s != "" {
		return submitPayload{URL: submitUnescaper.Replace(s), Data: json.RawMessage(`{}`)}, nil
	}

	var sp submitPayload
	if err := ports.Decode(payload, &sp); err != nil {
		return sp, fmt.Errorf("navigation: submit payload: %w", err)
	}
	if sp.URL == "" {
		return sp, errors.New("navigation: submit payload has no url")
	}
	return sp, nil
}

// ChangePage applies data as if the authenticated origin had answered a
// submit to url, without any request.
func (r *Runtime) ChangePage(payload any) error {
	var sp submitPayload
	if err := ports.Decode(payload, &sp); err != nil {
		return fmt.Errorf("navigation: changePage payload: %w", err)
	}
	r.log.Info("navigation: change page", "url", sp.URL)
	nc := r.newContext()
	return r.HandleResponse(string(sp.Data), sp.URL, true, false, page.ModeAuthenticated, nc.id)
}

// LoadDocument re-applies the page data embedded in the current document.
func (r *Runtime) LoadDocument() error {
	text, ok := r.host.DocumentData()
	if !ok {
		return fmt.Errorf("navigation: document has no page data")
	}
	nc := r.newContext()
	return r.HandleResponse(text, r.host.Path(), false, false, page.ModeAuthenticated, nc.id)
}
