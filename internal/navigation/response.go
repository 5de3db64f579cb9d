package navigation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"realm/internal/cache"
	"realm/internal/harness"
	"realm/internal/page"
)

// HandleResponse applies one page response for expectedURL. contextID is
// the navigation it belongs to; uuid.Nil skips the context check. Stale and
// superseded responses are dropped silently.
func (r *Runtime) HandleResponse(text, expectedURL string, isSubmit, isPop bool, mode page.Mode, contextID uuid.UUID) error {
	r.mu.Lock()
	if contextID != uuid.Nil && r.nav != nil && r.nav.id == contextID && r.nav.best < mode {
		r.nav.best = mode
	}
	if r.staleLocked(contextID, mode) {
		r.mu.Unlock()
		r.log.Debug("navigation: stale response, ignoring", "url", expectedURL, "mode", mode)
		return nil
	}
	r.mu.Unlock()

	resp, err := page.Parse(text)
	if err != nil {
		r.log.Error("navigation: failed to parse response", "url", expectedURL, "error", err)
		message := fmt.Sprintf("Server Error: %v, text=%s", err, text)
		if text == "" {
			message = "ServerCrashed (empty body)"
		}
		r.emit(
			harness.Event{Kind: harness.BadServer, Message: message},
			harness.Event{Kind: harness.TestDone},
		)
		return fmt.Errorf("%w: %v", ErrBadServer, err)
	}

	r.mu.Lock()
	r.dev, r.domain = resp.Dev, resp.Domain
	r.mu.Unlock()

	if resp.Template != "" {
		r.writer.Put(cache.TemplateKey, []byte(resp.Template))
	}

	found := resp.FoundURL()
	cookie := r.host.HasCookie(UserCookie)

	r.mu.Lock()
	if !resp.IsNotFound() && mode == page.ModeAuthenticated && found == expectedURL {
		r.user = resp.Base()
	} else if r.user != nil && (mode == page.ModePure || mode == page.ModeCache) {
		resp.SetBase(r.user)
	}
	user := r.user
	r.mu.Unlock()

	if r.store != nil {
		if mode == page.ModeAuthenticated && user != nil {
			if raw, err := json.Marshal(user); err == nil {
				r.writer.Put(cache.UserDataKey, raw)
			} else {
				r.log.Warn("navigation: encode user snapshot", "error", err)
			}
		} else {
			r.writer.Delete(cache.UserDataKey)
		}
	}

	if mode != page.ModeAuthenticated && cookie && (expectedURL != found || resp.IsNotFound()) {
		r.log.Info("navigation: replace, redirect or not found below authenticated mode, ignoring",
			"url", expectedURL, "found", found, "mode", mode)
		return nil
	}

	if found == expectedURL && r.store != nil &&
		((mode == page.ModePure && !cookie) || mode == page.ModeAuthenticated) &&
		!resp.IsNotFound() {
		r.writer.Put(found, []byte(text))
	}

	for _, key := range resp.Cache.PurgeCaches {
		r.writer.Delete(key)
	}

	if resp.Redirect != "" {
		r.log.Info("navigation: redirecting", "url", resp.Redirect)
		r.host.LocationReplace(resp.Redirect)
		return nil
	}

	return r.present(resp, expectedURL, isSubmit, isPop, mode, contextID)
}
