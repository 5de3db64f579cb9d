// Package page holds the decoded page payload the server returns for every
// navigation and the precedence modes of the sources that produce it.
package page

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	NotFoundID = "Pages.NotFound"
	OfflineID  = "Pages.Offline"

	// OfflineAppURL is returned by servers that want the client to show its
	// built-in offline page for the requested url.
	OfflineAppURL = "/the/__realm_offline_app__/"

	offlineMessage = "Offline - Network Not Available"
)

// ErrEmptyBody is returned by Parse for an empty response body, which is
// what a crashed server produces.
var ErrEmptyBody = errors.New("page: empty body")

// CacheMeta is the cache section of a page response.
type CacheMeta struct {
	ETag        string   `json:"etag"`
	PurgeCaches []string `json:"purge_caches"`
	ID          string   `json:"id"`
}

// Response is the JSON payload describing what to render next.
type Response struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Replace  string         `json:"replace,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
	Config   map[string]any `json:"config"`
	Hash     string         `json:"hash"`
	Template string         `json:"template,omitempty"`
	Cache    CacheMeta      `json:"cache"`
	Pure     bool           `json:"pure,omitempty"`
	PureMode string         `json:"pure_mode,omitempty"`
	Dev      bool           `json:"dev,omitempty"`
	Domain   string         `json:"domain,omitempty"`
}

// Parse decodes a page response body.
func Parse(text string) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyBody
	}
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("page: decode response: %w", err)
	}
	return &resp, nil
}

// FoundURL is the url the server actually settled on: redirect, then
// replace, then url. A trailing realm_t argument is cut off.
func (r *Response) FoundURL() string {
	if r == nil {
		return ""
	}
	found := firstNonEmpty(r.Redirect, r.Replace, r.URL)
	// only safe because realm_t is always the last argument
	if i := strings.Index(found, "&realm_t="); i != -1 {
		found = found[:i]
	}
	return found
}

// IsNotFound reports whether the server rendered its not-found page.
func (r *Response) IsNotFound() bool {
	return r != nil && r.ID == NotFoundID
}

// Base returns config.base, the personalised part of the config.
func (r *Response) Base() any {
	if r == nil || r.Config == nil {
		return nil
	}
	return r.Config["base"]
}

// SetBase overwrites config.base.
func (r *Response) SetBase(base any) {
	if r == nil {
		return
	}
	if r.Config == nil {
		r.Config = map[string]any{}
	}
	r.Config["base"] = base
}

// Flags converts the response into the flag object handed to a module's
// init. The response's JSON field names are kept.
func (r *Response) Flags() map[string]any {
	if r == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"id": r.ID, "title": r.Title, "url": r.URL, "config": r.Config}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"id": r.ID, "title": r.Title, "url": r.URL, "config": r.Config}
	}
	return out
}

// Offline builds the built-in offline page for url. base is the cached user
// snapshot, may be nil.
func Offline(url string, base any) *Response {
	return &Response{
		ID:    OfflineID,
		Title: offlineMessage,
		URL:   url,
		Config: map[string]any{
			"message": offlineMessage,
			"title":   offlineMessage,
			"base":    base,
			"url":     url,
		},
		Cache: CacheMeta{
			PurgeCaches: []string{},
			ID:          "default",
		},
		Pure:     true,
		PureMode: "base",
	}
}

// Marshal encodes r as the wire JSON, without html escaping.
func (r *Response) Marshal() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("page: encode response: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// HashNewer reports whether the server build fingerprint remote is newer
// than local. Fingerprints compare lexically; an empty remote never wins.
func HashNewer(remote, local string) bool {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return false
	}
	return remote > strings.TrimSpace(local)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
