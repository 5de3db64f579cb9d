// Package transport fetches page responses from the origin.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"realm/internal/page"
)

// Transport performs one request and returns the response body as text.
// A nil body issues a GET, anything else is POSTed as JSON. The text is
// returned for every HTTP status; err is set only when no response arrived.
type Transport interface {
	Fetch(ctx context.Context, url string, body any) (string, error)
}

// WithMode appends realm_mode for the pure and authenticated variants of a
// page url. Other modes return url unchanged.
func WithMode(u string, mode page.Mode) string {
	var m string
	switch mode {
	case page.ModePure:
		m = "pure"
	case page.ModeAuthenticated:
		m = "ised"
	default:
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "realm_mode=" + m
}

type Config struct {
	// BaseURL resolves relative page urls. Required for relative urls.
	BaseURL string
	Timeout time.Duration
	// Jar carries the session cookies. Nil creates an empty jar.
	Jar    http.CookieJar
	Logger *slog.Logger
}

type HTTP struct {
	base   *url.URL
	client *http.Client
	log    *slog.Logger
}

func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	t := &HTTP{log: cfg.Logger}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		b, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("transport: parse base url: %w", err)
		}
		t.base = b
	}
	jar := cfg.Jar
	if jar == nil {
		j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("transport: cookie jar: %w", err)
		}
		jar = j
	}
	t.client = &http.Client{Timeout: cfg.Timeout, Jar: jar}
	return t, nil
}

// Jar exposes the cookie jar so hosts can read the session cookie.
func (t *HTTP) Jar() http.CookieJar { return t.client.Jar }

func (t *HTTP) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: parse url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if t.base == nil {
		return "", fmt.Errorf("transport: relative url %q without base url", raw)
	}
	return t.base.ResolveReference(u).String(), nil
}

func (t *HTTP) Fetch(ctx context.Context, rawURL string, body any) (string, error) {
	target, err := t.resolve(rawURL)
	if err != nil {
		return "", err
	}

	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("transport: encode body: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return "", fmt.Errorf("transport: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transport: read body: %w", err)
	}
	t.log.Debug("transport: response", "method", method, "url", rawURL, "status", resp.StatusCode, "bytes", len(raw))
	return string(raw), nil
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, url string, body any) (string, error)

func (f Func) Fetch(ctx context.Context, url string, body any) (string, error) {
	return f(ctx, url, body)
}
