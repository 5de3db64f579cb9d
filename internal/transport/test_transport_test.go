package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realm/internal/page"
)

func TestWithMode(t *testing.T) {
	assert.Equal(t, "/foo/?realm_mode=ised", WithMode("/foo/", page.ModeAuthenticated))
	assert.Equal(t, "/foo/?a=1&realm_mode=pure", WithMode("/foo/?a=1", page.ModePure))
	assert.Equal(t, "/foo/", WithMode("/foo/", page.ModeCache))
}

func TestHTTPFetchGetAndPost(t *testing.T) {
	var gotMethod, gotBody, gotCT, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"id":"Pages.Foo"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTP(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := tr.Fetch(context.Background(), "/foo/?realm_mode=ised", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"Pages.Foo"}`, text)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "realm_mode=ised", gotQuery)
	assert.Empty(t, gotBody)

	_, err = tr.Fetch(context.Background(), "/foo/", map[string]any{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotBody), &decoded))
	assert.Equal(t, "x", decoded["name"])
}

func TestHTTPFetchReturnsBodyForErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr, err := NewHTTP(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	text, err := tr.Fetch(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, "boom", text)
}

func TestHTTPFetchErrors(t *testing.T) {
	tr, err := NewHTTP(Config{})
	require.NoError(t, err)
	_, err = tr.Fetch(context.Background(), "/relative/", nil)
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	_, err = tr.Fetch(context.Background(), srv.URL+"/gone/", nil)
	assert.Error(t, err)
}

func TestHTTPKeepsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login/" {
			http.SetCookie(w, &http.Cookie{Name: "ud", Value: "u1", Path: "/"})
			return
		}
		c, err := r.Cookie("ud")
		if err != nil {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(c.Value))
	}))
	defer srv.Close()

	tr, err := NewHTTP(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = tr.Fetch(context.Background(), "/login/", nil)
	require.NoError(t, err)
	text, err := tr.Fetch(context.Background(), "/me/", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", text)
}
