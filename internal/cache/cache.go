// Package cache is the local Cache Store the runtime reads page responses
// from and writes them back to. Backends live in sub-packages.
package cache

import (
	"context"
	"errors"
	"strings"
)

// Reserved keys. Page entries are keyed by their url (path + query).
const (
	UserDataKey = "/__realm__user__/"
	TemplateKey = "/__realm__template__/"
)

// ErrEmptyKey is returned by backends for a blank key.
var ErrEmptyKey = errors.New("cache: key is required")

// Store is a byte-oriented key/value cache. A nil Store means there is no
// Cache Store; the helpers below accept one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Get reads key from s, reporting a miss when s is nil.
func Get(ctx context.Context, s Store, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	return s.Get(ctx, key)
}

// NormalizeKey trims key and rejects blanks.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
