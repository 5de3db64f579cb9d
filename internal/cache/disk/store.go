// Package disk is a Cache Store that keeps page bodies as files under a
// root directory next to a JSON manifest. The manifest records, per key,
// the module id and build hash of the cached page so the cache can be
// inspected without reading every body. The template and user snapshot
// keys are pinned: the shell needs them offline, so they never expire
// and are never evicted.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"realm/internal/cache"
)

const (
	manifestVersion = 1
	bodiesDir       = "pages"
)

type Config struct {
	Root string
	// Manifest is the manifest file name inside Root.
	Manifest   string
	MaxEntries int
	// MaxBytes bounds the total size of unpinned bodies. Zero means no bound.
	MaxBytes int64
	TTL      time.Duration
}

// Record describes one cached entry.
type Record struct {
	Key  string `json:"key"`
	File string `json:"file"`
	// Page and Hash are read from the body when it is a page response.
	Page      string    `json:"page,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Size      int64     `json:"size"`
	Pinned    bool      `json:"pinned,omitempty"`
	StoredAt  time.Time `json:"stored_at"`
	UsedAt    time.Time `json:"used_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (r Record) expired(now time.Time) bool {
	return !r.Pinned && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

type manifest struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

type Store struct {
	root         string
	bodies       string
	manifestPath string
	maxEntries   int
	maxBytes     int64
	ttl          time.Duration

	mu      sync.Mutex
	records map[string]Record
	// unpinned is the byte total the MaxBytes budget applies to.
	unpinned int64
	dirty    bool
}

func pinned(key string) bool {
	return key == cache.TemplateKey || key == cache.UserDataKey
}

func New(cfg Config) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("cache(disk): root is required")
	}
	name := strings.TrimSpace(cfg.Manifest)
	if name == "" {
		name = "manifest.json"
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	s := &Store{
		root:         root,
		bodies:       filepath.Join(root, bodiesDir),
		manifestPath: filepath.Join(root, name),
		maxEntries:   cfg.MaxEntries,
		maxBytes:     cfg.MaxBytes,
		ttl:          cfg.TTL,
		records:      map[string]Record{},
	}
	if err := os.MkdirAll(s.bodies, 0o755); err != nil {
		return nil, fmt.Errorf("cache(disk): create %s: %w", s.bodies, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	s.pruneLocked(time.Now())
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	if rec.expired(now) {
		s.dropLocked(rec)
		return nil, false, s.saveLocked()
	}
	raw, err := os.ReadFile(filepath.Join(s.bodies, rec.File))
	if os.IsNotExist(err) {
		s.dropLocked(rec)
		return nil, false, s.saveLocked()
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache(disk): read %s: %w", key, err)
	}
	// Recency is flushed with the next write or Close.
	rec.UsedAt = now
	s.records[key] = rec
	s.dirty = true
	return raw, true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	file := bodyName(key)
	if err := writeAtomic(filepath.Join(s.bodies, file), value); err != nil {
		return fmt.Errorf("cache(disk): write %s: %w", key, err)
	}

	now := time.Now()
	rec := Record{
		Key:      key,
		File:     file,
		Size:     int64(len(value)),
		Pinned:   pinned(key),
		StoredAt: now,
		UsedAt:   now,
	}
	if !rec.Pinned {
		rec.ExpiresAt = now.Add(s.ttl)
	}
	if gjson.ValidBytes(value) {
		rec.Page = gjson.GetBytes(value, "id").String()
		rec.Hash = gjson.GetBytes(value, "hash").String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.records[key]; ok && !old.Pinned {
		s.unpinned -= old.Size
	}
	s.records[key] = rec
	if !rec.Pinned {
		s.unpinned += rec.Size
	}
	s.pruneLocked(now)
	return s.saveLocked()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Purge(ctx, key)
}

// Purge removes keys with a single manifest write. Unknown keys are
// ignored.
func (s *Store) Purge(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		key, err := cache.NormalizeKey(key)
		if err != nil {
			return err
		}
		if rec, ok := s.records[key]; ok {
			s.dropLocked(rec)
		}
	}
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

// PurgePage removes every entry whose body names module id.
func (s *Store) PurgePage(ctx context.Context, id string) (int, error) {
	var keys []string
	for _, rec := range s.Records() {
		if rec.Page == id {
			keys = append(keys, rec.Key)
		}
	}
	return len(keys), s.Purge(ctx, keys...)
}

// Records returns the live entries sorted by key.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Close writes pending recency updates.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) sortedLocked() []Record {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) dropLocked(rec Record) {
	delete(s.records, rec.Key)
	if !rec.Pinned {
		s.unpinned -= rec.Size
	}
	s.dirty = true
	_ = os.Remove(filepath.Join(s.bodies, rec.File))
}

// pruneLocked drops expired and missing bodies, then evicts the least
// recently used unpinned entries until the store is within budget.
func (s *Store) pruneLocked(now time.Time) {
	var candidates []Record
	for _, rec := range s.records {
		if rec.expired(now) {
			s.dropLocked(rec)
			continue
		}
		if _, err := os.Stat(filepath.Join(s.bodies, rec.File)); os.IsNotExist(err) {
			s.dropLocked(rec)
			continue
		}
		if !rec.Pinned {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].UsedAt.Equal(candidates[j].UsedAt) {
			return candidates[i].Key < candidates[j].Key
		}
		return candidates[i].UsedAt.Before(candidates[j].UsedAt)
	})
	for _, rec := range candidates {
		if len(candidates) <= s.maxEntries && (s.maxBytes <= 0 || s.unpinned <= s.maxBytes) {
			break
		}
		s.dropLocked(rec)
		candidates = candidates[1:]
	}
}

func (s *Store) loadLocked() error {
	raw, err := os.ReadFile(s.manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache(disk): read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("cache(disk): parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return fmt.Errorf("cache(disk): manifest version %d, want %d", m.Version, manifestVersion)
	}
	for _, rec := range m.Records {
		rec.Pinned = pinned(rec.Key)
		s.records[rec.Key] = rec
		if !rec.Pinned {
			s.unpinned += rec.Size
		}
	}
	return nil
}

func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(manifest{Version: manifestVersion, Records: s.sortedLocked()}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.manifestPath, raw); err != nil {
		return fmt.Errorf("cache(disk): write manifest: %w", err)
	}
	s.dirty = false
	return nil
}

// writeAtomic replaces path so readers never see a partial body.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func bodyName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".json"
}

var _ cache.Store = (*Store)(nil)
