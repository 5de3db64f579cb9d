// Package memory is an in-process Cache Store backed by an expirable LRU.
package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"realm/internal/cache"
)

type Config struct {
	MaxEntries int
	// TTL of zero keeps entries until evicted by size.
	TTL time.Duration
}

func DefaultConfig() Config {
	return Config{MaxEntries: 2048}
}

type Store struct {
	lru *expirable.LRU[string, []byte]
}

func New(cfg Config) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	return &Store{lru: expirable.NewLRU[string, []byte](cfg.MaxEntries, nil, cfg.TTL)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	s.lru.Add(key, append([]byte(nil), value...))
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	s.lru.Remove(key)
	return nil
}

// Keys lists the live keys, oldest first.
func (s *Store) Keys() []string {
	return s.lru.Keys()
}

func (s *Store) Len() int {
	return s.lru.Len()
}

var _ cache.Store = (*Store)(nil)
