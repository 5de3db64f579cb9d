// Package sqlstore keeps cache entries in a single key/value table behind
// database/sql. The sqlite and postgres backends differ only in their
// Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"realm/internal/cache"
)

// Dialect carries the statements for one SQL engine. Each takes the key as
// its first argument.
type Dialect struct {
	Name   string
	Schema string
	Get    string
	Upsert string // key, value, updated_at
	Delete string
	Clear  string
}

type Store struct {
	db      *sql.DB
	dialect Dialect

	schemaOnce sync.Once
	schemaErr  error
}

func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB exposes the handle for callers that own its lifetime.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
			s.schemaErr = fmt.Errorf("cache(%s): create schema: %w", s.dialect.Name, err)
		}
	})
	return s.schemaErr
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}
	var value []byte
	err = s.db.QueryRowContext(ctx, s.dialect.Get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache(%s): get %s: %w", s.dialect.Name, key, err)
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("cache(%s): put %s: %w", s.dialect.Name, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	key, err := cache.NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Delete, key); err != nil {
		return fmt.Errorf("cache(%s): delete %s: %w", s.dialect.Name, key, err)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Clear); err != nil {
		return fmt.Errorf("cache(%s): clear: %w", s.dialect.Name, err)
	}
	return nil
}

var _ cache.Store = (*Store)(nil)
