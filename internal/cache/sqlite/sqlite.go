// Package sqlite is a Cache Store in a local SQLite file.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"realm/internal/cache/sqlstore"
)

var dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: `CREATE TABLE IF NOT EXISTS realm_cache (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	Get: `SELECT value FROM realm_cache WHERE key = ?`,
	Upsert: `INSERT INTO realm_cache (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	Delete: `DELETE FROM realm_cache WHERE key = ?`,
	Clear:  `DELETE FROM realm_cache`,
}

// Open opens (creating if needed) the database at path. ":memory:" works
// for a throwaway store.
func Open(path string) (*sqlstore.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cache(sqlite): path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache(sqlite): open %s: %w", path, err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache(sqlite): ping: %w", err)
	}
	return sqlstore.New(db, dialect), nil
}
