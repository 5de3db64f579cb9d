// Package postgres is a Cache Store shared through a PostgreSQL table.
package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"realm/internal/cache/sqlstore"
)

var dialect = sqlstore.Dialect{
	Name: "postgres",
	Schema: `CREATE TABLE IF NOT EXISTS realm_cache (
  key TEXT PRIMARY KEY,
  value BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	Get: `SELECT value FROM realm_cache WHERE key = $1`,
	Upsert: `INSERT INTO realm_cache (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
	Delete: `DELETE FROM realm_cache WHERE key = $1`,
	Clear:  `DELETE FROM realm_cache`,
}

func Open(dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("cache(postgres): open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache(postgres): ping: %w", err)
	}
	return sqlstore.New(db, dialect), nil
}
