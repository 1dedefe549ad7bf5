// Package registry persists fixable links and their owning users and
// projects in SQLite.
package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT,
	avatar_url TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_sessions (
	token      TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	repo_full_name TEXT NOT NULL,
	repo_name      TEXT NOT NULL,
	default_branch TEXT NOT NULL DEFAULT 'main',
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS fixable_links (
	id          TEXT PRIMARY KEY,
	short_code  TEXT NOT NULL UNIQUE,
	target_url  TEXT NOT NULL,
	title       TEXT,
	description TEXT,
	creator_id  TEXT REFERENCES users(id) ON DELETE SET NULL,
	project_id  TEXT REFERENCES projects(id) ON DELETE SET NULL,
	settings    TEXT,
	is_public   INTEGER NOT NULL DEFAULT 1,
	view_count  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_creator ON fixable_links(creator_id, created_at);
`

// open applies the production-safe pragmas before loading the schema.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("registry: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	return db, nil
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("registry: mkdir: %w", err)
		}
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return newStore(db), nil
}

// OpenMemory opens an in-memory registry for tests. MaxOpenConns(1) keeps
// every query on the same in-memory database; a second connection to
// ":memory:" would see a different one.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	db, err := open(":memory:")
	if err != nil {
		t.Fatalf("registry.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return newStore(db)
}
