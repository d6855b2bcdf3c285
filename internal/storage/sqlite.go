package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sightline.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, textTime: true}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			description TEXT NOT NULL,
			source TEXT NOT NULL,
			object_count INTEGER NOT NULL,
			objects_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			class TEXT NOT NULL,
			level TEXT NOT NULL,
			distance REAL NOT NULL,
			position TEXT NOT NULL,
			pattern TEXT NOT NULL,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS description_cache (
			cache_key TEXT PRIMARY KEY,
			objects_json TEXT NOT NULL,
			text TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			last_used TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_description_cache_last_used ON description_cache(last_used)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}
