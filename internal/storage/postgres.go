package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sightline?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, numbered: true}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			camera_id TEXT NOT NULL,
			description TEXT NOT NULL,
			source TEXT NOT NULL,
			object_count INTEGER NOT NULL,
			objects_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			camera_id TEXT NOT NULL,
			class TEXT NOT NULL,
			level TEXT NOT NULL,
			distance DOUBLE PRECISION NOT NULL,
			position TEXT NOT NULL,
			pattern TEXT NOT NULL,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS description_cache (
			cache_key TEXT PRIMARY KEY,
			objects_json JSONB NOT NULL,
			text TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			last_used TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_description_cache_last_used ON description_cache(last_used)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
	}
	return nil
}
