package db

import (
	"context"
	"fmt"
	"time"

	"Tunedrop/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens a pgx pool against the backend's Postgres database and
// verifies it with a ping.
func ConnectDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("[DB] connected to postgres", logger.String("host", poolCfg.ConnConfig.Host))
	return pool, nil
}

var schemaStatements = []struct {
	name string
	sql  string
}{
	{"profiles table", `
	CREATE TABLE IF NOT EXISTS profiles (
		id         UUID PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		username   TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`},
	{"tracks table", `
	CREATE TABLE IF NOT EXISTS tracks (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name        TEXT NOT NULL,
		tags        TEXT[] NOT NULL DEFAULT '{}',
		length      DOUBLE PRECISION,
		cover_path  TEXT,
		audio_path  TEXT,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		uploader_id UUID REFERENCES profiles(id) ON DELETE CASCADE,
		fts         TEXT NOT NULL DEFAULT '',
		exposed     BOOLEAN NOT NULL DEFAULT false
	)`},
	{"tracks fts index", `CREATE INDEX IF NOT EXISTS tracks_fts_idx ON tracks USING GIN (to_tsvector('simple', fts))`},
	{"tracks tags index", `CREATE INDEX IF NOT EXISTS tracks_tags_idx ON tracks USING GIN (tags)`},
	{"tracks exposed index", `CREATE INDEX IF NOT EXISTS tracks_exposed_idx ON tracks (exposed, uploaded_at DESC)`},
}

// InitDB creates the profiles and tracks tables and their indexes if they
// don't exist yet.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
		logger.Info("[DB] schema ensured", logger.String("object", stmt.name))
	}
	return nil
}
