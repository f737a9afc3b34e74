package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// schema is idempotent; Migrate runs it on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS districts (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS counties (
		id          INTEGER PRIMARY KEY,
		district_id INTEGER NOT NULL REFERENCES districts(id),
		name        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS parishes (
		id        INTEGER PRIMARY KEY,
		county_id INTEGER NOT NULL REFERENCES counties(id),
		name      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS listings (
		id            UUID PRIMARY KEY,
		canonical_url TEXT NOT NULL,
		source        TEXT NOT NULL,
		listing_kind  TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		zone_text     TEXT NOT NULL DEFAULT '',
		price_minor   BIGINT NOT NULL CHECK (price_minor >= 0),
		bedrooms_raw  TEXT NOT NULL DEFAULT '',
		bedrooms_num  INTEGER CHECK (bedrooms_num BETWEEN 0 AND 20),
		area_m2       NUMERIC(8,2),
		floor_raw     TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		image_urls    TEXT[] NOT NULL DEFAULT '{}',
		parish_id     INTEGER REFERENCES parishes(id),
		county_id     INTEGER REFERENCES counties(id),
		district_id   INTEGER REFERENCES districts(id),
		first_seen_at TIMESTAMPTZ NOT NULL,
		last_seen_at  TIMESTAMPTZ NOT NULL,
		scraped_at    TIMESTAMPTZ NOT NULL,
		CHECK (first_seen_at <= last_seen_at)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS listings_canonical_url_key ON listings (canonical_url)`,
	`CREATE INDEX IF NOT EXISTS listings_scraped_at_idx ON listings (scraped_at DESC)`,
	`CREATE INDEX IF NOT EXISTS listings_source_kind_idx ON listings (source, listing_kind)`,
	`CREATE INDEX IF NOT EXISTS listings_location_idx ON listings (district_id, county_id, parish_id)`,
	`CREATE TABLE IF NOT EXISTS main_runs (
		id         BIGSERIAL PRIMARY KEY,
		status     TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at   TIMESTAMPTZ,
		duration_s DOUBLE PRECISION,
		total_seen INTEGER NOT NULL DEFAULT 0,
		total_new  INTEGER NOT NULL DEFAULT 0,
		error      TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS main_runs_status_idx ON main_runs (status)`,
	`CREATE TABLE IF NOT EXISTS scraper_runs (
		id          BIGSERIAL PRIMARY KEY,
		main_run_id BIGINT NOT NULL REFERENCES main_runs(id),
		source      TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		ended_at    TIMESTAMPTZ,
		duration_s  DOUBLE PRECISION,
		total_seen  INTEGER NOT NULL DEFAULT 0,
		total_new   INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		note        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS scraper_runs_main_run_idx ON scraper_runs (main_run_id)`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
