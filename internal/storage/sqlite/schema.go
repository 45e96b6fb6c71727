package sqlite

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS individuals (
	platform        TEXT NOT NULL,
	natural_key     TEXT NOT NULL,
	name            TEXT,
	profile_picture TEXT,
	header          TEXT,
	email           TEXT,
	websites        TEXT,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (platform, natural_key)
)`,
	`CREATE INDEX IF NOT EXISTS individuals_email_idx ON individuals (platform, email COLLATE NOCASE)`,
	`CREATE TABLE IF NOT EXISTS collections (
	platform     TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	url          TEXT,
	name         TEXT,
	description  TEXT,
	stars        INTEGER,
	industry     TEXT,
	company_size TEXT,
	headquarters TEXT,
	specialties  TEXT,
	website      TEXT,
	logo         TEXT,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (platform, natural_key)
)`,
	`CREATE TABLE IF NOT EXISTS memberships (
	platform       TEXT NOT NULL,
	individual_key TEXT NOT NULL,
	collection_key TEXT NOT NULL,
	weight         INTEGER,
	role           TEXT,
	start_date     DATE,
	end_date       DATE,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (platform, individual_key, collection_key),
	FOREIGN KEY (platform, individual_key) REFERENCES individuals (platform, natural_key),
	FOREIGN KEY (platform, collection_key) REFERENCES collections (platform, natural_key)
)`,
	`CREATE INDEX IF NOT EXISTS memberships_collection_idx ON memberships (platform, collection_key)`,
	`CREATE TABLE IF NOT EXISTS seeds (
	platform      TEXT NOT NULL,
	natural_key   TEXT NOT NULL,
	account       TEXT NOT NULL DEFAULT '',
	registered_at DATETIME NOT NULL,
	last_run_at   DATETIME,
	PRIMARY KEY (platform, natural_key)
)`,
	`CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	platform             TEXT NOT NULL,
	seed                 TEXT NOT NULL,
	account              TEXT NOT NULL DEFAULT '',
	max_depth            INTEGER NOT NULL,
	status               TEXT NOT NULL,
	submitted_at         DATETIME NOT NULL,
	started_at           DATETIME,
	finished_at          DATETIME,
	error_text           TEXT NOT NULL DEFAULT '',
	individuals_written  INTEGER NOT NULL DEFAULT 0,
	collections_written  INTEGER NOT NULL DEFAULT 0,
	memberships_written  INTEGER NOT NULL DEFAULT 0,
	nodes_skipped        INTEGER NOT NULL DEFAULT 0,
	max_depth_reached    INTEGER NOT NULL DEFAULT 0
)`,
}

// Migrate creates the tables and indexes when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
