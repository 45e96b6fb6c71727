package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// RegisterSeed records a seed. Re-registering keeps the original timestamp and
// replaces the account only when a new one is given.
func (s *Store) RegisterSeed(ctx context.Context, seed crawler.Seed) error {
	if seed.Key == "" {
		return fmt.Errorf("seed key is required")
	}
	registered := seed.RegisteredAt
	if registered.IsZero() {
		registered = s.now()
	}
	query := `
INSERT INTO seeds AS t (platform, natural_key, account, registered_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (platform, natural_key) DO UPDATE SET
	account = COALESCE(NULLIF(EXCLUDED.account, ''), t.account)`
	if _, err := s.pool.Exec(ctx, query, string(seed.Platform), seed.Key, seed.Account, registered); err != nil {
		return fmt.Errorf("register seed: %w", err)
	}
	return nil
}

// ListSeeds returns every registered seed ordered by platform and key.
func (s *Store) ListSeeds(ctx context.Context) ([]crawler.Seed, error) {
	query := `SELECT platform, natural_key, account, registered_at, last_run_at
FROM seeds ORDER BY platform, natural_key`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	return collect(rows, func(row scanner) (crawler.Seed, error) {
		var (
			seed     crawler.Seed
			platform string
		)
		err := row.Scan(&platform, &seed.Key, &seed.Account, &seed.RegisteredAt, &seed.LastRunAt)
		seed.Platform = crawler.Platform(platform)
		return seed, err
	}, "list seeds")
}

// TouchSeed records the last time a seed was crawled.
func (s *Store) TouchSeed(ctx context.Context, platform crawler.Platform, key string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE seeds SET last_run_at = $3 WHERE platform = $1 AND natural_key = $2`,
		string(platform), key, at,
	)
	if err != nil {
		return fmt.Errorf("touch seed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seed %s/%s: %w", platform, key, crawler.ErrNotFound)
	}
	return nil
}
