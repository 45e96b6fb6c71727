package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// RegisterSeed records a seed, keeping the original registration time on repeats.
func (s *Store) RegisterSeed(ctx context.Context, seed crawler.Seed) error {
	if seed.Key == "" {
		return fmt.Errorf("seed key is required")
	}
	registered := seed.RegisteredAt
	if registered.IsZero() {
		registered = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO seeds AS t (platform, natural_key, account, registered_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (platform, natural_key) DO UPDATE SET
	account = COALESCE(NULLIF(excluded.account, ''), t.account)`,
		string(seed.Platform), seed.Key, seed.Account, registered)
	if err != nil {
		return fmt.Errorf("register seed: %w", err)
	}
	return nil
}

// ListSeeds returns every registered seed ordered by platform and key.
func (s *Store) ListSeeds(ctx context.Context) ([]crawler.Seed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform, natural_key, account, registered_at, last_run_at
FROM seeds ORDER BY platform, natural_key`)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE seeds SET last_run_at = ? WHERE platform = ? AND natural_key = ?`,
		at, string(platform), key)
	if err != nil {
		return fmt.Errorf("touch seed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch seed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("seed %s/%s: %w", platform, key, crawler.ErrNotFound)
	}
	return nil
}
