package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// ErrRunExists is returned when a run id is inserted twice.
var ErrRunExists = errors.New("run already exists")

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run crawler.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, platform, seed, account, max_depth, status, submitted_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Platform), run.Seed, run.Account, run.MaxDepth, string(run.Status), run.Submitted)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %q: %w", run.ID, ErrRunExists)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus records a status transition with its outcome counters.
func (s *Store) UpdateRunStatus(
	ctx context.Context,
	runID string,
	status crawler.RunStatus,
	errText string,
	outcome crawler.Outcome,
) error {
	now := s.now()
	var started, finished *time.Time
	if status == crawler.RunStatusRunning {
		started = &now
	}
	if status.IsTerminal() {
		finished = &now
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET
	status              = ?,
	error_text          = ?,
	individuals_written = ?,
	collections_written = ?,
	memberships_written = ?,
	nodes_skipped       = ?,
	max_depth_reached   = ?,
	started_at          = COALESCE(started_at, ?),
	finished_at         = COALESCE(?, finished_at)
WHERE id = ?`,
		string(status), errText,
		outcome.Individuals, outcome.Collections, outcome.Memberships, outcome.Skipped, outcome.MaxDepthReached,
		started, finished, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (crawler.Run, error) {
	var (
		run      crawler.Run
		platform string
		status   string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, platform, seed, account, max_depth, status, submitted_at, started_at, finished_at,
	error_text, individuals_written, collections_written, memberships_written,
	nodes_skipped, max_depth_reached
FROM runs WHERE id = ?`, runID).Scan(
		&run.ID, &platform, &run.Seed, &run.Account, &run.MaxDepth, &status,
		&run.Submitted, &run.Started, &run.Finished, &run.ErrorText,
		&run.Outcome.Individuals, &run.Outcome.Collections, &run.Outcome.Memberships,
		&run.Outcome.Skipped, &run.Outcome.MaxDepthReached,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Run{}, fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
		}
		return crawler.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Platform = crawler.Platform(platform)
	run.Status = crawler.RunStatus(status)
	return run, nil
}
