package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// ErrRunExists is returned when a run id is inserted twice.
var ErrRunExists = errors.New("run already exists")

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run crawler.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
INSERT INTO runs (id, platform, seed, account, max_depth, status, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		string(run.Platform),
		run.Seed,
		run.Account,
		run.MaxDepth,
		string(run.Status),
		run.Submitted,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("run %q: %w", run.ID, ErrRunExists)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus records a status transition with its outcome counters.
// started_at is set once, on the first transition to running; finished_at is
// set on every terminal status.
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
	query := `
UPDATE runs SET
	status              = $2,
	error_text          = $3,
	individuals_written = $4,
	collections_written = $5,
	memberships_written = $6,
	nodes_skipped       = $7,
	max_depth_reached   = $8,
	started_at          = COALESCE(started_at, $9),
	finished_at         = COALESCE($10, finished_at)
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		runID,
		string(status),
		errText,
		outcome.Individuals,
		outcome.Collections,
		outcome.Memberships,
		outcome.Skipped,
		outcome.MaxDepthReached,
		started,
		finished,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (crawler.Run, error) {
	query := `
SELECT id, platform, seed, account, max_depth, status, submitted_at, started_at, finished_at,
	error_text, individuals_written, collections_written, memberships_written,
	nodes_skipped, max_depth_reached
FROM runs WHERE id = $1`
	var (
		run      crawler.Run
		platform string
		status   string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&platform,
		&run.Seed,
		&run.Account,
		&run.MaxDepth,
		&status,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&run.Outcome.Individuals,
		&run.Outcome.Collections,
		&run.Outcome.Memberships,
		&run.Outcome.Skipped,
		&run.Outcome.MaxDepthReached,
	)
	if err != nil {
		if isNoRows(err) {
			return crawler.Run{}, fmt.Errorf("run %q: %w", runID, crawler.ErrNotFound)
		}
		return crawler.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Platform = crawler.Platform(platform)
	run.Status = crawler.RunStatus(status)
	return run, nil
}
