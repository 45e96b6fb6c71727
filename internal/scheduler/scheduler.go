// Package scheduler periodically re-submits every registered seed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/submit"
)

// DefaultInterval is the re-sync period when none is configured.
const DefaultInterval = 24 * time.Hour

// Submitter queues runs; *submit.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (crawler.Run, error)
}

// CredentialChecker reports whether an unattended LinkedIn login is possible.
type CredentialChecker interface {
	HasLinkedInCredentials(account string) bool
}

// Sleeper pauses between seeds; system.Clock satisfies it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config controls the schedule.
type Config struct {
	Interval time.Duration
	Stagger  time.Duration
	// RunOnStart submits a round immediately instead of waiting one interval.
	RunOnStart bool
}

// Scheduler drives periodic re-crawls.
type Scheduler struct {
	seeds  crawler.SeedRegistry
	submit Submitter
	creds  CredentialChecker
	sleep  Sleeper
	cfg    Config
	logger *zap.Logger
}

// New wires a Scheduler.
func New(
	seeds crawler.SeedRegistry,
	submitter Submitter,
	creds CredentialChecker,
	sleeper Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		seeds:  seeds,
		submit: submitter,
		creds:  creds,
		sleep:  sleeper,
		cfg:    cfg,
		logger: logger,
	}
}

// Run submits a round every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.round(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	submitted, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled resync failed", zap.Int("submitted", submitted), zap.Error(err))
		return
	}
	s.logger.Info("scheduled resync submitted", zap.Int("submitted", submitted))
}

// RunOnce submits one run per registered seed, pausing Stagger between them.
// LinkedIn seeds without stored credentials are skipped. A single failed
// submission is logged and does not stop the round.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	seeds, err := s.seeds.ListSeeds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list seeds: %w", err)
	}
	submitted := 0
	for i, seed := range seeds {
		if seed.Platform == crawler.PlatformLinkedIn && (s.creds == nil || !s.creds.HasLinkedInCredentials(seed.Account)) {
			s.logger.Debug("skipping linkedin seed without credentials", zap.String("seed", seed.Key))
			continue
		}
		if i > 0 && s.cfg.Stagger > 0 && s.sleep != nil {
			if err := s.sleep.Sleep(ctx, s.cfg.Stagger); err != nil {
				return submitted, err
			}
		}
		run, err := s.submit.Submit(ctx, submit.Request{
			Platform: seed.Platform,
			Seed:     seed.Key,
			Account:  seed.Account,
		})
		if err != nil {
			if ctx.Err() != nil {
				return submitted, ctx.Err()
			}
			s.logger.Warn("resync submit failed",
				zap.String("platform", string(seed.Platform)),
				zap.String("seed", seed.Key),
				zap.Error(err),
			)
			continue
		}
		submitted++
		s.logger.Debug("resync queued", zap.String("run_id", run.ID), zap.String("seed", seed.Key))
	}
	return submitted, nil
}
