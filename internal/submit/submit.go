// Package submit records crawl runs and hands them to the dispatcher.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// Enqueuer accepts crawl requests; *dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req crawler.CrawlRequest) error
}

// Request describes one crawl to run asynchronously.
type Request struct {
	Platform crawler.Platform
	// Seed may be empty for LinkedIn, meaning the signed-in member.
	Seed    string
	Account string
	// MaxDepth overrides the configured bound when positive.
	MaxDepth int
	// Register adds the seed to the periodic re-crawl registry. Self-seeded
	// runs are registered by the worker once the identity is known.
	Register bool
}

// Submitter creates run records and queues them.
type Submitter struct {
	runs     crawler.RunStore
	seeds    crawler.SeedRegistry
	queue    Enqueuer
	ids      crawler.IDGenerator
	clock    crawler.Clock
	maxDepth int
	logger   *zap.Logger
}

// New wires a Submitter. seeds may be nil when nothing is registered.
func New(
	runs crawler.RunStore,
	seeds crawler.SeedRegistry,
	queue Enqueuer,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	maxDepth int,
	logger *zap.Logger,
) *Submitter {
	if maxDepth <= 0 {
		maxDepth = crawler.DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		runs:     runs,
		seeds:    seeds,
		queue:    queue,
		ids:      ids,
		clock:    clock,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// Submit persists a queued run and enqueues it. The returned run is the queued record.
func (s *Submitter) Submit(ctx context.Context, req Request) (crawler.Run, error) {
	req.Seed = strings.TrimSpace(req.Seed)
	if req.Platform != crawler.PlatformGitHub && req.Platform != crawler.PlatformLinkedIn {
		return crawler.Run{}, fmt.Errorf("unsupported platform %q", req.Platform)
	}
	if req.Seed == "" && req.Platform == crawler.PlatformGitHub {
		return crawler.Run{}, errors.New("github runs need a seed login")
	}
	depth := s.maxDepth
	if req.MaxDepth > 0 {
		depth = req.MaxDepth
	}

	id, err := s.ids.NewID()
	if err != nil {
		return crawler.Run{}, fmt.Errorf("run id: %w", err)
	}
	now := s.clock.Now()
	run := crawler.Run{
		ID:        id,
		Platform:  req.Platform,
		Seed:      req.Seed,
		Account:   req.Account,
		MaxDepth:  depth,
		Status:    crawler.RunStatusQueued,
		Submitted: now,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return crawler.Run{}, fmt.Errorf("create run: %w", err)
	}

	if req.Register && req.Seed != "" && s.seeds != nil {
		err := s.seeds.RegisterSeed(ctx, crawler.Seed{
			Platform:     req.Platform,
			Key:          req.Seed,
			Account:      req.Account,
			RegisteredAt: now,
		})
		if err != nil {
			s.logger.Warn("register seed failed",
				zap.String("platform", string(req.Platform)),
				zap.String("seed", req.Seed),
				zap.Error(err),
			)
		}
	}

	err = s.queue.Enqueue(ctx, crawler.CrawlRequest{
		RunID:     id,
		Platform:  req.Platform,
		Seed:      req.Seed,
		Account:   req.Account,
		MaxDepth:  depth,
		Register:  req.Register && req.Seed == "",
		Submitted: now.Unix(),
	})
	if err != nil {
		if uerr := s.runs.UpdateRunStatus(ctx, id, crawler.RunStatusFailed, err.Error(), crawler.Outcome{}); uerr != nil {
			s.logger.Error("mark unqueued run failed", zap.String("run_id", id), zap.Error(uerr))
		}
		return crawler.Run{}, fmt.Errorf("enqueue run: %w", err)
	}
	s.logger.Info("run submitted",
		zap.String("run_id", id),
		zap.String("platform", string(req.Platform)),
		zap.String("seed", req.Seed),
		zap.Int("max_depth", depth),
	)
	return run, nil
}
