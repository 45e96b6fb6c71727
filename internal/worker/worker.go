// Package worker executes queued crawl runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/metrics"
)

// Crawler is the engine surface a worker drives; *crawler.Engine satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, seedKey string, adapter crawler.Adapter, opts ...crawler.CrawlOption) (crawler.Outcome, error)
}

// Snapshotter exports a seed's network view after a successful run.
type Snapshotter interface {
	Snapshot(ctx context.Context, platform crawler.Platform, key string) (string, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives run completion events; empty disables publishing.
	Topic string
	// RunTimeout bounds one crawl; zero means no limit beyond the parent context.
	RunTimeout time.Duration
}

// Deps groups a worker's collaborators. Seeds, Snapshots, Publisher and Retry are optional.
type Deps struct {
	Queue     crawler.Queue
	Runs      crawler.RunStore
	Factory   crawler.AdapterFactory
	Engine    Crawler
	Seeds     crawler.SeedRegistry
	Snapshots Snapshotter
	Publisher crawler.Publisher
	Clock     crawler.Clock
	Retry     crawler.RetryPolicy
}

// Worker consumes crawl requests and runs them to a terminal status.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// RunEvent is published when a run reaches a terminal status.
type RunEvent struct {
	RunID       string            `json:"run_id"`
	Platform    crawler.Platform  `json:"platform"`
	Seed        string            `json:"seed"`
	Status      crawler.RunStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	Outcome     crawler.Outcome   `json:"outcome"`
	Attempt     int               `json:"attempt"`
	SnapshotURI string            `json:"snapshot_uri,omitempty"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Attributes exposes routing fields as Pub/Sub message attributes.
func (e RunEvent) Attributes() map[string]string {
	return map[string]string{
		"run_id":   e.RunID,
		"platform": string(e.Platform),
		"status":   string(e.Status),
		"attempt":  strconv.Itoa(e.Attempt),
	}
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger}
}

// Run blocks, consuming requests until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID), zap.String("platform", string(req.Platform)))
		w.processRun(ctx, req)
	}
}

func (w *Worker) processRun(ctx context.Context, req crawler.CrawlRequest) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(
		zap.String("run_id", req.RunID),
		zap.String("platform", string(req.Platform)),
		zap.String("seed", req.Seed),
		zap.Int("attempt", req.Attempt),
	)

	if err := w.deps.Runs.UpdateRunStatus(ctx, req.RunID, crawler.RunStatusRunning, "", crawler.Outcome{}); err != nil {
		logger.Error("update run status failed", zap.Error(err))
		return
	}

	outcome, crawlErr := w.crawl(ctx, req)
	if w.retry(ctx, req, crawlErr, logger) {
		return
	}
	status, errText := deriveFinalStatus(ctx, crawlErr)

	if err := w.deps.Runs.UpdateRunStatus(ctx, req.RunID, status, errText, outcome); err != nil {
		logger.Error("final run status update failed", zap.Error(err))
	}
	metrics.ObserveRun(string(req.Platform), string(status))

	seedKey := outcome.SeedKey
	if seedKey == "" {
		seedKey = req.Seed
	}
	var snapshotURI string
	if status == crawler.RunStatusSucceeded {
		if req.Register {
			w.registerSeed(ctx, req, seedKey, logger)
		}
		w.touchSeed(ctx, req.Platform, seedKey, logger)
		snapshotURI = w.snapshot(ctx, req.Platform, seedKey, logger)
	}

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("individuals", outcome.Individuals),
		zap.Int("collections", outcome.Collections),
		zap.Int("memberships", outcome.Memberships),
		zap.Int("skipped", outcome.Skipped),
		zap.String("error", errText),
	)

	w.publishResult(ctx, RunEvent{
		RunID:       req.RunID,
		Platform:    req.Platform,
		Seed:        seedKey,
		Status:      status,
		Error:       errText,
		Outcome:     outcome,
		Attempt:     req.Attempt,
		SnapshotURI: snapshotURI,
		FinishedAt:  w.now(),
	}, logger)
}

func (w *Worker) crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.Outcome, error) {
	runCtx := ctx
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}
	adapter, err := w.deps.Factory.NewAdapter(runCtx, req)
	if err != nil {
		return crawler.Outcome{}, fmt.Errorf("build adapter: %w", err)
	}
	return w.deps.Engine.Crawl(runCtx, req.Seed, adapter,
		crawler.WithMaxDepth(req.MaxDepth),
		crawler.WithRunID(req.RunID),
	)
}

// retry re-enqueues a failed run when the policy allows it. It reports whether
// the run was handed back to the queue.
func (w *Worker) retry(ctx context.Context, req crawler.CrawlRequest, crawlErr error, logger *zap.Logger) bool {
	if crawlErr == nil || w.deps.Retry == nil || ctx.Err() != nil {
		return false
	}
	next := req.Attempt + 1
	if !w.deps.Retry.ShouldRetry(crawlErr, next) {
		return false
	}
	delay := w.deps.Retry.Backoff(req.Attempt)
	logger.Warn("run failed, retrying", zap.Duration("backoff", delay), zap.Error(crawlErr))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	if err := w.deps.Runs.UpdateRunStatus(ctx, req.RunID, crawler.RunStatusQueued, crawlErr.Error(), crawler.Outcome{}); err != nil {
		logger.Error("requeue status update failed", zap.Error(err))
		return false
	}
	req.Attempt = next
	if err := w.deps.Queue.Enqueue(ctx, req); err != nil {
		logger.Error("requeue failed", zap.Error(err))
		return false
	}
	return true
}

func (w *Worker) registerSeed(ctx context.Context, req crawler.CrawlRequest, key string, logger *zap.Logger) {
	if w.deps.Seeds == nil || key == "" {
		return
	}
	err := w.deps.Seeds.RegisterSeed(ctx, crawler.Seed{
		Platform:     req.Platform,
		Key:          key,
		Account:      req.Account,
		RegisteredAt: w.now(),
	})
	if err != nil {
		logger.Warn("register seed failed", zap.Error(err))
	}
}

func (w *Worker) touchSeed(ctx context.Context, platform crawler.Platform, key string, logger *zap.Logger) {
	if w.deps.Seeds == nil {
		return
	}
	err := w.deps.Seeds.TouchSeed(ctx, platform, key, w.now())
	if err != nil && !errors.Is(err, crawler.ErrNotFound) {
		logger.Warn("touch seed failed", zap.Error(err))
	}
}

func (w *Worker) snapshot(ctx context.Context, platform crawler.Platform, key string, logger *zap.Logger) string {
	if w.deps.Snapshots == nil {
		return ""
	}
	uri, err := w.deps.Snapshots.Snapshot(ctx, platform, key)
	if err != nil {
		logger.Warn("network snapshot failed", zap.Error(err))
		return ""
	}
	logger.Debug("network snapshot stored", zap.String("uri", uri))
	return uri
}

func (w *Worker) publishResult(ctx context.Context, evt RunEvent, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return
	}
	msgID, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, evt)
	if err != nil {
		logger.Error("publish run event failed", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("topic", w.cfg.Topic), zap.String("message_id", msgID))
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now()
}

func deriveFinalStatus(ctx context.Context, crawlErr error) (crawler.RunStatus, string) {
	switch {
	case crawlErr == nil:
		return crawler.RunStatusSucceeded, ""
	case ctx.Err() != nil || errors.Is(crawlErr, context.Canceled):
		return crawler.RunStatusCanceled, crawlErr.Error()
	default:
		return crawler.RunStatusFailed, crawlErr.Error()
	}
}
