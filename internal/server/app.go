package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/network"
	"github.com/JakeFAU/netgraph-crawler/internal/telemetry"
)

// Run starts the workers, the scheduler and the HTTP server, and blocks until
// the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.dispatched = make(chan struct{})
	go func() {
		defer close(a.dispatched)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	if a.scheduler != nil {
		go func() {
			a.logger.Info("scheduler started", zap.Duration("interval", a.cfg.Scheduler.Interval()))
			a.scheduler.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close stops intake, waits for in-flight runs up to ctx's deadline and
// releases every client.
func (a *App) Close(ctx context.Context) error {
	for _, q := range a.queues {
		q.Close()
	}
	if a.dispatched != nil {
		select {
		case <-a.dispatched:
		case <-ctx.Done():
			a.logger.Warn("workers still running at shutdown deadline")
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

// CrawlOnce runs a single crawl in the foreground, bypassing the queue.
func (a *App) CrawlOnce(ctx context.Context, platform crawler.Platform, seed, account string, maxDepth int) (crawler.Outcome, error) {
	req := crawler.CrawlRequest{Platform: platform, Seed: seed, Account: account, MaxDepth: maxDepth}
	adapter, err := a.factory.NewAdapter(ctx, req)
	if err != nil {
		return crawler.Outcome{}, fmt.Errorf("build adapter: %w", err)
	}
	outcome, err := a.engine.Crawl(ctx, seed, adapter, crawler.WithMaxDepth(maxDepth))
	if err != nil {
		return outcome, err
	}
	if a.snapshotter != nil {
		key := outcome.SeedKey
		if key == "" {
			key = seed
		}
		if uri, err := a.snapshotter.Snapshot(ctx, platform, key); err != nil {
			a.logger.Warn("network snapshot failed", zap.Error(err))
		} else {
			a.logger.Info("network snapshot stored", zap.String("uri", uri))
		}
	}
	return outcome, nil
}

// Network renders the stored view around the given roots.
func (a *App) Network(ctx context.Context, roots network.Roots) (network.Network, error) {
	return a.builder.Build(ctx, roots)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.launcher != nil {
		a.launcher.Close()
	}
	a.stores.Close()
	if a.vault != nil {
		a.vault.Purge()
	}
	if err := telemetry.Shutdown(ctx, a.tracer); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
