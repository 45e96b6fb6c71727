package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/config"
	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/network"
)

func memoryConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5, ShutdownGraceSeconds: 1},
		Crawler: config.CrawlerConfig{MaxDepth: 2, GitHubWorkers: 1, QueueDepth: 4, MaxAttempts: 1},
		GitHub:  config.GitHubConfig{BaseURL: "http://127.0.0.1:1"},
		LinkedIn: config.LinkedInConfig{
			MaxSessions: 1,
			Username:    "me@example.com",
			Password:    "hunter22",
		},
		Database:  config.DatabaseConfig{Driver: "memory"},
		Storage:   config.StorageConfig{Backend: "memory", Snapshots: true, Prefix: "snapshots"},
		Scheduler: config.SchedulerConfig{Enabled: true, IntervalHours: 24},
		Progress:  config.ProgressConfig{Enabled: true, LogEvents: true},
	}
}

func TestBuildWiresMemoryBackends(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, memoryConfig(), "test", zap.NewNop())
	require.NoError(t, err)

	require.NotNil(t, app.scheduler)
	require.NotNil(t, app.snapshotter)
	require.Len(t, app.queues, 2)
	require.True(t, app.factory.HasLinkedInCredentials("me@example.com"))

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.stores.Graph.UpsertIndividual(ctx, crawler.Individual{Platform: crawler.PlatformGitHub, Key: "alice"}))
	view, err := app.Network(ctx, network.Roots{GitHub: "alice"})
	require.NoError(t, err)
	require.Len(t, view.Nodes, 1)

	_, err = app.Network(ctx, network.Roots{GitHub: "ghost"})
	require.ErrorIs(t, err, crawler.ErrNotFound)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, app.Close(closeCtx))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.Port = 18089
	cfg.Scheduler.Enabled = false
	app, err := Build(context.Background(), cfg, "test", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpenStoresSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stores, err := OpenStores(ctx, config.DatabaseConfig{
		Driver:        "sqlite",
		Path:          filepath.Join(t.TempDir(), "graph.db"),
		BusyTimeoutMs: 1000,
	}, zap.NewNop())
	require.NoError(t, err)
	defer stores.Close()

	require.NoError(t, stores.Migrate(ctx))
	require.NotNil(t, stores.Ready)
	require.NoError(t, stores.Ready.Ping(ctx))

	require.NoError(t, stores.Graph.UpsertIndividual(ctx, crawler.Individual{Platform: crawler.PlatformLinkedIn, Key: "jane-doe"}))
	got, err := stores.Graph.GetIndividual(ctx, crawler.PlatformLinkedIn, "jane-doe")
	require.NoError(t, err)
	require.Equal(t, "jane-doe", got.Key)
}

func TestOpenStoresMemory(t *testing.T) {
	t.Parallel()

	stores, err := OpenStores(context.Background(), config.DatabaseConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	require.Nil(t, stores.Ready)
	require.NoError(t, stores.Migrate(context.Background()))
	stores.Close()
}

func TestOpenStoresPostgresNeedsDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenStores(context.Background(), config.DatabaseConfig{Driver: "postgres"}, nil)
	require.ErrorContains(t, err, "database.dsn is required")
}
