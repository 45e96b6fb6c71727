// Package server builds the application graph from configuration and runs it.
package server

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/api"
	"github.com/JakeFAU/netgraph-crawler/internal/clock/system"
	"github.com/JakeFAU/netgraph-crawler/internal/config"
	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/dispatcher"
	"github.com/JakeFAU/netgraph-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/netgraph-crawler/internal/hash/sha256"
	"github.com/JakeFAU/netgraph-crawler/internal/id/uuid"
	"github.com/JakeFAU/netgraph-crawler/internal/network"
	"github.com/JakeFAU/netgraph-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/netgraph-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/netgraph-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/netgraph-crawler/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/netgraph-crawler/internal/queue/memory"
	"github.com/JakeFAU/netgraph-crawler/internal/scheduler"
	"github.com/JakeFAU/netgraph-crawler/internal/source"
	"github.com/JakeFAU/netgraph-crawler/internal/source/github"
	"github.com/JakeFAU/netgraph-crawler/internal/source/linkedin"
	gcsstorage "github.com/JakeFAU/netgraph-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/netgraph-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/netgraph-crawler/internal/storage/memory"
	"github.com/JakeFAU/netgraph-crawler/internal/submit"
	"github.com/JakeFAU/netgraph-crawler/internal/telemetry"
	"github.com/JakeFAU/netgraph-crawler/internal/vault"
	"github.com/JakeFAU/netgraph-crawler/internal/worker"
)

// memoryTopic names the in-memory event stream used when Pub/Sub is not configured.
const memoryTopic = "netgraph-runs"

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock

	stores      *Stores
	vault       *vault.Vault
	launcher    *headless.Launcher
	factory     *source.Factory
	engine      *crawler.Engine
	builder     *network.Builder
	snapshotter *network.Snapshotter

	queues     []*queuememory.Queue
	dispatch   *dispatcher.Dispatcher
	submitter  *submit.Submitter
	scheduler  *scheduler.Scheduler
	apiServer  *api.Server
	dispatched chan struct{}

	progressHub  *progress.Hub
	publisher    crawler.Publisher
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	storage      *storage.Client
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, version string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("version", version),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure(context.Background())
		}
	}()

	var err error
	app.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	app.stores, err = OpenStores(ctx, cfg.Database, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := app.stores.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupPublisher(ctx, app); err != nil {
		return nil, err
	}
	emitter := setupProgress(ctx, app)

	if err := setupSources(app); err != nil {
		return nil, err
	}

	app.engine = crawler.NewEngine(app.stores.Graph, emitter, logger.Named("engine"), crawler.EngineConfig{
		MaxDepth:     cfg.Crawler.MaxDepth,
		CallTimeout:  cfg.Crawler.CallTimeout(),
		CloseTimeout: cfg.Crawler.CloseTimeout(),
	})
	app.builder = network.NewBuilder(app.stores.Graph, app.factory.EmailResolver(), network.DefaultMaxOrder, logger.Named("network"))
	if cfg.Storage.Snapshots {
		app.snapshotter = network.NewSnapshotter(app.builder, blobs, sha256.New(), cfg.Storage.Prefix)
	}

	setupDispatcher(app)

	app.submitter = submit.New(
		app.stores.Runs,
		app.stores.Graph,
		app.dispatch,
		uuid.New(),
		app.clock,
		cfg.Crawler.MaxDepth,
		logger.Named("submit"),
	)

	if cfg.Scheduler.Enabled {
		app.scheduler = scheduler.New(app.stores.Graph, app.submitter, app.factory, app.clock, scheduler.Config{
			Interval:   cfg.Scheduler.Interval(),
			Stagger:    cfg.Scheduler.Stagger(),
			RunOnStart: cfg.Scheduler.RunOnStart,
		}, logger.Named("scheduler"))
	}

	deps := api.Deps{
		Submitter:   app.submitter,
		Runs:        app.stores.Runs,
		Graph:       app.stores.Graph,
		Resolver:    app.factory.EmailResolver(),
		Network:     app.builder,
		Credentials: app.vault,
	}
	if app.stores.Ready != nil {
		deps.Ready = app.stores.Ready
	}
	app.apiServer = api.NewServer(deps, api.Config{
		Auth:           cfg.Auth,
		RequestTimeout: cfg.Server.RequestTimeout(),
	}, logger.Named("api"))

	ok = true
	return app, nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) error {
	cfg := app.cfg.PubSub
	if cfg.TopicName == "" || cfg.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, recording run events in memory")
		app.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.gcpPublisher = gcppublisher.New(client)
	app.publisher = app.gcpPublisher
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.TopicName),
	)
	return nil
}

func setupProgress(ctx context.Context, app *App) progress.Emitter {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress tracking disabled")
		return nil
	}
	var sinkList []progress.Sink
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		app.logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if cfg.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if len(sinkList) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return nil
	}
	hubCfg := progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		MaxBatchWait:   time.Duration(cfg.MaxBatchWaitMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub
}

func setupSources(app *App) error {
	gh := app.cfg.GitHub
	li := app.cfg.LinkedIn

	app.vault = vault.New()
	if li.Username != "" && li.Password != "" {
		if err := app.vault.Put(crawler.PlatformLinkedIn, li.Username, vault.Credential{
			Username: li.Username,
			Secret:   li.Password,
		}); err != nil {
			return fmt.Errorf("seed linkedin credentials: %w", err)
		}
		app.logger.Info("default linkedin account loaded")
	}

	client := github.NewClient(github.Config{
		BaseURL:             gh.BaseURL,
		UserAgent:           gh.UserAgent,
		RequestTimeout:      time.Duration(gh.RequestTimeoutSeconds) * time.Second,
		RPS:                 gh.RPS,
		Burst:               gh.Burst,
		PRWorkers:           gh.PRWorkers,
		MaxPRPages:          gh.MaxPRPages,
		MaxContributorPages: gh.MaxContributorPages,
		MaxSearchPages:      gh.MaxSearchPages,
		MaxOwnedPages:       gh.MaxOwnedPages,
		IncludeOwnedRepos:   gh.IncludeOwnedRepos,
		EmailFromCommits:    gh.EmailFromCommits,
		CacheSize:           gh.CacheSize,
		CacheTTL:            time.Duration(gh.CacheTTLMinutes) * time.Minute,
		MaxRateLimitPause:   time.Duration(gh.MaxRateLimitPauseSeconds) * time.Second,
	}, app.logger.Named("github"), github.WithSleep(app.clock.Sleep))
	if gh.Token == "" {
		app.logger.Warn("no github token configured, using the unauthenticated quota")
	}

	opts := source.Options{
		GitHub:      client,
		GitHubToken: gh.Token,
		LinkedIn: linkedin.Config{
			BaseURL:         li.BaseURL,
			LoginSettle:     time.Duration(li.LoginSettleSeconds) * time.Second,
			ManualLoginWait: time.Duration(li.ManualLoginWaitSeconds) * time.Second,
			ScrollPause:     time.Duration(li.ScrollPauseMs) * time.Millisecond,
			MaxScrolls:      li.MaxScrolls,
			EnrichContacts:  li.EnrichContacts,
		},
		AllowManualLogin: li.AllowManualLogin,
		Vault:            app.vault,
		Logger:           app.logger.Named("source"),
	}
	launcher, err := headless.NewLauncher(headless.Config{
		MaxSessions:       li.MaxSessions,
		UserAgent:         li.UserAgent,
		NavigationTimeout: time.Duration(li.NavigationTimeoutSeconds) * time.Second,
		Visible:           li.Visible,
	})
	if err != nil {
		app.logger.Warn("headless launcher init failed, linkedin runs will fail", zap.Error(err))
	} else {
		app.launcher = launcher
		opts.Launcher = launcher
	}

	app.factory, err = source.NewFactory(opts)
	if err != nil {
		return fmt.Errorf("source factory init failed: %w", err)
	}
	return nil
}

func setupDispatcher(app *App) {
	cfg := app.cfg
	topic := cfg.PubSub.TopicName
	if app.gcpPublisher == nil {
		topic = memoryTopic
	}
	base, maxDelay := cfg.Crawler.RetryDelays()
	retry := crawler.NewExponentialRetryPolicy(
		crawler.WithMaxAttempts(cfg.Crawler.MaxAttempts),
		crawler.WithDelays(base, maxDelay),
	)
	workerCfg := worker.Config{Topic: topic, RunTimeout: cfg.Crawler.RunTimeout()}
	app.logger.Info("worker config",
		zap.String("topic", workerCfg.Topic),
		zap.Duration("run_timeout", workerCfg.RunTimeout),
		zap.Int("max_attempts", cfg.Crawler.MaxAttempts),
		zap.Int("github_workers", cfg.Crawler.GitHubWorkers),
		zap.Int("linkedin_workers", cfg.LinkedIn.MaxSessions),
	)

	lane := func(platform crawler.Platform, n int) dispatcher.Lane {
		q := queuememory.NewQueue(cfg.Crawler.QueueDepth)
		app.queues = append(app.queues, q)
		deps := worker.Deps{
			Queue:     q,
			Runs:      app.stores.Runs,
			Factory:   app.factory,
			Engine:    app.engine,
			Seeds:     app.stores.Graph,
			Publisher: app.publisher,
			Clock:     app.clock,
			Retry:     retry,
		}
		if app.snapshotter != nil {
			deps.Snapshots = app.snapshotter
		}
		workers := make([]*worker.Worker, 0, n)
		for i := 0; i < n; i++ {
			workers = append(workers, worker.New(deps, workerCfg,
				app.logger.Named("worker").With(zap.String("lane", string(platform)), zap.Int("index", i))))
		}
		return dispatcher.Lane{Platform: platform, Queue: q, Workers: workers}
	}
	app.dispatch = dispatcher.New(
		lane(crawler.PlatformGitHub, cfg.Crawler.GitHubWorkers),
		lane(crawler.PlatformLinkedIn, cfg.LinkedIn.MaxSessions),
	)
}
