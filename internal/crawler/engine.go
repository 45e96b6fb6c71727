package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/metrics"
	"github.com/JakeFAU/netgraph-crawler/internal/progress"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultMaxDepth bounds recursion from the seed.
	DefaultMaxDepth     = 2
	defaultCloseTimeout = 30 * time.Second
	tracerName          = "github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// EngineConfig controls traversal bounds and per-call deadlines.
type EngineConfig struct {
	MaxDepth     int
	CallTimeout  time.Duration
	CloseTimeout time.Duration
}

// Engine walks a source graph depth-first from a seed and upserts what it finds.
type Engine struct {
	store   Store
	emitter progress.Emitter
	logger  *zap.Logger
	tracer  trace.Tracer
	cfg     EngineConfig
}

// NewEngine wires an engine around a store. emitter and logger may be nil.
func NewEngine(store Store, emitter progress.Emitter, logger *zap.Logger, cfg EngineConfig) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	return &Engine{
		store:   store,
		emitter: emitter,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		cfg:     cfg,
	}
}

// CrawlOption adjusts a single crawl.
type CrawlOption func(*crawlOptions)

type crawlOptions struct {
	maxDepth int
	runID    string
}

// WithMaxDepth overrides the engine's depth bound for one crawl.
func WithMaxDepth(n int) CrawlOption {
	return func(o *crawlOptions) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

// WithRunID tags progress events and logs with a run id.
func WithRunID(id string) CrawlOption {
	return func(o *crawlOptions) {
		o.runID = id
	}
}

// run is the per-crawl state. Visited sets never outlive one Crawl call.
type run struct {
	e                  *Engine
	adapter            Adapter
	platform           Platform
	maxDepth           int
	runID              [16]byte
	visited            map[string]struct{}
	visitedCollections map[string]struct{}
	outcome            Outcome
	logger             *zap.Logger
}

// Crawl resolves seedKey through adapter and expands it up to the depth bound.
// Node-local failures are skipped; ErrNotAuthenticated, ErrStoreUnavailable and
// context cancellation abort the run. Writes made before an abort are kept.
func (e *Engine) Crawl(ctx context.Context, seedKey string, adapter Adapter, opts ...CrawlOption) (Outcome, error) {
	if adapter == nil {
		return Outcome{}, errors.New("adapter is required")
	}
	if e.store == nil {
		return Outcome{}, fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}
	options := crawlOptions{maxDepth: e.cfg.MaxDepth}
	for _, opt := range opts {
		opt(&options)
	}
	platform := adapter.Platform()
	r := &run{
		e:                  e,
		adapter:            adapter,
		platform:           platform,
		maxDepth:           options.maxDepth,
		runID:              progress.ParseRunID(options.runID),
		visited:            make(map[string]struct{}),
		visitedCollections: make(map[string]struct{}),
		logger: e.logger.With(
			zap.String("run_id", options.runID),
			zap.String("platform", string(platform)),
		),
	}

	ctx, span := e.tracer.Start(ctx, "crawler.Crawl", trace.WithAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("seed", seedKey),
		attribute.Int("max_depth", options.maxDepth),
	))
	defer span.End()

	start := time.Now()
	r.emit(progress.StageRunStart, seedKey, 0, 0, "")
	outcome, err := r.crawl(ctx, seedKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.emit(progress.StageRunError, seedKey, 0, time.Since(start), err.Error())
		r.logger.Warn("crawl aborted", zap.String("seed", seedKey), zap.Error(err))
		return outcome, err
	}
	r.emit(progress.StageRunDone, seedKey, 0, time.Since(start), "")
	r.logger.Info("crawl finished",
		zap.String("seed", seedKey),
		zap.Int("individuals", outcome.Individuals),
		zap.Int("collections", outcome.Collections),
		zap.Int("memberships", outcome.Memberships),
		zap.Int("skipped", outcome.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outcome, nil
}

func (r *run) crawl(ctx context.Context, seedKey string) (Outcome, error) {
	if s, ok := r.adapter.(Sessioner); ok {
		if err := s.Open(ctx); err != nil {
			return r.outcome, fmt.Errorf("open %s session: %w", r.platform, err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.e.cfg.CloseTimeout)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				r.logger.Warn("close session failed", zap.Error(err))
			}
		}()
	}

	seed, err := callAdapter(ctx, r, "resolve_seed", func(c context.Context) (Individual, error) {
		return r.adapter.ResolveSeed(c, seedKey)
	})
	if err != nil {
		if r.isFatal(ctx, err) {
			return r.outcome, err
		}
		if errors.Is(err, ErrSeedNotFound) {
			return r.outcome, err
		}
		return r.outcome, fmt.Errorf("%w: %q: %w", ErrSeedNotFound, seedKey, err)
	}
	if seed.Key == "" {
		return r.outcome, fmt.Errorf("%w: %q resolved to an empty key", ErrSeedNotFound, seedKey)
	}
	seed.Platform = r.platform
	r.outcome.SeedKey = seed.Key
	if err := r.visit(ctx, seed, 0, false); err != nil {
		return r.outcome, err
	}
	return r.outcome, nil
}

// visit upserts ind (unless the caller already did) and expands its collections.
func (r *run) visit(ctx context.Context, ind Individual, depth int, written bool) error {
	if depth > r.maxDepth {
		return nil
	}
	if _, seen := r.visited[ind.Key]; seen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl canceled: %w", err)
	}
	ctx, span := r.e.tracer.Start(ctx, "crawler.visit", trace.WithAttributes(
		attribute.String("key", ind.Key),
		attribute.Int("depth", depth),
	))
	defer span.End()

	r.visited[ind.Key] = struct{}{}
	if !written {
		if err := r.upsertIndividual(ctx, ind, depth); err != nil {
			return err
		}
	}

	refs, err := callAdapter(ctx, r, "list_collections", func(c context.Context) ([]CollectionRef, error) {
		return r.adapter.ListCollections(c, ind.Key)
	})
	if err != nil {
		if r.isFatal(ctx, err) {
			return err
		}
		r.skip(ind.Key, depth, "list_collections", err)
		return nil
	}
	for _, ref := range refs {
		if err := r.visitCollection(ctx, ind, ref, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) visitCollection(ctx context.Context, seed Individual, ref CollectionRef, depth int) error {
	if ref.Key == "" {
		return nil
	}
	if _, seen := r.visitedCollections[ref.Key]; seen {
		return r.upsertMembership(ctx, seed.Key, ref.Key, ref.Membership, depth)
	}
	ctx, span := r.e.tracer.Start(ctx, "crawler.collection", trace.WithAttributes(
		attribute.String("key", ref.Key),
		attribute.Int("depth", depth),
	))
	defer span.End()

	col, err := callAdapter(ctx, r, "get_collection", func(c context.Context) (Collection, error) {
		return r.adapter.GetCollection(c, ref)
	})
	if err != nil {
		if r.isFatal(ctx, err) {
			return err
		}
		r.skip(ref.Key, depth, "get_collection", err)
		return nil
	}
	col.Platform = r.platform
	col.Key = ref.Key
	if err := r.upsertCollection(ctx, col, depth); err != nil {
		return err
	}
	r.visitedCollections[ref.Key] = struct{}{}
	if err := r.upsertMembership(ctx, seed.Key, ref.Key, ref.Membership, depth); err != nil {
		return err
	}

	members, err := callAdapter(ctx, r, "list_members", func(c context.Context) ([]Member, error) {
		return r.adapter.ListMembers(c, ref)
	})
	if err != nil {
		if r.isFatal(ctx, err) {
			return err
		}
		// The collection stays linked to the seed; it just has no members this run.
		r.skip(ref.Key, depth, "list_members", err)
		members = nil
	}

	for _, m := range members {
		key := m.Individual.Key
		if key == "" {
			continue
		}
		if _, seen := r.visited[key]; seen {
			if err := r.upsertMembership(ctx, key, ref.Key, m.Membership, depth+1); err != nil {
				return err
			}
			continue
		}
		m.Individual.Platform = r.platform
		if err := r.upsertIndividual(ctx, m.Individual, depth+1); err != nil {
			return err
		}
		if err := r.upsertMembership(ctx, key, ref.Key, m.Membership, depth+1); err != nil {
			return err
		}
		if depth < r.maxDepth-1 {
			if err := r.visit(ctx, m.Individual, depth+1, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) upsertIndividual(ctx context.Context, ind Individual, depth int) error {
	start := time.Now()
	if err := r.e.store.UpsertIndividual(ctx, ind); err != nil {
		return fmt.Errorf("%w: upsert individual %q: %w", ErrStoreUnavailable, ind.Key, err)
	}
	r.outcome.Individuals++
	if depth > r.outcome.MaxDepthReached {
		r.outcome.MaxDepthReached = depth
	}
	metrics.ObserveEntityWrite(string(r.platform), "individual")
	r.emit(progress.StageIndividual, ind.Key, depth, time.Since(start), "")
	return nil
}

func (r *run) upsertCollection(ctx context.Context, col Collection, depth int) error {
	start := time.Now()
	if err := r.e.store.UpsertCollection(ctx, col); err != nil {
		return fmt.Errorf("%w: upsert collection %q: %w", ErrStoreUnavailable, col.Key, err)
	}
	r.outcome.Collections++
	metrics.ObserveEntityWrite(string(r.platform), "collection")
	r.emit(progress.StageCollection, col.Key, depth, time.Since(start), "")
	return nil
}

func (r *run) upsertMembership(ctx context.Context, individualKey, collectionKey string, attrs MembershipAttrs, depth int) error {
	m := Membership{
		Platform:        r.platform,
		IndividualKey:   individualKey,
		CollectionKey:   collectionKey,
		MembershipAttrs: attrs,
	}
	if err := r.e.store.UpsertMembership(ctx, m); err != nil {
		return fmt.Errorf("%w: upsert membership %q->%q: %w", ErrStoreUnavailable, individualKey, collectionKey, err)
	}
	r.outcome.Memberships++
	metrics.ObserveEntityWrite(string(r.platform), "membership")
	r.emit(progress.StageMembership, individualKey+"->"+collectionKey, depth, 0, "")
	return nil
}

// isFatal also treats an expired parent context (run deadline or shutdown) as fatal.
func (r *run) isFatal(ctx context.Context, err error) bool {
	return IsFatal(err) || ctx.Err() != nil
}

func (r *run) skip(key string, depth int, step string, err error) {
	r.outcome.Skipped++
	r.logger.Warn("skipping node",
		zap.String("key", key),
		zap.Int("depth", depth),
		zap.String("step", step),
		zap.Error(err),
	)
	r.emit(progress.StageSkip, key, depth, 0, step+": "+err.Error())
}

func (r *run) emit(stage progress.Stage, key string, depth int, dur time.Duration, note string) {
	if r.e.emitter == nil {
		return
	}
	r.e.emitter.Emit(progress.Event{
		RunID:    r.runID,
		TS:       time.Now().UTC(),
		Stage:    stage,
		Platform: string(r.platform),
		Key:      key,
		Depth:    depth,
		Dur:      dur,
		Note:     note,
	})
}

// callAdapter bounds one adapter call by the per-call timeout and records its latency.
func callAdapter[T any](ctx context.Context, r *run, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	cancel := func() {}
	if r.e.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.e.cfg.CallTimeout)
	}
	defer cancel()

	start := time.Now()
	v, err := fn(callCtx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if callCtx.Err() != nil && ctx.Err() == nil {
			outcome = "timeout"
		}
	}
	metrics.ObserveSourceCall(string(r.platform), op, outcome, time.Since(start))
	if err != nil {
		return v, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}
