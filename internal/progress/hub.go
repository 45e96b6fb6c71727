package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls how the Hub buffers crawl events before handing them to sinks.
// Zero values fall back to the package defaults.
type Config struct {
	// BufferSize is the capacity of the intake channel.
	BufferSize int
	// MaxBatchEvents flushes a batch as soon as it holds this many events.
	MaxBatchEvents int
	// MaxBatchWait bounds how long the first event of a batch may wait.
	MaxBatchWait time.Duration
	// SinkTimeout bounds a single Consume call.
	SinkTimeout time.Duration
	// BaseContext is the parent of every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 500
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropWarnInterval      = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub collects events from concurrently running crawls and delivers them to
// its sinks in batches. Emit never blocks a crawl: a full buffer drops events.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	dropWarn    rate.Sometimes
	sinceWarn   atomic.Int64
	accepted    atomic.Int64
	droppedTot  atomic.Int64
	closed      atomic.Bool
	stopOnce    sync.Once
	shutdownCtx context.Context
}

// NewHub starts the delivery loop for the given sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		sinks:    append([]Sink(nil), sinks...),
		events:   make(chan Event, cfg.BufferSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   cfg.Logger,
		dropWarn: rate.Sometimes{Interval: dropWarnInterval},
	}
	go h.loop()
	return h
}

// Emit queues evt for the next batch. Invalid events are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event",
			zap.String("stage", string(evt.Stage)),
			zap.Error(err),
		)
		return
	}
	select {
	case h.events <- evt:
		h.accepted.Add(1)
	default:
		h.droppedTot.Add(1)
		h.sinceWarn.Add(1)
		h.dropWarn.Do(func() {
			h.logger.Warn("progress buffer full, events dropped",
				zap.Int64("dropped", h.sinceWarn.Swap(0)),
				zap.String("last_stage", string(evt.Stage)),
			)
		})
	}
}

// Close stops intake, delivers whatever is still buffered and closes every
// sink. Later calls only wait for the first shutdown to finish.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.closed.Store(true)
		h.shutdownCtx = ctx
		close(h.quit)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// Stats reports how many events were accepted and dropped since start.
func (h *Hub) Stats() (accepted, dropped int64) {
	if h == nil {
		return 0, 0
	}
	return h.accepted.Load(), h.droppedTot.Load()
}

func (h *Hub) loop() {
	defer close(h.done)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	// deadline is nil while nothing is pending.
	var deadline <-chan time.Time
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			switch {
			case len(pending) >= h.cfg.MaxBatchEvents:
				pending = h.deliver(pending)
				deadline = nil
			case deadline == nil:
				deadline = time.After(h.cfg.MaxBatchWait)
			}
		case <-deadline:
			deadline = nil
			pending = h.deliver(pending)
		case <-h.quit:
			h.drain(pending)
			return
		}
	}
}

// drain empties the intake channel without waiting for more events.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.deliver(pending)
			}
		default:
			h.deliver(pending)
			h.closeSinks()
			return
		}
	}
}

// deliver hands a copy of pending to each sink and returns pending emptied.
func (h *Hub) deliver(pending []Event) []Event {
	if len(pending) == 0 {
		return pending
	}
	batch := append([]Event(nil), pending...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		h.consume(sink, batch)
	}
	return pending[:0]
}

func (h *Hub) consume(sink Sink, batch []Event) {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
	defer cancel()
	if err := sink.Consume(ctx, batch); err != nil {
		h.logger.Warn("progress sink consume failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
}

func (h *Hub) closeSinks() {
	ctx := h.shutdownCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
