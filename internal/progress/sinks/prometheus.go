package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/netgraph-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-platform node counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	nodesVisited *prometheus.CounterVec
	nodesSkipped *prometheus.CounterVec
	nodeDepth    *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_runs_started_total",
			Help: "Total crawl runs that have started.",
		}, []string{"platform"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"platform", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netgraph_runs_running",
			Help: "Current number of running crawls.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netgraph_run_runtime_seconds",
			Help:    "Wall time per completed crawl.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"platform", "result"}),
		nodesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_nodes_visited_total",
			Help: "Graph nodes written partitioned by platform and kind.",
		}, []string{"platform", "kind"}),
		nodesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netgraph_nodes_skipped_total",
			Help: "Graph nodes skipped after a node-local failure.",
		}, []string{"platform"}),
		nodeDepth: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netgraph_node_depth",
			Help:    "Depth from the seed at which individuals were written.",
			Buckets: []float64{0, 1, 2, 3, 4},
		}, []string{"platform"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.nodesVisited,
		s.nodesSkipped,
		s.nodeDepth,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	platform := evt.Platform
	if platform == "" {
		platform = "unknown"
	}
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt, platform)
	case progress.StageIndividual:
		s.nodesVisited.WithLabelValues(platform, "individual").Inc()
		s.nodeDepth.WithLabelValues(platform).Observe(float64(evt.Depth))
	case progress.StageCollection:
		s.nodesVisited.WithLabelValues(platform, "collection").Inc()
	case progress.StageMembership:
		s.nodesVisited.WithLabelValues(platform, "membership").Inc()
	case progress.StageSkip:
		s.nodesSkipped.WithLabelValues(platform).Inc()
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event, platform string) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(platform).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues(platform, "success").Inc()
		s.observeRuntime(evt, platform, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues(platform, "error").Inc()
		s.observeRuntime(evt, platform, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, platform, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(platform, label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
