// Package dispatcher fans crawl requests out to per-platform worker lanes.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/worker"
)

// Lane is one platform's queue and the workers draining it. LinkedIn runs
// share a login session per credential set, so its lane is usually one worker wide.
type Lane struct {
	Platform crawler.Platform
	Queue    crawler.Queue
	Workers  []*worker.Worker
}

// Dispatcher routes requests to lanes and runs their workers.
type Dispatcher struct {
	lanes map[crawler.Platform]Lane
}

// New creates a Dispatcher. A later lane for the same platform replaces an earlier one.
func New(lanes ...Lane) *Dispatcher {
	d := &Dispatcher{lanes: make(map[crawler.Platform]Lane, len(lanes))}
	for _, lane := range lanes {
		d.lanes[lane.Platform] = lane
	}
	return d
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, lane := range d.lanes {
		for _, w := range lane.Workers {
			wg.Add(1)
			go func(wk *worker.Worker) {
				defer wg.Done()
				wk.Run(ctx)
			}(w)
		}
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue hands req to its platform's lane.
func (d *Dispatcher) Enqueue(ctx context.Context, req crawler.CrawlRequest) error {
	lane, ok := d.lanes[req.Platform]
	if !ok {
		return fmt.Errorf("no lane for platform %q", req.Platform)
	}
	if err := lane.Queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
