// Package memory provides the in-process crawl request queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = crawler.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
// Enqueue after Close fails instead of panicking; Dequeue drains what is left.
type Queue struct {
	ch        chan crawler.CrawlRequest
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan crawler.CrawlRequest, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a request into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, req crawler.CrawlRequest) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.CrawlRequest, error) {
	select {
	case req := <-q.ch:
		return req, nil
	default:
	}
	select {
	case <-ctx.Done():
		return crawler.CrawlRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req := <-q.ch:
		return req, nil
	case <-q.done:
		return crawler.CrawlRequest{}, ErrClosed
	}
}

// Len reports how many requests are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting requests. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
