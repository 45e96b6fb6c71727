package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	queuememory "github.com/JakeFAU/netgraph-crawler/internal/queue/memory"
	"github.com/JakeFAU/netgraph-crawler/internal/worker"
)

func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(worker.Deps{Queue: queue}, worker.Config{}, zap.NewNop())
	dispatch := New(Lane{Platform: crawler.PlatformGitHub, Queue: queue, Workers: []*worker.Worker{w}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherRoutesByPlatform(t *testing.T) {
	t.Parallel()

	gh := queuememory.NewQueue(2)
	li := queuememory.NewQueue(2)
	dispatch := New(
		Lane{Platform: crawler.PlatformGitHub, Queue: gh},
		Lane{Platform: crawler.PlatformLinkedIn, Queue: li},
	)

	ctx := context.Background()
	require.NoError(t, dispatch.Enqueue(ctx, crawler.CrawlRequest{RunID: "a", Platform: crawler.PlatformGitHub}))
	require.NoError(t, dispatch.Enqueue(ctx, crawler.CrawlRequest{RunID: "b", Platform: crawler.PlatformLinkedIn}))
	require.NoError(t, dispatch.Enqueue(ctx, crawler.CrawlRequest{RunID: "c", Platform: crawler.PlatformLinkedIn}))
	require.Equal(t, 1, gh.Len())
	require.Equal(t, 2, li.Len())

	err := dispatch.Enqueue(ctx, crawler.CrawlRequest{RunID: "d", Platform: crawler.Platform("myspace")})
	require.ErrorContains(t, err, "no lane")
}

func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(Lane{Platform: crawler.PlatformGitHub, Queue: &errorQueue{err: errors.New("boom")}})

	err := dispatch.Enqueue(context.Background(), crawler.CrawlRequest{RunID: "run", Platform: crawler.PlatformGitHub})
	require.EqualError(t, err, "queue enqueue: boom")
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, crawler.CrawlRequest) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.CrawlRequest, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.CrawlRequest{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.CrawlRequest) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.CrawlRequest, error) {
	return crawler.CrawlRequest{}, nil
}
