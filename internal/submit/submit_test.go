package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/id/uuid"
	queuememory "github.com/JakeFAU/netgraph-crawler/internal/queue/memory"
	"github.com/JakeFAU/netgraph-crawler/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingQueue struct{ err error }

func (q failingQueue) Enqueue(context.Context, crawler.CrawlRequest) error { return q.err }

type sequenceIDs struct{ n int }

func (s *sequenceIDs) NewID() (string, error) {
	s.n++
	return "run-" + string(rune('0'+s.n)), nil
}

var now = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func TestSubmitQueuesRunAndRegistersSeed(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	graph := memory.NewGraphStore()
	queue := queuememory.NewQueue(4)
	s := New(runs, graph, queue, uuid.New(), fixedClock{now: now}, 0, zap.NewNop())

	run, err := s.Submit(context.Background(), Request{
		Platform: crawler.PlatformGitHub,
		Seed:     "  alice ",
		Account:  "alice",
		Register: true,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusQueued, run.Status)
	require.Equal(t, "alice", run.Seed)
	require.Equal(t, crawler.DefaultMaxDepth, run.MaxDepth)
	require.Equal(t, now, run.Submitted)
	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)

	stored, err := runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, run, stored)

	req, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlRequest{
		RunID:     run.ID,
		Platform:  crawler.PlatformGitHub,
		Seed:      "alice",
		Account:   "alice",
		MaxDepth:  2,
		Submitted: now.Unix(),
	}, req)

	seeds, err := graph.ListSeeds(context.Background())
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	require.Equal(t, "alice", seeds[0].Account)
}

func TestSubmitSelfSeededLinkedInDefersRegistration(t *testing.T) {
	t.Parallel()

	graph := memory.NewGraphStore()
	queue := queuememory.NewQueue(1)
	s := New(memory.NewRunStore(), graph, queue, &sequenceIDs{}, fixedClock{now: now}, 1, nil)

	run, err := s.Submit(context.Background(), Request{
		Platform: crawler.PlatformLinkedIn,
		Account:  "me@example.com",
		MaxDepth: 3,
		Register: true,
	})
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, 3, run.MaxDepth)

	req, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.True(t, req.Register)
	require.Empty(t, req.Seed)

	seeds, err := graph.ListSeeds(context.Background())
	require.NoError(t, err)
	require.Empty(t, seeds)
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	s := New(memory.NewRunStore(), nil, queuememory.NewQueue(1), &sequenceIDs{}, fixedClock{now: now}, 2, nil)

	_, err := s.Submit(context.Background(), Request{Platform: crawler.PlatformGitHub, Seed: " "})
	require.ErrorContains(t, err, "seed login")

	_, err = s.Submit(context.Background(), Request{Platform: "myspace", Seed: "tom"})
	require.ErrorContains(t, err, "unsupported platform")
}

func TestSubmitEnqueueFailureMarksRunFailed(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	s := New(runs, nil, failingQueue{err: errors.New("lane full")}, &sequenceIDs{}, fixedClock{now: now}, 2, nil)

	_, err := s.Submit(context.Background(), Request{Platform: crawler.PlatformGitHub, Seed: "alice"})
	require.ErrorContains(t, err, "lane full")

	run, err := runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusFailed, run.Status)
	require.Equal(t, "lane full", run.ErrorText)
}
