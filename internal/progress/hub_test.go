package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(nodeEvent(StageIndividual, "alice"))
	hub.Emit(nodeEvent(StageIndividual, "bob"))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByDeadline(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(nodeEvent(StageRunStart, ""))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubDeadlineStartsAtFirstPendingEvent(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 64, MaxBatchEvents: 1000, MaxBatchWait: 60 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	// A steady trickle must not postpone delivery indefinitely.
	stop := time.After(300 * time.Millisecond)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for emitting := true; emitting; {
		select {
		case <-tick.C:
			hub.Emit(nodeEvent(StageCollection, "octo/repo"))
		case <-stop:
			emitting = false
		}
	}
	require.GreaterOrEqual(t, len(sink.Batches()), 2)
}

func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	hub.Emit(nodeEvent(StageRunStart, ""))
	hub.Emit(nodeEvent(StageRunStart, ""))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	accepted, dropped := hub.Stats()
	require.Zero(t, accepted)
	require.Equal(t, int64(2), dropped)
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(nodeEvent(StageRunDone, ""))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.Closed())
	accepted, dropped := hub.Stats()
	require.Equal(t, int64(1), accepted)
	require.Zero(t, dropped)

	hub.Emit(nodeEvent(StageRunDone, ""))
	accepted, _ = hub.Stats()
	require.Equal(t, int64(1), accepted)
}

func TestHubFailingSinkDoesNotStarveOthers(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("sink offline")}
	healthy := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, nil, healthy)

	hub.Emit(nodeEvent(StageSkip, "octo/gone"))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, healthy.Batches(), 1)
	require.Equal(t, StageSkip, healthy.Batches()[0][0].Stage)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{TS: time.Now(), Stage: StageRunStart})
	hub.Emit(Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: StageIndividual})
	hub.Emit(Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now(), Stage: "BOGUS"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestParseRunID(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	require.Equal(t, UUIDToBytes(id), ParseRunID(id.String()))
	require.Equal(t, [16]byte{}, ParseRunID("not-a-uuid"))
	require.Equal(t, id, Event{RunID: UUIDToBytes(id)}.RunUUID())
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	err     error
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func nodeEvent(stage Stage, key string) Event {
	return Event{
		RunID:    UUIDToBytes(uuid.New()),
		TS:       time.Now(),
		Stage:    stage,
		Platform: "github",
		Key:      key,
	}
}
