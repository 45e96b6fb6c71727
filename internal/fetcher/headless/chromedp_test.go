package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewLauncherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewLauncher(Config{MaxSessions: -1}); err == nil {
		t.Fatal("expected error for negative max sessions")
	}
	launcher, err := NewLauncher(Config{MaxSessions: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer launcher.Close()
	if cap(launcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(launcher.limiter))
	}
	if launcher.cfg.NavigationTimeout != defaultNavigationTimeout {
		t.Fatalf("expected default nav timeout, got %v", launcher.cfg.NavigationTimeout)
	}
	if launcher.cfg.SettleDelay != defaultSettleDelay {
		t.Fatalf("expected default settle delay, got %v", launcher.cfg.SettleDelay)
	}
}

func TestLauncherSlotsBlockUntilReleased(t *testing.T) {
	t.Parallel()

	launcher := &Launcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, launcher.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, launcher.acquire(ctx), context.DeadlineExceeded)

	launcher.release()
	require.NoError(t, launcher.acquire(context.Background()))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	tabCtx, cancel := context.WithCancel(context.Background())
	releases := 0
	s := &Session{ctx: tabCtx, cancel: cancel, release: func() { releases++ }, meta: newResponseMeta()}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, releases)
	require.ErrorIs(t, tabCtx.Err(), context.Canceled)

	_, err := s.Navigate(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, s.Sleep(context.Background(), time.Minute), ErrSessionClosed)
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	if len(src["X-Test"]) != 2 {
		t.Fatalf("source header mutated: %+v", src)
	}

	netHeaders := toNetworkHeaders(src)
	switch v := netHeaders["X-Test"].(type) {
	case []string:
		if len(v) != 2 {
			t.Fatalf("expected two entries, got %v", v)
		}
	default:
		t.Fatalf("expected []string, got %T", v)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://www.linkedin.com/feed/",
			Headers: network.Headers{"X-Li-Uuid": "abc"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 204 || headers.Get("X-Li-Uuid") != "abc" || url != "https://www.linkedin.com/feed/" {
		t.Fatalf("unexpected snapshot values: status=%d headers=%v url=%s", status, headers, url)
	}

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
}

func TestNoopLauncherError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().NewSession(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
