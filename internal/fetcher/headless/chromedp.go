// Package headless drives stateful Chrome tabs through chromedp. A Session
// keeps cookies between navigations, which is what a logged-in scrape needs.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 500 * time.Millisecond
)

// ErrSessionClosed is returned by calls on a closed Session.
var ErrSessionClosed = errors.New("headless session closed")

// Config controls browser sessions.
type Config struct {
	// MaxSessions caps concurrently open tabs; zero means unlimited.
	MaxSessions       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Headers           http.Header
	// Visible runs Chrome with a window, for manual logins.
	Visible bool
}

// Launcher owns the Chrome allocator and hands out sessions.
type Launcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewLauncher creates a Launcher backed by a local Chrome.
func NewLauncher(cfg Config) (*Launcher, error) {
	if cfg.MaxSessions < 0 {
		return nil, fmt.Errorf("max sessions must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	var limiter chan struct{}
	if cfg.MaxSessions > 0 {
		limiter = make(chan struct{}, cfg.MaxSessions)
	}

	headlessFlag := any("new")
	if cfg.Visible {
		headlessFlag = false
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headlessFlag),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Launcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (l *Launcher) Close() {
	l.allocCancel()
}

// NewSession opens a tab. It blocks while MaxSessions tabs are open.
func (l *Launcher) NewSession(ctx context.Context) (*Session, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(l.allocator)
	s := &Session{
		cfg:     l.cfg,
		ctx:     tabCtx,
		cancel:  tabCancel,
		release: l.release,
		meta:    newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)

	// The first Run must use the tab context itself so the tab outlives
	// per-call timeouts.
	if err := chromedp.Run(tabCtx, s.networkSetupAction()); err != nil {
		s.Close()
		return nil, fmt.Errorf("open browser tab: %w", err)
	}
	return s, nil
}

func (l *Launcher) acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	select {
	case l.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (l *Launcher) release() {
	if l.limiter == nil {
		return
	}
	select {
	case <-l.limiter:
	default:
	}
}

// Page is the rendered state of the tab after a navigation.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	HTML       string
	Duration   time.Duration
}

// Session is one browser tab. It is not safe for concurrent use.
type Session struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	meta    *responseMeta
	once    sync.Once
	closed  bool
}

// Navigate loads rawURL and returns the rendered DOM.
func (s *Session) Navigate(ctx context.Context, rawURL string) (Page, error) {
	var (
		html     string
		finalURL string
	)
	start := time.Now()
	err := s.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, err
	}
	status, headers, responseURL := s.meta.snapshotWithFallbacks(rawURL, finalURL)
	if finalURL != "" {
		responseURL = finalURL
	}
	return Page{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		HTML:       html,
		Duration:   time.Since(start),
	}, nil
}

// HTML returns the current DOM without navigating.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Fill types value into the element matched by selector.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Click clicks the element matched by selector and waits for the page to settle.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
}

// ScrollToBottom scrolls the document and reports its new height.
func (s *Session) ScrollToBottom(ctx context.Context) (int64, error) {
	var height int64
	err := s.run(ctx, chromedp.Evaluate(
		`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`,
		&height,
	))
	if err != nil {
		return 0, err
	}
	return height, nil
}

// Sleep waits on the tab's clock, honoring ctx.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("session sleep: %w", ctx.Err())
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-timer.C:
		return nil
	}
}

// Close closes the tab and frees its launcher slot. It is idempotent.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.closed = true
		s.cancel()
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

// run executes actions on the tab, bounded by the navigation timeout and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
