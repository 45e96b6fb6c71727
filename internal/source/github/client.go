// Package github adapts the GitHub REST API to the crawler's Adapter contract:
// individuals are users, collections are repositories and memberships carry
// contribution counts.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/netgraph-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/netgraph-crawler/internal/metrics"
	"github.com/JakeFAU/netgraph-crawler/internal/policy/ratelimit"
)

const (
	defaultBaseURL             = "https://api.github.com"
	defaultPRWorkers           = 5
	defaultMaxPRPages          = 10
	defaultMaxContributorPages = 5
	defaultMaxSearchPages      = 10
	defaultMaxOwnedPages       = 3
	defaultCacheSize           = 4096
	defaultCacheTTL            = 6 * time.Hour
	defaultMaxRateLimitPause   = 2 * time.Minute
	apiVersion                 = "2022-11-28"
	noreplySuffix              = "users.noreply.github.com"
)

// Config tunes the GitHub client. Zero values fall back to defaults.
type Config struct {
	BaseURL             string
	UserAgent           string
	RequestTimeout      time.Duration
	RPS                 float64
	Burst               int
	PRWorkers           int
	MaxPRPages          int
	MaxContributorPages int
	MaxSearchPages      int
	MaxOwnedPages       int
	IncludeOwnedRepos   bool
	EmailFromCommits    bool
	CacheSize           int
	CacheTTL            time.Duration
	MaxRateLimitPause   time.Duration
}

type getter interface {
	Get(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Client owns the HTTP plumbing and caches shared by every per-token Adapter.
type Client struct {
	cfg        Config
	fetcher    getter
	limiter    *ratelimit.Limiter
	retry      crawler.RetryPolicy
	logger     *zap.Logger
	repoCache  *expirable.LRU[string, crawler.Collection]
	userCache  *expirable.LRU[string, apiUser]
	emailCache *expirable.LRU[string, string]
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithFetcher replaces the colly fetcher.
func WithFetcher(f getter) Option {
	return func(c *Client) { c.fetcher = f }
}

// WithRetryPolicy replaces the default exponential policy.
func WithRetryPolicy(p crawler.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSleep replaces the backoff sleeper; tests pass a no-op.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient builds a Client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PRWorkers <= 0 {
		cfg.PRWorkers = defaultPRWorkers
	}
	if cfg.MaxPRPages <= 0 {
		cfg.MaxPRPages = defaultMaxPRPages
	}
	if cfg.MaxContributorPages <= 0 {
		cfg.MaxContributorPages = defaultMaxContributorPages
	}
	if cfg.MaxSearchPages <= 0 {
		cfg.MaxSearchPages = defaultMaxSearchPages
	}
	if cfg.MaxOwnedPages <= 0 {
		cfg.MaxOwnedPages = defaultMaxOwnedPages
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxRateLimitPause <= 0 {
		cfg.MaxRateLimitPause = defaultMaxRateLimitPause
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		fetcher:    collyfetcher.New(collyfetcher.Config{UserAgent: cfg.UserAgent, Timeout: cfg.RequestTimeout}),
		limiter:    ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RPS, DefaultBurst: cfg.Burst}),
		retry:      crawler.NewExponentialRetryPolicy(),
		logger:     logger,
		repoCache:  expirable.NewLRU[string, crawler.Collection](cfg.CacheSize, nil, cfg.CacheTTL),
		userCache:  expirable.NewLRU[string, apiUser](cfg.CacheSize, nil, cfg.CacheTTL),
		emailCache: expirable.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForToken returns an Adapter that authenticates with token. An empty token
// makes unauthenticated requests with GitHub's lower quota.
func (c *Client) ForToken(token string) *Adapter {
	return &Adapter{client: c, token: token}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) headers(token string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", apiVersion)
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// getJSON fetches rawURL, retrying transient failures, and decodes a 2xx body
// into out. It returns the next-page link when the response carries one.
func (c *Client) getJSON(ctx context.Context, token, rawURL string, out any) (string, error) {
	resp, err := c.get(ctx, token, rawURL)
	if err != nil {
		return "", err
	}
	if len(resp.Body) > 0 && out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return "", fmt.Errorf("decode %s: %w", rawURL, err)
		}
	}
	return nextLink(resp.Headers.Get("Link")), nil
}

func (c *Client) get(ctx context.Context, token, rawURL string) (collyfetcher.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return collyfetcher.Response{}, err
		}
		resp, err := c.fetcher.Get(ctx, collyfetcher.Request{URL: rawURL, Headers: c.headers(token)})
		if err == nil {
			err = c.checkStatus(rawURL, resp)
		}
		if err == nil {
			return resp, nil
		}
		if !c.retry.ShouldRetry(err, attempt+1) {
			return resp, err
		}
		delay := c.retry.Backoff(attempt)
		c.logger.Debug("retrying github request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return resp, err
		}
	}
}

func (c *Client) checkStatus(rawURL string, resp collyfetcher.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	se := &StatusError{Code: resp.StatusCode, URL: rawURL}
	var body apiError
	if json.Unmarshal(resp.Body, &body) == nil {
		se.Message = body.Message
	}
	if resume, limited := c.rateLimitReset(resp); limited {
		se.RateLimited = true
		c.limiter.PauseUntil(rawURL, resume)
	}
	return se
}

// rateLimitReset reads GitHub's primary and secondary rate limit headers.
func (c *Client) rateLimitReset(resp collyfetcher.Response) (time.Time, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return time.Time{}, false
	}
	now := c.now()
	limit := now.Add(c.cfg.MaxRateLimitPause)
	if after := resp.Headers.Get("Retry-After"); after != "" {
		if secs, err := strconv.Atoi(after); err == nil {
			return minTime(now.Add(time.Duration(secs)*time.Second), limit), true
		}
	}
	if resp.Headers.Get("X-RateLimit-Remaining") == "0" {
		if reset, err := strconv.ParseInt(resp.Headers.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return minTime(time.Unix(reset, 0), limit), true
		}
		return limit, true
	}
	return time.Time{}, false
}

func (c *Client) cachedRepo(key string) (crawler.Collection, bool) {
	col, ok := c.repoCache.Get(strings.ToLower(key))
	metrics.ObserveCacheLookup("github_repo", ok)
	return col, ok
}

func (c *Client) cachedUser(login string) (apiUser, bool) {
	u, ok := c.userCache.Get(strings.ToLower(login))
	metrics.ObserveCacheLookup("github_user", ok)
	return u, ok
}

func (c *Client) cachedEmail(email string) (string, bool) {
	login, ok := c.emailCache.Get(strings.ToLower(email))
	metrics.ObserveCacheLookup("github_email", ok)
	return login, ok
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
