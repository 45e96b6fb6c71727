// Package linkedin adapts a logged-in LinkedIn browser session to the
// crawler's Adapter contract: individuals are members, collections are
// companies and schools, memberships carry a role and a date range.
package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/fetcher/headless"
)

const (
	defaultBaseURL         = "https://www.linkedin.com"
	defaultLoginSettle     = 8 * time.Second
	defaultManualLoginWait = 15 * time.Second
	defaultScrollPause     = 2 * time.Second
	defaultMaxScrolls      = 40
)

// Browser is the slice of a headless session the adapter drives.
type Browser interface {
	Navigate(ctx context.Context, rawURL string) (headless.Page, error)
	HTML(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	ScrollToBottom(ctx context.Context) (int64, error)
	Sleep(ctx context.Context, d time.Duration) error
	Close() error
}

// LaunchFunc opens a fresh browser for one run.
type LaunchFunc func(ctx context.Context) (Browser, error)

// Config tunes scraping.
type Config struct {
	BaseURL         string
	LoginSettle     time.Duration
	ManualLoginWait time.Duration
	ScrollPause     time.Duration
	MaxScrolls      int
	EnrichContacts  bool
}

// Credentials sign a session in. Empty credentials mean a human logs in
// within ManualLoginWait.
type Credentials struct {
	Username string
	Password string
}

// Adapter implements crawler.Adapter and crawler.Sessioner over one browser
// session. It is single-use: one Open, one run, one Close.
type Adapter struct {
	cfg     Config
	creds   Credentials
	launch  LaunchFunc
	logger  *zap.Logger
	browser Browser
	selfID  string
}

var (
	_ crawler.Adapter   = (*Adapter)(nil)
	_ crawler.Sessioner = (*Adapter)(nil)
)

// New builds an Adapter. Nothing is launched until Open.
func New(cfg Config, creds Credentials, launch LaunchFunc, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LoginSettle <= 0 {
		cfg.LoginSettle = defaultLoginSettle
	}
	if cfg.ManualLoginWait <= 0 {
		cfg.ManualLoginWait = defaultManualLoginWait
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = defaultScrollPause
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = defaultMaxScrolls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, creds: creds, launch: launch, logger: logger}
}

// Platform implements crawler.Adapter.
func (a *Adapter) Platform() crawler.Platform {
	return crawler.PlatformLinkedIn
}

// Open launches the browser and signs in. A session that still lands on a
// login or checkpoint page afterwards fails with crawler.ErrNotAuthenticated.
func (a *Adapter) Open(ctx context.Context) error {
	if a.browser != nil {
		return nil
	}
	if a.launch == nil {
		return errors.New("linkedin: no browser launcher configured")
	}
	browser, err := a.launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	a.browser = browser
	if err := a.login(ctx); err != nil {
		_ = browser.Close()
		a.browser = nil
		return err
	}
	return nil
}

func (a *Adapter) login(ctx context.Context) error {
	if _, err := a.browser.Navigate(ctx, a.cfg.BaseURL+"/login"); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if a.creds.Username != "" && a.creds.Password != "" {
		if err := a.browser.Fill(ctx, `input[name="session_key"]`, a.creds.Username); err != nil {
			return fmt.Errorf("%w: fill username: %w", crawler.ErrNotAuthenticated, err)
		}
		if err := a.browser.Fill(ctx, `input[name="session_password"]`, a.creds.Password); err != nil {
			return fmt.Errorf("%w: fill password: %w", crawler.ErrNotAuthenticated, err)
		}
		if err := a.browser.Click(ctx, `button[type="submit"]`); err != nil {
			return fmt.Errorf("%w: submit login: %w", crawler.ErrNotAuthenticated, err)
		}
		if err := a.browser.Sleep(ctx, a.cfg.LoginSettle); err != nil {
			return err
		}
	} else {
		a.logger.Info("waiting for manual linkedin login", zap.Duration("wait", a.cfg.ManualLoginWait))
		if err := a.browser.Sleep(ctx, a.cfg.ManualLoginWait); err != nil {
			return err
		}
	}

	page, err := a.page(ctx, a.cfg.BaseURL+"/feed/")
	if err != nil {
		return err
	}
	id, err := parseOwnProfileID(page.HTML)
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}
	a.selfID = id
	return nil
}

// Close signs out and closes the browser. Logout is best effort.
func (a *Adapter) Close(ctx context.Context) error {
	if a.browser == nil {
		return nil
	}
	browser := a.browser
	a.browser = nil
	if _, err := browser.Navigate(ctx, a.cfg.BaseURL+"/m/logout/"); err != nil {
		a.logger.Warn("linkedin logout failed", zap.Error(err))
	}
	if err := browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// GetSeedIdentity returns the signed-in member's public id.
func (a *Adapter) GetSeedIdentity(ctx context.Context) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	if a.selfID != "" {
		return a.selfID, nil
	}
	page, err := a.page(ctx, a.cfg.BaseURL+"/feed/")
	if err != nil {
		return "", err
	}
	id, err := parseOwnProfileID(page.HTML)
	if err != nil {
		return "", fmt.Errorf("parse feed: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: signed-in profile link not found", crawler.ErrSeedNotFound)
	}
	a.selfID = id
	return id, nil
}

// ResolveSeed loads a member's profile. An empty id means the signed-in member.
func (a *Adapter) ResolveSeed(ctx context.Context, id string) (crawler.Individual, error) {
	id = strings.Trim(strings.TrimSpace(id), "/")
	if id == "" {
		self, err := a.GetSeedIdentity(ctx)
		if err != nil {
			return crawler.Individual{}, err
		}
		id = self
	}
	page, err := a.page(ctx, a.profileURL(id))
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.Individual{}, fmt.Errorf("%w: linkedin member %q", crawler.ErrSeedNotFound, id)
		}
		return crawler.Individual{}, err
	}
	ind, err := parseProfile(page.HTML, id)
	if err != nil {
		return crawler.Individual{Platform: crawler.PlatformLinkedIn, Key: id}, nil
	}
	return ind, nil
}

// ListCollections unions a member's experience and education entries. Either
// page may fail on its own; the run only gets an error when both do.
func (a *Adapter) ListCollections(ctx context.Context, id string) ([]crawler.CollectionRef, error) {
	profile := a.profileURL(id)
	var (
		refs   []crawler.CollectionRef
		seen   = map[string]struct{}{}
		failed []error
	)
	for _, section := range []string{"experience", "education"} {
		affs, err := a.affiliations(ctx, profile+"details/"+section+"/")
		if err != nil {
			if crawler.IsFatal(err) || ctx.Err() != nil {
				return nil, err
			}
			a.logger.Warn("affiliation page failed",
				zap.String("key", id), zap.String("step", section), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		for _, aff := range affs {
			if _, dup := seen[aff.ID]; dup {
				continue
			}
			seen[aff.ID] = struct{}{}
			start, end := ParseDateRange(aff.DateRange)
			refs = append(refs, crawler.CollectionRef{
				Key: aff.ID,
				URL: aff.URL,
				Membership: crawler.MembershipAttrs{
					Role:      crawler.StrPtr(aff.Role),
					StartDate: start,
					EndDate:   end,
				},
			})
		}
	}
	if len(failed) == 2 {
		return nil, fmt.Errorf("list affiliations of %q: %w", id, errors.Join(failed...))
	}
	return refs, nil
}

func (a *Adapter) affiliations(ctx context.Context, pageURL string) ([]affiliation, error) {
	page, err := a.page(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return parseAffiliations(page.HTML, a.cfg.BaseURL)
}

// GetCollection scrapes an organization's about page.
func (a *Adapter) GetCollection(ctx context.Context, ref crawler.CollectionRef) (crawler.Collection, error) {
	page, err := a.page(ctx, a.collectionURL(ref)+"about/")
	if err != nil {
		return crawler.Collection{}, err
	}
	col, err := parseOrganization(page.HTML)
	if err != nil {
		return crawler.Collection{}, fmt.Errorf("parse organization %q: %w", ref.Key, err)
	}
	if organizationEmpty(col) {
		return crawler.Collection{}, fmt.Errorf("organization %q: %w", ref.Key, crawler.ErrNotFound)
	}
	col.Key = ref.Key
	col.URL = crawler.StrPtr(a.collectionURL(ref))
	return col, nil
}

// ListMembers scrolls an organization's people page until its height stops
// growing, collecting cards as they render.
func (a *Adapter) ListMembers(ctx context.Context, ref crawler.CollectionRef) ([]crawler.Member, error) {
	if _, err := a.page(ctx, a.collectionURL(ref)+"people/"); err != nil {
		return nil, err
	}

	var (
		members    []crawler.Member
		seen       = map[string]struct{}{}
		lastHeight int64 = -1
	)
	for i := 0; i < a.cfg.MaxScrolls; i++ {
		height, err := a.browser.ScrollToBottom(ctx)
		if err != nil {
			if ctx.Err() != nil || len(members) == 0 {
				return members, fmt.Errorf("scroll people page: %w", err)
			}
			a.logger.Warn("people listing truncated", zap.String("key", ref.Key), zap.Error(err))
			break
		}
		if err := a.browser.Sleep(ctx, a.cfg.ScrollPause); err != nil {
			return members, err
		}
		html, err := a.browser.HTML(ctx)
		if err != nil {
			return members, fmt.Errorf("read people page: %w", err)
		}
		cards, err := parsePeopleCards(html)
		if err != nil {
			return members, fmt.Errorf("parse people page: %w", err)
		}
		for _, ind := range cards {
			if _, dup := seen[ind.Key]; dup {
				continue
			}
			seen[ind.Key] = struct{}{}
			members = append(members, crawler.Member{Individual: ind})
		}
		if height == lastHeight {
			break
		}
		lastHeight = height
	}

	if a.cfg.EnrichContacts {
		for i := range members {
			a.enrich(ctx, &members[i].Individual)
		}
	}
	return members, nil
}

func (a *Adapter) enrich(ctx context.Context, ind *crawler.Individual) {
	info, err := a.ContactInfo(ctx, ind.Key)
	if err != nil {
		a.logger.Debug("contact info unavailable",
			zap.String("key", ind.Key), zap.String("step", "contact_info"), zap.Error(err))
		return
	}
	ind.Email = info.Email
	if sites := info.AllWebsites(); len(sites) > 0 {
		ind.Websites = sites
	}
}

// ContactInfo scrapes a member's contact overlay.
func (a *Adapter) ContactInfo(ctx context.Context, id string) (ContactInfo, error) {
	page, err := a.page(ctx, a.profileURL(id)+"overlay/contact-info/")
	if err != nil {
		return ContactInfo{}, err
	}
	return parseContactInfo(page.HTML)
}

// page navigates and classifies the landing page.
func (a *Adapter) page(ctx context.Context, rawURL string) (headless.Page, error) {
	if err := a.ready(); err != nil {
		return headless.Page{}, err
	}
	page, err := a.browser.Navigate(ctx, rawURL)
	if err != nil {
		return headless.Page{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if onAuthWall(page.URL) {
		return headless.Page{}, fmt.Errorf("%w: redirected to %s", crawler.ErrNotAuthenticated, page.URL)
	}
	switch {
	case page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone:
		return headless.Page{}, fmt.Errorf("%s: %w", rawURL, crawler.ErrNotFound)
	case page.StatusCode >= http.StatusBadRequest:
		return headless.Page{}, fmt.Errorf("%s: status %d", rawURL, page.StatusCode)
	}
	return page, nil
}

func (a *Adapter) ready() error {
	if a.browser == nil {
		return fmt.Errorf("%w: linkedin session not open", crawler.ErrNotAuthenticated)
	}
	return nil
}

func (a *Adapter) profileURL(id string) string {
	return a.cfg.BaseURL + "/in/" + url.PathEscape(id) + "/"
}

func (a *Adapter) collectionURL(ref crawler.CollectionRef) string {
	if ref.URL != "" {
		if kind, id, ok := orgFromURL(ref.URL); ok {
			return orgURL(a.cfg.BaseURL, kind, id)
		}
	}
	return orgURL(a.cfg.BaseURL, "company", ref.Key)
}

func onAuthWall(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	p := u.Path
	return strings.HasPrefix(p, "/login") ||
		strings.HasPrefix(p, "/authwall") ||
		strings.HasPrefix(p, "/checkpoint") ||
		strings.HasPrefix(p, "/uas/login")
}
