// Package source builds per-run adapters, resolving credentials from the
// vault just before a run starts.
package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/netgraph-crawler/internal/source/github"
	"github.com/JakeFAU/netgraph-crawler/internal/source/linkedin"
	"github.com/JakeFAU/netgraph-crawler/internal/vault"
)

// SessionLauncher opens browser tabs; *headless.Launcher and *headless.Noop satisfy it.
type SessionLauncher interface {
	NewSession(ctx context.Context) (*headless.Session, error)
}

// Options configures a Factory.
type Options struct {
	GitHub *github.Client
	// GitHubToken is used when a run names no account or the account has no token.
	GitHubToken string
	LinkedIn    linkedin.Config
	Launcher    SessionLauncher
	// AllowManualLogin lets LinkedIn runs without stored credentials wait for a human.
	AllowManualLogin bool
	Vault            *vault.Vault
	Logger           *zap.Logger
}

// Factory implements crawler.AdapterFactory.
type Factory struct {
	opts   Options
	logger *zap.Logger
}

var _ crawler.AdapterFactory = (*Factory)(nil)

// NewFactory validates opts and returns a Factory.
func NewFactory(opts Options) (*Factory, error) {
	if opts.GitHub == nil {
		return nil, errors.New("github client is required")
	}
	if opts.Vault == nil {
		opts.Vault = vault.New()
	}
	if opts.Launcher == nil {
		opts.Launcher = headless.NewNoop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{opts: opts, logger: logger}, nil
}

// NewAdapter returns a fresh adapter for req.
func (f *Factory) NewAdapter(_ context.Context, req crawler.CrawlRequest) (crawler.Adapter, error) {
	switch req.Platform {
	case crawler.PlatformGitHub:
		return f.githubAdapter(req.Account)
	case crawler.PlatformLinkedIn:
		return f.linkedinAdapter(req.Account)
	default:
		return nil, fmt.Errorf("unsupported platform %q", req.Platform)
	}
}

func (f *Factory) githubAdapter(account string) (crawler.Adapter, error) {
	token := f.opts.GitHubToken
	if account != "" {
		cred, err := f.opts.Vault.Get(crawler.PlatformGitHub, account)
		switch {
		case err == nil:
			token = cred.Secret
		case errors.Is(err, vault.ErrNoCredential):
			f.logger.Debug("no stored github token, using default", zap.String("account", account))
		default:
			return nil, fmt.Errorf("resolve github token: %w", err)
		}
	}
	return f.opts.GitHub.ForToken(token), nil
}

func (f *Factory) linkedinAdapter(account string) (crawler.Adapter, error) {
	var creds linkedin.Credentials
	if account != "" {
		cred, err := f.opts.Vault.Get(crawler.PlatformLinkedIn, account)
		switch {
		case err == nil:
			creds = linkedin.Credentials{Username: cred.Username, Password: cred.Secret}
		case errors.Is(err, vault.ErrNoCredential):
		default:
			return nil, fmt.Errorf("resolve linkedin credentials: %w", err)
		}
	}
	if creds.Password == "" && !f.opts.AllowManualLogin {
		return nil, fmt.Errorf("%w: no linkedin credentials for %q", crawler.ErrNotAuthenticated, account)
	}
	launcher := f.opts.Launcher
	launch := func(ctx context.Context) (linkedin.Browser, error) {
		s, err := launcher.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return linkedin.New(f.opts.LinkedIn, creds, launch, f.logger.Named("linkedin")), nil
}

// EmailResolver resolves emails to GitHub logins with the default token.
func (f *Factory) EmailResolver() crawler.EmailResolver {
	return f.opts.GitHub.ForToken(f.opts.GitHubToken)
}

// HasLinkedInCredentials reports whether a scheduled LinkedIn run can sign in
// without a human.
func (f *Factory) HasLinkedInCredentials(account string) bool {
	return account != "" && f.opts.Vault.Has(crawler.PlatformLinkedIn, account)
}
