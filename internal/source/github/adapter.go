package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

const perPage = "100"

// Adapter implements crawler.Adapter for one GitHub token.
type Adapter struct {
	client *Client
	token  string
}

var (
	_ crawler.Adapter       = (*Adapter)(nil)
	_ crawler.EmailResolver = (*Adapter)(nil)
)

// Platform implements crawler.Adapter.
func (a *Adapter) Platform() crawler.Platform {
	return crawler.PlatformGitHub
}

// ResolveSeed loads the user behind login.
func (a *Adapter) ResolveSeed(ctx context.Context, login string) (crawler.Individual, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return crawler.Individual{}, fmt.Errorf("%w: empty github login", crawler.ErrSeedNotFound)
	}
	u, err := a.user(ctx, login)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.Individual{}, fmt.Errorf("%w: github user %q", crawler.ErrSeedNotFound, login)
		}
		return crawler.Individual{}, err
	}
	return toIndividual(u), nil
}

// ListCollections reports every repository login has contributed to.
func (a *Adapter) ListCollections(ctx context.Context, login string) ([]crawler.CollectionRef, error) {
	repos, err := a.ListContributions(ctx, login)
	if err != nil {
		return nil, err
	}
	refs := make([]crawler.CollectionRef, 0, len(repos))
	for _, repo := range repos {
		refs = append(refs, crawler.CollectionRef{Key: repo, URL: "https://github.com/" + repo})
	}
	return refs, nil
}

// ListContributions unions the repositories found through commit search with
// those where login opened pull requests. Candidates for the pull request
// check are the commit repositories plus, optionally, the user's own
// non-fork repositories. Either signal may fail on its own; an error is
// returned only when neither produced an answer.
func (a *Adapter) ListContributions(ctx context.Context, login string) ([]string, error) {
	commitRepos, commitErr := a.commitRepos(ctx, login)
	if commitErr != nil {
		if crawler.IsFatal(commitErr) {
			return nil, fmt.Errorf("commit search: %w", commitErr)
		}
		a.client.logger.Warn("commit search failed",
			zap.String("key", login), zap.String("step", "commit_search"), zap.Error(commitErr))
	}

	found := make(map[string]struct{}, len(commitRepos))
	candidates := make(map[string]struct{}, len(commitRepos))
	for _, repo := range commitRepos {
		found[repo] = struct{}{}
		candidates[repo] = struct{}{}
	}
	ownedOK := false
	if a.client.cfg.IncludeOwnedRepos {
		owned, err := a.ownedRepos(ctx, login)
		switch {
		case err == nil:
			ownedOK = true
		case crawler.IsFatal(err):
			return nil, err
		default:
			a.client.logger.Warn("owned repository listing failed",
				zap.String("key", login), zap.String("step", "owned_repos"), zap.Error(err))
		}
		if len(owned) > 0 {
			ownedOK = true
		}
		for _, repo := range owned {
			candidates[repo] = struct{}{}
		}
	}
	if commitErr != nil && !ownedOK {
		return nil, fmt.Errorf("commit search: %w", commitErr)
	}

	prRepos, err := a.pullRequestRepos(ctx, login, sortedKeys(candidates))
	if err != nil {
		return nil, err
	}
	for _, repo := range prRepos {
		found[repo] = struct{}{}
	}
	return sortedKeys(found), nil
}

// commitRepos pages through search/commits. Each page depends on the previous
// response's Link header, so this is sequential. A failure after the first
// page keeps what was collected.
func (a *Adapter) commitRepos(ctx context.Context, login string) ([]string, error) {
	next := a.client.endpoint("search/commits", url.Values{
		"q":        {"author:" + login},
		"per_page": {perPage},
	})
	seen := map[string]struct{}{}
	for page := 0; next != "" && page < a.client.cfg.MaxSearchPages; page++ {
		var result apiCommitSearch
		link, err := a.client.getJSON(ctx, a.token, next, &result)
		if err != nil {
			if page == 0 || crawler.IsFatal(err) {
				return nil, err
			}
			a.client.logger.Warn("commit search truncated",
				zap.String("key", login), zap.Int("page", page), zap.Error(err))
			break
		}
		for _, item := range result.Items {
			if name := item.Repository.FullName; name != "" {
				seen[name] = struct{}{}
			}
		}
		next = link
	}
	return sortedKeys(seen), nil
}

func (a *Adapter) ownedRepos(ctx context.Context, login string) ([]string, error) {
	next := a.client.endpoint("users/"+url.PathEscape(login)+"/repos", url.Values{
		"type":     {"owner"},
		"per_page": {perPage},
	})
	var out []string
	for page := 0; next != "" && page < a.client.cfg.MaxOwnedPages; page++ {
		var repos []apiRepo
		link, err := a.client.getJSON(ctx, a.token, next, &repos)
		if err != nil {
			return out, err
		}
		for _, r := range repos {
			if !r.Fork && r.FullName != "" {
				out = append(out, r.FullName)
				a.client.repoCache.Add(strings.ToLower(r.FullName), toCollection(r))
			}
		}
		next = link
	}
	return out, nil
}

// pullRequestRepos checks candidates concurrently on a bounded pool. Per-repo
// failures are skipped; only fatal errors stop the pool.
func (a *Adapter) pullRequestRepos(ctx context.Context, login string, candidates []string) ([]string, error) {
	var (
		mu  sync.Mutex
		out []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.client.cfg.PRWorkers)
	for _, repo := range candidates {
		g.Go(func() error {
			ok, err := a.openedPullRequest(gctx, repo, login)
			if err != nil {
				if crawler.IsFatal(err) {
					return err
				}
				a.client.logger.Debug("pull request check failed",
					zap.String("key", login), zap.String("repo", repo), zap.Error(err))
				return nil
			}
			if ok {
				mu.Lock()
				out = append(out, repo)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pull request check: %w", err)
	}
	return out, nil
}

func (a *Adapter) openedPullRequest(ctx context.Context, repo, login string) (bool, error) {
	next := a.client.endpoint("repos/"+repo+"/pulls", url.Values{
		"state":    {"all"},
		"per_page": {perPage},
	})
	for page := 0; next != "" && page < a.client.cfg.MaxPRPages; page++ {
		var pulls []apiPull
		link, err := a.client.getJSON(ctx, a.token, next, &pulls)
		if err != nil {
			return false, err
		}
		for _, pr := range pulls {
			if pr.User != nil && strings.EqualFold(pr.User.Login, login) {
				return true, nil
			}
		}
		next = link
	}
	return false, nil
}

// GetCollection fetches repository metadata.
func (a *Adapter) GetCollection(ctx context.Context, ref crawler.CollectionRef) (crawler.Collection, error) {
	if col, ok := a.client.cachedRepo(ref.Key); ok {
		return col, nil
	}
	var repo apiRepo
	if _, err := a.client.getJSON(ctx, a.token, a.client.endpoint("repos/"+ref.Key, nil), &repo); err != nil {
		return crawler.Collection{}, err
	}
	if repo.FullName == "" {
		return crawler.Collection{}, fmt.Errorf("repository %q: %w", ref.Key, crawler.ErrNotFound)
	}
	col := toCollection(repo)
	a.client.repoCache.Add(strings.ToLower(ref.Key), col)
	return col, nil
}

// ListMembers lists a repository's contributors, enriched with their profile.
// A failed profile lookup keeps the contributor with what the listing reported.
func (a *Adapter) ListMembers(ctx context.Context, ref crawler.CollectionRef) ([]crawler.Member, error) {
	next := a.client.endpoint("repos/"+ref.Key+"/contributors", url.Values{"per_page": {perPage}})
	var contributors []apiContributor
	for page := 0; next != "" && page < a.client.cfg.MaxContributorPages; page++ {
		var batch []apiContributor
		link, err := a.client.getJSON(ctx, a.token, next, &batch)
		if err != nil {
			if page == 0 || crawler.IsFatal(err) {
				return nil, err
			}
			a.client.logger.Warn("contributor listing truncated",
				zap.String("key", ref.Key), zap.Int("page", page), zap.Error(err))
			break
		}
		contributors = append(contributors, batch...)
		next = link
	}

	members := make([]crawler.Member, 0, len(contributors))
	for _, c := range contributors {
		if c.Login == "" || strings.EqualFold(c.Type, "Anonymous") {
			continue
		}
		ind := crawler.Individual{
			Platform:       crawler.PlatformGitHub,
			Key:            c.Login,
			ProfilePicture: crawler.StrPtr(c.AvatarURL),
		}
		if u, err := a.user(ctx, c.Login); err == nil {
			ind = toIndividual(u)
		} else if crawler.IsFatal(err) {
			return nil, err
		} else {
			a.client.logger.Debug("contributor profile unavailable",
				zap.String("key", c.Login), zap.String("step", "user_detail"), zap.Error(err))
		}
		if ind.Email == nil && a.client.cfg.EmailFromCommits {
			if email, err := a.commitEmail(ctx, ref.Key, c.Login); err == nil {
				ind.Email = email
			} else if crawler.IsFatal(err) {
				return nil, err
			}
		}
		weight := c.Contributions
		members = append(members, crawler.Member{
			Individual: ind,
			Membership: crawler.MembershipAttrs{Weight: &weight},
		})
	}
	return members, nil
}

// commitEmail reads the author email of login's latest commit in repo.
func (a *Adapter) commitEmail(ctx context.Context, repo, login string) (*string, error) {
	var commits []apiCommit
	endpoint := a.client.endpoint("repos/"+repo+"/commits", url.Values{
		"author":   {login},
		"per_page": {"1"},
	})
	if _, err := a.client.getJSON(ctx, a.token, endpoint, &commits); err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	return publicEmail(commits[0].Commit.Author.Email), nil
}

// ResolveIndividualByEmail maps an email to a login: profile email search
// first, then commit authorship.
func (a *Adapter) ResolveIndividualByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: %q is not an email address", crawler.ErrUnresolvedEmail, email)
	}
	if login, ok := a.client.cachedEmail(email); ok {
		return login, nil
	}

	var users apiUserSearch
	endpoint := a.client.endpoint("search/users", url.Values{"q": {email + " in:email"}})
	if _, err := a.client.getJSON(ctx, a.token, endpoint, &users); err != nil {
		if crawler.IsFatal(err) {
			return "", fmt.Errorf("user search: %w", err)
		}
		// GitHub answers 422 for queries it cannot parse; any other failure
		// still leaves commit authorship to try.
		if !isStatus(err, http.StatusUnprocessableEntity) {
			a.client.logger.Debug("user search failed, trying commit authorship",
				zap.String("key", email), zap.String("step", "user_search"), zap.Error(err))
		}
	}
	if len(users.Items) > 0 && users.Items[0].Login != "" {
		a.client.emailCache.Add(strings.ToLower(email), users.Items[0].Login)
		return users.Items[0].Login, nil
	}

	var commits apiCommitSearch
	endpoint = a.client.endpoint("search/commits", url.Values{
		"q":        {"author-email:" + email},
		"sort":     {"author-date"},
		"per_page": {"1"},
	})
	if _, err := a.client.getJSON(ctx, a.token, endpoint, &commits); err != nil {
		return "", fmt.Errorf("commit search: %w", err)
	}
	if len(commits.Items) > 0 && commits.Items[0].Author != nil && commits.Items[0].Author.Login != "" {
		login := commits.Items[0].Author.Login
		a.client.emailCache.Add(strings.ToLower(email), login)
		return login, nil
	}
	return "", fmt.Errorf("%w: %s", crawler.ErrUnresolvedEmail, email)
}

func (a *Adapter) user(ctx context.Context, login string) (apiUser, error) {
	if u, ok := a.client.cachedUser(login); ok {
		return u, nil
	}
	var u apiUser
	if _, err := a.client.getJSON(ctx, a.token, a.client.endpoint("users/"+url.PathEscape(login), nil), &u); err != nil {
		return apiUser{}, err
	}
	if u.Login == "" {
		return apiUser{}, fmt.Errorf("user %q: %w", login, crawler.ErrNotFound)
	}
	a.client.userCache.Add(strings.ToLower(login), u)
	return u, nil
}

func toIndividual(u apiUser) crawler.Individual {
	ind := crawler.Individual{
		Platform:       crawler.PlatformGitHub,
		Key:            u.Login,
		ProfilePicture: crawler.StrPtr(u.AvatarURL),
	}
	if u.Name != nil {
		ind.Name = crawler.StrPtr(*u.Name)
	}
	if u.Bio != nil {
		ind.Header = crawler.StrPtr(*u.Bio)
	}
	if u.Email != nil {
		ind.Email = publicEmail(*u.Email)
	}
	if u.Blog != nil && strings.TrimSpace(*u.Blog) != "" {
		ind.Websites = []string{strings.TrimSpace(*u.Blog)}
	}
	return ind
}

func toCollection(r apiRepo) crawler.Collection {
	stars := r.Stars
	col := crawler.Collection{
		Platform: crawler.PlatformGitHub,
		Key:      r.FullName,
		URL:      crawler.StrPtr(r.HTMLURL),
		Name:     crawler.StrPtr(r.Name),
		Stars:    &stars,
	}
	if r.Description != nil {
		col.Description = crawler.StrPtr(*r.Description)
	}
	return col
}

// publicEmail drops GitHub's noreply relay addresses.
func publicEmail(email string) *string {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") || strings.HasSuffix(strings.ToLower(email), noreplySuffix) {
		return nil
	}
	return &email
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
