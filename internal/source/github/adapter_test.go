package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

func newTestAdapter(t *testing.T, handler http.Handler, cfg Config) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	client := NewClient(cfg, zap.NewNop(),
		WithRetryPolicy(crawler.NewExponentialRetryPolicy(crawler.WithMaxAttempts(3), crawler.WithDelays(0, 0))),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return client.ForToken("test-token")
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func nextPage(r *http.Request, page int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf(`<http://%s%s?%s>; rel="next"`, r.Host, r.URL.Path, q.Encode())
}

func TestResolveSeedSendsHeadersAndMapsProfile(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.Equal(t, apiVersion, r.Header.Get("X-GitHub-Api-Version"))
		require.Equal(t, "/users/alice", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"login":      "Alice",
			"name":       "Alice A.",
			"avatar_url": "https://avatars.example/alice",
			"bio":        "  builds things ",
			"email":      "123+alice@users.noreply.github.com",
			"blog":       "https://alice.dev",
		})
	}), Config{})

	ind, err := adapter.ResolveSeed(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, crawler.PlatformGitHub, ind.Platform)
	require.Equal(t, "Alice", ind.Key)
	require.Equal(t, "Alice A.", *ind.Name)
	require.Equal(t, "builds things", *ind.Header)
	require.Nil(t, ind.Email, "noreply addresses are not contact emails")
	require.Equal(t, []string{"https://alice.dev"}, ind.Websites)
}

func TestResolveSeedNotFound(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}), Config{})

	_, err := adapter.ResolveSeed(context.Background(), "ghost")
	require.ErrorIs(t, err, crawler.ErrSeedNotFound)
	require.False(t, crawler.IsFatal(err))
}

func TestListContributionsUnionsCommitAndPullSignals(t *testing.T) {
	t.Parallel()

	var flakyCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "author:alice", r.URL.Query().Get("q"))
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", nextPage(r, 2))
			writeJSON(t, w, http.StatusOK, map[string]any{
				"total_count": 2,
				"items": []map[string]any{
					{"repository": map[string]string{"full_name": "org/one"}},
					{"repository": map[string]string{"full_name": "org/one"}},
				},
			})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"repository": map[string]string{"full_name": "org/flaky"}}},
		})
	})
	mux.HandleFunc("/users/alice/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "owner", r.URL.Query().Get("type"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"full_name": "alice/own", "name": "own", "stargazers_count": 1},
			{"full_name": "alice/fork", "name": "fork", "fork": true},
		})
	})
	mux.HandleFunc("/repos/org/one/pulls", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"user": map[string]string{"login": "bob"}}})
	})
	mux.HandleFunc("/repos/org/flaky/pulls", func(w http.ResponseWriter, _ *http.Request) {
		flakyCalls.Add(1)
		writeJSON(t, w, http.StatusBadGateway, map[string]string{"message": "bad gateway"})
	})
	mux.HandleFunc("/repos/alice/own/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", nextPage(r, 2))
			writeJSON(t, w, http.StatusOK, []map[string]any{{"user": nil}})
			return
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{{"user": map[string]string{"login": "ALICE"}}})
	})
	mux.HandleFunc("/repos/alice/fork/pulls", func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("forks are not pull request candidates")
	})

	adapter := newTestAdapter(t, mux, Config{IncludeOwnedRepos: true, PRWorkers: 2})

	repos, err := adapter.ListContributions(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"alice/own", "org/flaky", "org/one"}, repos)
	require.Equal(t, int32(3), flakyCalls.Load(), "5xx answers are retried up to the attempt cap")

	refs, err := adapter.ListCollections(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	require.Equal(t, "https://github.com/alice/own", refs[0].URL)
}

func TestListContributionsSurvivesCommitSearchFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
	})
	mux.HandleFunc("/users/alice/repos", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"full_name": "alice/own", "name": "own"}})
	})
	mux.HandleFunc("/repos/alice/own/pulls", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"user": map[string]string{"login": "alice"}}})
	})

	adapter := newTestAdapter(t, mux, Config{IncludeOwnedRepos: true, PRWorkers: 1})

	repos, err := adapter.ListContributions(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"alice/own"}, repos)
}

func TestListContributionsFailsWhenBothSignalsFail(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]string{"message": "Validation Failed"})
	})
	mux.HandleFunc("/users/alice/repos", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})

	withOwned := newTestAdapter(t, mux, Config{IncludeOwnedRepos: true, PRWorkers: 1})
	_, err := withOwned.ListContributions(context.Background(), "alice")
	require.ErrorContains(t, err, "commit search")
	require.False(t, crawler.IsFatal(err))

	commitsOnly := newTestAdapter(t, mux, Config{PRWorkers: 1})
	_, err = commitsOnly.ListContributions(context.Background(), "alice")
	require.ErrorContains(t, err, "commit search")
}

func TestUnauthorizedIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	}), Config{})

	_, err := adapter.ListCollections(context.Background(), "alice")
	require.ErrorIs(t, err, crawler.ErrNotAuthenticated)
	require.True(t, crawler.IsFatal(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestGetCollectionRetriesAndCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/org/repo", r.URL.Path)
		if calls.Add(1) == 1 {
			writeJSON(t, w, http.StatusBadGateway, map[string]string{"message": "try again"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"full_name":        "org/repo",
			"name":             "repo",
			"description":      "a repository",
			"stargazers_count": 10,
			"html_url":         "https://github.com/org/repo",
		})
	}), Config{})

	ref := crawler.CollectionRef{Key: "org/repo"}
	col, err := adapter.GetCollection(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, "org/repo", col.Key)
	require.Equal(t, 10, *col.Stars)
	require.Equal(t, "a repository", *col.Description)

	_, err = adapter.GetCollection(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load(), "second lookup is served from cache")
}

func TestGetCollectionNotFound(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}), Config{})

	_, err := adapter.GetCollection(context.Background(), crawler.CollectionRef{Key: "org/missing"})
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.False(t, crawler.IsFatal(err))
}

func TestRateLimitedForbiddenIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(-time.Second).Unix(), 10))
			writeJSON(t, w, http.StatusForbidden, map[string]string{"message": "API rate limit exceeded"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"login": "alice"})
	}), Config{})

	ind, err := adapter.ResolveSeed(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", ind.Key)
	require.Equal(t, int32(2), calls.Load())
}

func TestListMembersEnrichesContributors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/repo/contributors", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", nextPage(r, 2))
			writeJSON(t, w, http.StatusOK, []map[string]any{
				{"login": "alice", "avatar_url": "https://avatars.example/alice", "contributions": 5, "type": "User"},
				{"login": "", "contributions": 2, "type": "Anonymous"},
			})
			return
		}
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"login": "bob", "avatar_url": "https://avatars.example/bob", "contributions": 3, "type": "User"},
		})
	})
	mux.HandleFunc("/users/alice", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"login": "alice", "name": "Alice", "email": "alice@example.com"})
	})
	mux.HandleFunc("/users/bob", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("/repos/org/repo/commits", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bob", r.URL.Query().Get("author"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"commit": map[string]any{"author": map[string]string{"email": "bob@example.com"}}},
		})
	})

	adapter := newTestAdapter(t, mux, Config{EmailFromCommits: true})

	members, err := adapter.ListMembers(context.Background(), crawler.CollectionRef{Key: "org/repo"})
	require.NoError(t, err)
	require.Len(t, members, 2)

	alice := members[0]
	require.Equal(t, "alice", alice.Individual.Key)
	require.Equal(t, "Alice", *alice.Individual.Name)
	require.Equal(t, "alice@example.com", *alice.Individual.Email)
	require.Equal(t, 5, *alice.Membership.Weight)

	bob := members[1]
	require.Equal(t, "bob", bob.Individual.Key)
	require.Nil(t, bob.Individual.Name)
	require.Equal(t, "https://avatars.example/bob", *bob.Individual.ProfilePicture)
	require.Equal(t, "bob@example.com", *bob.Individual.Email)
	require.Equal(t, 3, *bob.Membership.Weight)
}

func TestResolveIndividualByEmail(t *testing.T) {
	t.Parallel()

	var userSearches, commitSearches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/users", func(w http.ResponseWriter, r *http.Request) {
		userSearches.Add(1)
		q := r.URL.Query().Get("q")
		if q == "dan@example.com in:email" {
			writeJSON(t, w, http.StatusOK, map[string]any{"total_count": 1, "items": []map[string]string{{"login": "dan"}}})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"total_count": 0, "items": []any{}})
	})
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, r *http.Request) {
		commitSearches.Add(1)
		require.Equal(t, "author-date", r.URL.Query().Get("sort"))
		switch r.URL.Query().Get("q") {
		case "author-email:carol@example.com":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"total_count": 1,
				"items":       []map[string]any{{"author": map[string]string{"login": "carol"}}},
			})
		case "author-email:unlinked@example.com":
			writeJSON(t, w, http.StatusOK, map[string]any{"total_count": 1, "items": []map[string]any{{"author": nil}}})
		default:
			writeJSON(t, w, http.StatusOK, map[string]any{"total_count": 0, "items": []any{}})
		}
	})

	adapter := newTestAdapter(t, mux, Config{})
	ctx := context.Background()

	login, err := adapter.ResolveIndividualByEmail(ctx, "dan@example.com")
	require.NoError(t, err)
	require.Equal(t, "dan", login)
	require.Equal(t, int32(0), commitSearches.Load())

	login, err = adapter.ResolveIndividualByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, "carol", login)

	login, err = adapter.ResolveIndividualByEmail(ctx, "Carol@Example.com")
	require.NoError(t, err)
	require.Equal(t, "carol", login)
	require.Equal(t, int32(2), userSearches.Load(), "resolved emails are cached")

	_, err = adapter.ResolveIndividualByEmail(ctx, "unlinked@example.com")
	require.ErrorIs(t, err, crawler.ErrUnresolvedEmail)

	_, err = adapter.ResolveIndividualByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, crawler.ErrUnresolvedEmail)

	_, err = adapter.ResolveIndividualByEmail(ctx, "not-an-email")
	require.ErrorIs(t, err, crawler.ErrUnresolvedEmail)
}

func TestResolveIndividualByEmailFallsBackAfterUserSearchFailure(t *testing.T) {
	t.Parallel()

	var userSearches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/users", func(w http.ResponseWriter, _ *http.Request) {
		userSearches.Add(1)
		writeJSON(t, w, http.StatusServiceUnavailable, map[string]string{"message": "unavailable"})
	})
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "author-email:erin@example.com", r.URL.Query().Get("q"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"total_count": 1,
			"items":       []map[string]any{{"author": map[string]string{"login": "erin"}}},
		})
	})

	adapter := newTestAdapter(t, mux, Config{})

	login, err := adapter.ResolveIndividualByEmail(context.Background(), "erin@example.com")
	require.NoError(t, err)
	require.Equal(t, "erin", login)
	require.Equal(t, int32(3), userSearches.Load(), "5xx answers are retried before falling back")
}

func TestNextLink(t *testing.T) {
	t.Parallel()

	header := `<https://api.github.com/x?page=3>; rel="last", <https://api.github.com/x?page=2>; rel="next"`
	require.Equal(t, "https://api.github.com/x?page=2", nextLink(header))
	require.Empty(t, nextLink(`<https://api.github.com/x?page=1>; rel="prev"`))
	require.Empty(t, nextLink(""))
}

func TestStatusErrorClassification(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, &StatusError{Code: http.StatusNotFound}, crawler.ErrNotFound)
	require.ErrorIs(t, &StatusError{Code: http.StatusUnauthorized}, crawler.ErrNotAuthenticated)
	require.True(t, (&StatusError{Code: http.StatusServiceUnavailable}).Retryable())
	require.True(t, (&StatusError{Code: http.StatusForbidden, RateLimited: true}).Retryable())
	require.False(t, (&StatusError{Code: http.StatusForbidden}).Retryable())
}
