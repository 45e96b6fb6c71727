package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "graph.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func totalChanges(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRowContext(context.Background(), `SELECT total_changes()`).Scan(&n))
	return n
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	t.Parallel()
	store := openStore(t)

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestUpsertIndividualMergeRule(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIndividual(ctx, crawler.Individual{
		Platform: crawler.PlatformGitHub,
		Key:      "alice",
		Name:     crawler.StrPtr("Old"),
		Email:    crawler.StrPtr("a@b.com"),
		Websites: []string{"https://alice.dev"},
	}))
	require.NoError(t, store.UpsertIndividual(ctx, crawler.Individual{
		Platform: crawler.PlatformGitHub,
		Key:      "alice",
		Name:     crawler.StrPtr("X"),
	}))

	ind, err := store.GetIndividual(ctx, crawler.PlatformGitHub, "alice")
	require.NoError(t, err)
	require.Equal(t, "X", *ind.Name)
	require.Equal(t, "a@b.com", *ind.Email)
	require.Equal(t, []string{"https://alice.dev"}, ind.Websites)
	require.Nil(t, ind.Header)
}

func TestUpsertUnchangedRowIsNotRewritten(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	stars := 10
	col := crawler.Collection{Platform: crawler.PlatformGitHub, Key: "org/repo", Stars: &stars}
	require.NoError(t, store.UpsertCollection(ctx, col))
	before := totalChanges(t, store)

	require.NoError(t, store.UpsertCollection(ctx, col))
	require.NoError(t, store.UpsertCollection(ctx, crawler.Collection{Platform: crawler.PlatformGitHub, Key: "org/repo"}))
	require.Equal(t, before, totalChanges(t, store))

	more := 11
	require.NoError(t, store.UpsertCollection(ctx, crawler.Collection{Platform: crawler.PlatformGitHub, Key: "org/repo", Stars: &more}))
	require.Equal(t, before+1, totalChanges(t, store))
}

func TestPlatformsAreIndependent(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIndividual(ctx, crawler.Individual{Platform: crawler.PlatformGitHub, Key: "alice"}))
	_, err := store.GetIndividual(ctx, crawler.PlatformLinkedIn, "alice")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestMembershipRequiresEndpoints(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	err := store.UpsertMembership(ctx, crawler.Membership{
		Platform:      crawler.PlatformLinkedIn,
		IndividualKey: "ghost",
		CollectionKey: "acme",
	})
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestMembershipDatesRoundTrip(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIndividual(ctx, crawler.Individual{Platform: crawler.PlatformLinkedIn, Key: "alice"}))
	require.NoError(t, store.UpsertCollection(ctx, crawler.Collection{Platform: crawler.PlatformLinkedIn, Key: "acme"}))

	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertMembership(ctx, crawler.Membership{
		Platform:        crawler.PlatformLinkedIn,
		IndividualKey:   "alice",
		CollectionKey:   "acme",
		MembershipAttrs: crawler.MembershipAttrs{Role: crawler.StrPtr("Engineer"), StartDate: &start},
	}))
	// A later sighting without a role keeps the stored one.
	require.NoError(t, store.UpsertMembership(ctx, crawler.Membership{
		Platform:      crawler.PlatformLinkedIn,
		IndividualKey: "alice",
		CollectionKey: "acme",
	}))

	edges, err := store.MembershipsOf(ctx, crawler.PlatformLinkedIn, "alice")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "Engineer", *edges[0].Role)
	require.NotNil(t, edges[0].StartDate)
	require.True(t, start.Equal(*edges[0].StartDate))
	require.Nil(t, edges[0].EndDate)
}

func TestFindIndividualByEmailIgnoresCase(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertIndividual(ctx, crawler.Individual{
		Platform: crawler.PlatformGitHub,
		Key:      "bob",
		Email:    crawler.StrPtr("Bob@Example.com"),
	}))
	ind, err := store.FindIndividualByEmail(ctx, crawler.PlatformGitHub, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, "bob", ind.Key)

	_, err = store.FindIndividualByEmail(ctx, crawler.PlatformGitHub, "nobody@example.com")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestSeedsAndRuns(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.RegisterSeed(ctx, crawler.Seed{Platform: crawler.PlatformLinkedIn, Key: "alice", Account: "work"}))
	require.NoError(t, store.RegisterSeed(ctx, crawler.Seed{Platform: crawler.PlatformLinkedIn, Key: "alice"}))
	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchSeed(ctx, crawler.PlatformLinkedIn, "alice", at))
	require.ErrorIs(t, store.TouchSeed(ctx, crawler.PlatformGitHub, "ghost", at), crawler.ErrNotFound)

	seeds, err := store.ListSeeds(ctx)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	require.Equal(t, "work", seeds[0].Account, "an empty account does not clear the stored one")
	require.NotNil(t, seeds[0].LastRunAt)
	require.True(t, at.Equal(*seeds[0].LastRunAt))

	run := crawler.Run{
		ID:        "run-1",
		Platform:  crawler.PlatformGitHub,
		Seed:      "alice",
		MaxDepth:  2,
		Status:    crawler.RunStatusQueued,
		Submitted: time.Now().UTC(),
	}
	require.NoError(t, store.CreateRun(ctx, run))
	require.ErrorIs(t, store.CreateRun(ctx, run), ErrRunExists)
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", crawler.RunStatusRunning, "", crawler.Outcome{}))
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", crawler.RunStatusSucceeded, "",
		crawler.Outcome{Individuals: 2, Collections: 1, Memberships: 2, MaxDepthReached: 1}))
	require.ErrorIs(t, store.UpdateRunStatus(ctx, "missing", crawler.RunStatusFailed, "x", crawler.Outcome{}), crawler.ErrNotFound)

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.Started)
	require.NotNil(t, got.Finished)
	require.Equal(t, 2, got.Outcome.Individuals)
	require.Equal(t, 1, got.Outcome.MaxDepthReached)

	_, err = store.GetRun(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

// staticAdapter serves a fixed graph for engine runs against the real store.
type staticAdapter struct {
	people  map[string]crawler.Individual
	links   map[string][]string
	repos   map[string]crawler.Collection
	members map[string][]string
}

func (a staticAdapter) Platform() crawler.Platform { return crawler.PlatformGitHub }

func (a staticAdapter) ResolveSeed(_ context.Context, key string) (crawler.Individual, error) {
	ind, ok := a.people[key]
	if !ok {
		return crawler.Individual{}, crawler.ErrSeedNotFound
	}
	return ind, nil
}

func (a staticAdapter) ListCollections(_ context.Context, key string) ([]crawler.CollectionRef, error) {
	refs := make([]crawler.CollectionRef, 0, len(a.links[key]))
	for _, repo := range a.links[key] {
		refs = append(refs, crawler.CollectionRef{Key: repo})
	}
	return refs, nil
}

func (a staticAdapter) GetCollection(_ context.Context, ref crawler.CollectionRef) (crawler.Collection, error) {
	col, ok := a.repos[ref.Key]
	if !ok {
		return crawler.Collection{}, crawler.ErrNotFound
	}
	return col, nil
}

func (a staticAdapter) ListMembers(_ context.Context, ref crawler.CollectionRef) ([]crawler.Member, error) {
	out := make([]crawler.Member, 0, len(a.members[ref.Key]))
	for _, key := range a.members[ref.Key] {
		out = append(out, crawler.Member{Individual: a.people[key]})
	}
	return out, nil
}

func aliceBobGraph() staticAdapter {
	stars, toolStars := 10, 3
	return staticAdapter{
		people: map[string]crawler.Individual{
			"alice": {Platform: crawler.PlatformGitHub, Key: "alice", Name: crawler.StrPtr("Alice")},
			"bob":   {Platform: crawler.PlatformGitHub, Key: "bob", Name: crawler.StrPtr("Bob")},
			"carol": {Platform: crawler.PlatformGitHub, Key: "carol"},
		},
		links: map[string][]string{
			"alice": {"org/repo"},
			"bob":   {"org/repo", "bob/tools"},
		},
		repos: map[string]crawler.Collection{
			"org/repo":  {Platform: crawler.PlatformGitHub, Key: "org/repo", Stars: &stars},
			"bob/tools": {Platform: crawler.PlatformGitHub, Key: "bob/tools", Stars: &toolStars},
		},
		members: map[string][]string{
			"org/repo":  {"alice", "bob"},
			"bob/tools": {"bob", "carol"},
		},
	}
}

func TestEngineEndToEndAgainstSQLite(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()
	engine := crawler.NewEngine(store, nil, zap.NewNop(), crawler.EngineConfig{MaxDepth: 2})

	_, err := engine.Crawl(ctx, "alice", aliceBobGraph())
	require.NoError(t, err)

	people, err := store.ListIndividuals(ctx, crawler.PlatformGitHub)
	require.NoError(t, err)
	keys := make([]string, 0, len(people))
	for _, p := range people {
		keys = append(keys, p.Key)
	}
	require.Equal(t, []string{"alice", "bob", "carol"}, keys)

	repo, err := store.GetCollection(ctx, crawler.PlatformGitHub, "org/repo")
	require.NoError(t, err)
	require.Equal(t, 10, *repo.Stars)

	edges, err := store.MembersOf(ctx, crawler.PlatformGitHub, "org/repo")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	require.Equal(t, "alice", edges[0].IndividualKey)
	require.Equal(t, "bob", edges[1].IndividualKey)

	_, err = store.GetCollection(ctx, crawler.PlatformGitHub, "bob/tools")
	require.NoError(t, err, "bob is within the bound so his collections are expanded")
}

func TestEngineRerunIsIdempotent(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	ctx := context.Background()
	engine := crawler.NewEngine(store, nil, zap.NewNop(), crawler.EngineConfig{MaxDepth: 2})

	_, err := engine.Crawl(ctx, "alice", aliceBobGraph())
	require.NoError(t, err)
	before := totalChanges(t, store)

	_, err = engine.Crawl(ctx, "alice", aliceBobGraph())
	require.NoError(t, err)
	require.Equal(t, before, totalChanges(t, store), "an identical second run writes nothing")
}
