package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

type entityKey struct {
	platform crawler.Platform
	key      string
}

type edgeKey struct {
	platform   crawler.Platform
	individual string
	collection string
}

type seedKey struct {
	platform crawler.Platform
	key      string
}

// GraphStore keeps individuals, collections, memberships and seeds in maps and
// applies the same merge rule as the SQL stores.
type GraphStore struct {
	mu          sync.RWMutex
	individuals map[entityKey]crawler.Individual
	collections map[entityKey]crawler.Collection
	memberships map[edgeKey]crawler.Membership
	seeds       map[seedKey]crawler.Seed
	changes     int
}

var (
	_ crawler.Store        = (*GraphStore)(nil)
	_ crawler.GraphReader  = (*GraphStore)(nil)
	_ crawler.SeedRegistry = (*GraphStore)(nil)
)

// NewGraphStore constructs an empty GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		individuals: make(map[entityKey]crawler.Individual),
		collections: make(map[entityKey]crawler.Collection),
		memberships: make(map[edgeKey]crawler.Membership),
		seeds:       make(map[seedKey]crawler.Seed),
	}
}

// GetIndividual returns the stored individual.
func (s *GraphStore) GetIndividual(_ context.Context, platform crawler.Platform, key string) (crawler.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.individuals[entityKey{platform, key}]
	if !ok {
		return crawler.Individual{}, fmt.Errorf("individual %s/%s: %w", platform, key, crawler.ErrNotFound)
	}
	return ind, nil
}

// UpsertIndividual inserts or merges an individual.
func (s *GraphStore) UpsertIndividual(_ context.Context, ind crawler.Individual) error {
	if ind.Key == "" {
		return fmt.Errorf("individual key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entityKey{ind.Platform, ind.Key}
	stored, ok := s.individuals[k]
	if !ok {
		s.individuals[k] = ind
		s.changes++
		return nil
	}
	if merged, changed := crawler.MergeIndividual(stored, ind); changed {
		s.individuals[k] = merged
		s.changes++
	}
	return nil
}

// GetCollection returns the stored collection.
func (s *GraphStore) GetCollection(_ context.Context, platform crawler.Platform, key string) (crawler.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[entityKey{platform, key}]
	if !ok {
		return crawler.Collection{}, fmt.Errorf("collection %s/%s: %w", platform, key, crawler.ErrNotFound)
	}
	return col, nil
}

// UpsertCollection inserts or merges a collection.
func (s *GraphStore) UpsertCollection(_ context.Context, col crawler.Collection) error {
	if col.Key == "" {
		return fmt.Errorf("collection key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entityKey{col.Platform, col.Key}
	stored, ok := s.collections[k]
	if !ok {
		s.collections[k] = col
		s.changes++
		return nil
	}
	if merged, changed := crawler.MergeCollection(stored, col); changed {
		s.collections[k] = merged
		s.changes++
	}
	return nil
}

// UpsertMembership inserts or merges an edge. Both endpoints must already exist.
func (s *GraphStore) UpsertMembership(_ context.Context, m crawler.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[entityKey{m.Platform, m.IndividualKey}]; !ok {
		return fmt.Errorf("membership individual %s/%s: %w", m.Platform, m.IndividualKey, crawler.ErrNotFound)
	}
	if _, ok := s.collections[entityKey{m.Platform, m.CollectionKey}]; !ok {
		return fmt.Errorf("membership collection %s/%s: %w", m.Platform, m.CollectionKey, crawler.ErrNotFound)
	}
	k := edgeKey{m.Platform, m.IndividualKey, m.CollectionKey}
	stored, ok := s.memberships[k]
	if !ok {
		s.memberships[k] = m
		s.changes++
		return nil
	}
	if merged, changed := crawler.MergeMembership(stored, m); changed {
		s.memberships[k] = merged
		s.changes++
	}
	return nil
}

// ListIndividuals returns every individual on a platform ordered by key.
func (s *GraphStore) ListIndividuals(_ context.Context, platform crawler.Platform) ([]crawler.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Individual, 0)
	for k, ind := range s.individuals {
		if k.platform == platform {
			out = append(out, ind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ListCollections returns every collection on a platform ordered by key.
func (s *GraphStore) ListCollections(_ context.Context, platform crawler.Platform) ([]crawler.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Collection, 0)
	for k, col := range s.collections {
		if k.platform == platform {
			out = append(out, col)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// MembershipsOf returns the edges of one individual.
func (s *GraphStore) MembershipsOf(_ context.Context, platform crawler.Platform, individualKey string) ([]crawler.Membership, error) {
	return s.edges(func(k edgeKey) bool { return k.platform == platform && k.individual == individualKey }), nil
}

// MembersOf returns the edges of one collection.
func (s *GraphStore) MembersOf(_ context.Context, platform crawler.Platform, collectionKey string) ([]crawler.Membership, error) {
	return s.edges(func(k edgeKey) bool { return k.platform == platform && k.collection == collectionKey }), nil
}

// FindIndividualByEmail looks up an individual by email, case-insensitively.
func (s *GraphStore) FindIndividualByEmail(_ context.Context, platform crawler.Platform, email string) (crawler.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, ind := range s.individuals {
		if k.platform == platform && ind.Email != nil && strings.EqualFold(*ind.Email, email) {
			return ind, nil
		}
	}
	return crawler.Individual{}, fmt.Errorf("individual with email %q: %w", email, crawler.ErrNotFound)
}

func (s *GraphStore) edges(match func(edgeKey) bool) []crawler.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Membership, 0)
	for k, m := range s.memberships {
		if match(k) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectionKey != out[j].CollectionKey {
			return out[i].CollectionKey < out[j].CollectionKey
		}
		return out[i].IndividualKey < out[j].IndividualKey
	})
	return out
}

// RegisterSeed records a seed; re-registering keeps the original timestamp and updates the account.
func (s *GraphStore) RegisterSeed(_ context.Context, seed crawler.Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seedKey{seed.Platform, seed.Key}
	if stored, ok := s.seeds[k]; ok {
		if seed.Account != "" {
			stored.Account = seed.Account
		}
		s.seeds[k] = stored
		return nil
	}
	if seed.RegisteredAt.IsZero() {
		seed.RegisteredAt = time.Now().UTC()
	}
	s.seeds[k] = seed
	return nil
}

// ListSeeds returns all registered seeds.
func (s *GraphStore) ListSeeds(_ context.Context) ([]crawler.Seed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Seed, 0, len(s.seeds))
	for _, seed := range s.seeds {
		out = append(out, seed)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// TouchSeed records the last time a seed was crawled.
func (s *GraphStore) TouchSeed(_ context.Context, platform crawler.Platform, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seedKey{platform, key}
	seed, ok := s.seeds[k]
	if !ok {
		return fmt.Errorf("seed %s/%s: %w", platform, key, crawler.ErrNotFound)
	}
	seed.LastRunAt = pointerTime(at)
	s.seeds[k] = seed
	return nil
}

// Changes reports how many writes actually modified state.
func (s *GraphStore) Changes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes
}

// Counts returns the number of individuals, collections and memberships stored.
func (s *GraphStore) Counts() (individuals, collections, memberships int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.individuals), len(s.collections), len(s.memberships)
}
