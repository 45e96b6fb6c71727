package crawler

import (
	"context"
	"io"
	"time"
)

// Adapter hides one source graph behind four calls the engine needs.
type Adapter interface {
	Platform() Platform
	ResolveSeed(ctx context.Context, key string) (Individual, error)
	ListCollections(ctx context.Context, key string) ([]CollectionRef, error)
	GetCollection(ctx context.Context, ref CollectionRef) (Collection, error)
	ListMembers(ctx context.Context, ref CollectionRef) ([]Member, error)
}

// Sessioner is implemented by adapters that hold a stateful login session.
type Sessioner interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// AdapterFactory builds an adapter for one run, resolving credentials just in time.
type AdapterFactory interface {
	NewAdapter(ctx context.Context, req CrawlRequest) (Adapter, error)
}

// EmailResolver maps an email address to a platform handle.
type EmailResolver interface {
	ResolveIndividualByEmail(ctx context.Context, email string) (string, error)
}

// Store persists graph entities with merge-on-write semantics.
type Store interface {
	GetIndividual(ctx context.Context, platform Platform, key string) (Individual, error)
	UpsertIndividual(ctx context.Context, ind Individual) error
	GetCollection(ctx context.Context, platform Platform, key string) (Collection, error)
	UpsertCollection(ctx context.Context, col Collection) error
	UpsertMembership(ctx context.Context, m Membership) error
}

// GraphReader reads back the persisted graph.
type GraphReader interface {
	GetIndividual(ctx context.Context, platform Platform, key string) (Individual, error)
	GetCollection(ctx context.Context, platform Platform, key string) (Collection, error)
	ListIndividuals(ctx context.Context, platform Platform) ([]Individual, error)
	ListCollections(ctx context.Context, platform Platform) ([]Collection, error)
	MembershipsOf(ctx context.Context, platform Platform, individualKey string) ([]Membership, error)
	MembersOf(ctx context.Context, platform Platform, collectionKey string) ([]Membership, error)
	FindIndividualByEmail(ctx context.Context, platform Platform, email string) (Individual, error)
}

// SeedRegistry records identities that are re-crawled on a schedule.
type SeedRegistry interface {
	RegisterSeed(ctx context.Context, seed Seed) error
	ListSeeds(ctx context.Context) ([]Seed, error)
	TouchSeed(ctx context.Context, platform Platform, key string, at time.Time) error
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, outcome Outcome) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl requests.
type Queue interface {
	Enqueue(ctx context.Context, req CrawlRequest) error
	Dequeue(ctx context.Context) (CrawlRequest, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// RetryPolicy decides whether and when to retry a failed call.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
