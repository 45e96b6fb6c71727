package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// Snapshotter writes a seed's network view to blob storage.
type Snapshotter struct {
	builder *Builder
	blobs   crawler.BlobStore
	hasher  crawler.Hasher
	prefix  string
}

// NewSnapshotter wires a Snapshotter. prefix defaults to "snapshots".
func NewSnapshotter(builder *Builder, blobs crawler.BlobStore, hasher crawler.Hasher, prefix string) *Snapshotter {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Snapshotter{builder: builder, blobs: blobs, hasher: hasher, prefix: prefix}
}

// Snapshot renders the view rooted at (platform, key) and stores it under
// {prefix}/{platform}/{key}/{sha256}.json, returning the blob URI.
func (s *Snapshotter) Snapshot(ctx context.Context, platform crawler.Platform, key string) (string, error) {
	roots := Roots{}
	switch platform {
	case crawler.PlatformGitHub:
		roots.GitHub = key
	case crawler.PlatformLinkedIn:
		roots.LinkedIn = key
	default:
		return "", fmt.Errorf("unknown platform %q", platform)
	}
	view, err := s.builder.Build(ctx, roots)
	if err != nil {
		return "", fmt.Errorf("build network: %w", err)
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("marshal network: %w", err)
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash network: %w", err)
	}
	p := path.Join(s.prefix, string(platform), key, digest+".json")
	uri, err := s.blobs.PutObject(ctx, p, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	return uri, nil
}
