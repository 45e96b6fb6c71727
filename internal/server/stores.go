package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/netgraph-crawler/internal/config"
	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
	"github.com/JakeFAU/netgraph-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/netgraph-crawler/internal/storage/postgres"
	"github.com/JakeFAU/netgraph-crawler/internal/storage/sqlite"
)

// GraphStore is everything the crawler needs from the entity store.
type GraphStore interface {
	crawler.Store
	crawler.GraphReader
	crawler.SeedRegistry
}

// Pinger checks that a store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles the graph and run stores of the selected driver.
type Stores struct {
	Graph GraphStore
	Runs  crawler.RunStore
	// Ready is nil for the in-memory driver.
	Ready   Pinger
	migrate func(context.Context) error
	close   func()
}

// OpenStores connects the store selected by cfg.Driver.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "postgres":
		s, err := pgstore.NewStore(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		logger.Info("using postgres entity store", zap.Int32("max_conns", cfg.MaxConns))
		return &Stores{Graph: s, Runs: s, Ready: s, migrate: s.Migrate, close: s.Close}, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:        cfg.Path,
			BusyTimeout: time.Duration(cfg.BusyTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		logger.Info("using sqlite entity store", zap.String("path", cfg.Path))
		return &Stores{
			Graph:   s,
			Runs:    s,
			Ready:   s,
			migrate: s.Migrate,
			close: func() {
				if err := s.Close(); err != nil {
					logger.Warn("sqlite close failed", zap.Error(err))
				}
			},
		}, nil
	default:
		logger.Warn("using in-memory entity store; the graph is lost on exit")
		return &Stores{Graph: memory.NewGraphStore(), Runs: memory.NewRunStore()}, nil
	}
}

// Migrate creates the schema. It is a no-op for the in-memory driver.
func (s *Stores) Migrate(ctx context.Context) error {
	if s == nil || s.migrate == nil {
		return nil
	}
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the store's connections.
func (s *Stores) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
}
