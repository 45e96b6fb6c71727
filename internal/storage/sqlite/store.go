// Package sqlite provides an embedded, file-backed entity store built on the
// pure-Go modernc.org/sqlite driver. It shares the merge semantics of the
// Postgres store: a NULL incoming column never overwrites a stored value.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// Config controls where the database lives.
type Config struct {
	Path string
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// Store persists the crawled graph, the seed registry and run metadata in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ crawler.Store        = (*Store)(nil)
	_ crawler.GraphReader  = (*Store)(nil)
	_ crawler.SeedRegistry = (*Store)(nil)
	_ crawler.RunStore     = (*Store)(nil)
)

// Open opens (or creates) the database file and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database.sqlite_path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: utcNow}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func sqliteCode(err error) int {
	var sErr *sqlite.Error
	if errors.As(err, &sErr) {
		return sErr.Code()
	}
	return 0
}

func isForeignKeyViolation(err error) bool {
	code := sqliteCode(err)
	if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "FOREIGN KEY")
}

func isUniqueViolation(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// encodeList stores a string list as JSON; nil stays NULL so the merge keeps the stored list.
func encodeList(list []string) (*string, error) {
	if list == nil {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	out := string(data)
	return &out, nil
}

func decodeList(raw sql.NullString) ([]string, error) {
	if !raw.Valid {
		return nil, nil
	}
	out := make([]string, 0)
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}
