package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

const (
	upsertIndividualSQL = `
INSERT INTO individuals AS t (platform, natural_key, name, profile_picture, header, email, websites)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (platform, natural_key) DO UPDATE SET
	name            = COALESCE(excluded.name, t.name),
	profile_picture = COALESCE(excluded.profile_picture, t.profile_picture),
	header          = COALESCE(excluded.header, t.header),
	email           = COALESCE(excluded.email, t.email),
	websites        = COALESCE(excluded.websites, t.websites),
	updated_at      = CURRENT_TIMESTAMP
WHERE (t.name, t.profile_picture, t.header, t.email, t.websites) IS NOT (
	COALESCE(excluded.name, t.name),
	COALESCE(excluded.profile_picture, t.profile_picture),
	COALESCE(excluded.header, t.header),
	COALESCE(excluded.email, t.email),
	COALESCE(excluded.websites, t.websites)
)`

	upsertCollectionSQL = `
INSERT INTO collections AS t (
	platform, natural_key, url, name, description, stars, industry,
	company_size, headquarters, specialties, website, logo
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (platform, natural_key) DO UPDATE SET
	url          = COALESCE(excluded.url, t.url),
	name         = COALESCE(excluded.name, t.name),
	description  = COALESCE(excluded.description, t.description),
	stars        = COALESCE(excluded.stars, t.stars),
	industry     = COALESCE(excluded.industry, t.industry),
	company_size = COALESCE(excluded.company_size, t.company_size),
	headquarters = COALESCE(excluded.headquarters, t.headquarters),
	specialties  = COALESCE(excluded.specialties, t.specialties),
	website      = COALESCE(excluded.website, t.website),
	logo         = COALESCE(excluded.logo, t.logo),
	updated_at   = CURRENT_TIMESTAMP
WHERE (t.url, t.name, t.description, t.stars, t.industry, t.company_size,
	t.headquarters, t.specialties, t.website, t.logo) IS NOT (
	COALESCE(excluded.url, t.url),
	COALESCE(excluded.name, t.name),
	COALESCE(excluded.description, t.description),
	COALESCE(excluded.stars, t.stars),
	COALESCE(excluded.industry, t.industry),
	COALESCE(excluded.company_size, t.company_size),
	COALESCE(excluded.headquarters, t.headquarters),
	COALESCE(excluded.specialties, t.specialties),
	COALESCE(excluded.website, t.website),
	COALESCE(excluded.logo, t.logo)
)`

	upsertMembershipSQL = `
INSERT INTO memberships AS t (platform, individual_key, collection_key, weight, role, start_date, end_date)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (platform, individual_key, collection_key) DO UPDATE SET
	weight     = COALESCE(excluded.weight, t.weight),
	role       = COALESCE(excluded.role, t.role),
	start_date = COALESCE(excluded.start_date, t.start_date),
	end_date   = COALESCE(excluded.end_date, t.end_date),
	updated_at = CURRENT_TIMESTAMP
WHERE (t.weight, t.role, t.start_date, t.end_date) IS NOT (
	COALESCE(excluded.weight, t.weight),
	COALESCE(excluded.role, t.role),
	COALESCE(excluded.start_date, t.start_date),
	COALESCE(excluded.end_date, t.end_date)
)`

	individualColumns = `platform, natural_key, name, profile_picture, header, email, websites`
	collectionColumns = `platform, natural_key, url, name, description, stars, industry,
	company_size, headquarters, specialties, website, logo`
	membershipColumns = `platform, individual_key, collection_key, weight, role, start_date, end_date`
)

type scanner interface {
	Scan(dest ...any) error
}

// UpsertIndividual inserts or merges an individual row.
func (s *Store) UpsertIndividual(ctx context.Context, ind crawler.Individual) error {
	if ind.Key == "" {
		return fmt.Errorf("individual key is required")
	}
	websites, err := encodeList(ind.Websites)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertIndividualSQL,
		string(ind.Platform), ind.Key, ind.Name, ind.ProfilePicture, ind.Header, ind.Email, websites)
	if err != nil {
		return fmt.Errorf("upsert individual: %w", err)
	}
	return nil
}

// UpsertCollection inserts or merges a collection row.
func (s *Store) UpsertCollection(ctx context.Context, col crawler.Collection) error {
	if col.Key == "" {
		return fmt.Errorf("collection key is required")
	}
	_, err := s.db.ExecContext(ctx, upsertCollectionSQL,
		string(col.Platform), col.Key, col.URL, col.Name, col.Description, col.Stars, col.Industry,
		col.CompanySize, col.Headquarters, col.Specialties, col.Website, col.Logo)
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

// UpsertMembership inserts or merges an edge. Both endpoints must already exist.
func (s *Store) UpsertMembership(ctx context.Context, m crawler.Membership) error {
	_, err := s.db.ExecContext(ctx, upsertMembershipSQL,
		string(m.Platform), m.IndividualKey, m.CollectionKey, m.Weight, m.Role, m.StartDate, m.EndDate)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("membership %s->%s: %w", m.IndividualKey, m.CollectionKey, crawler.ErrNotFound)
		}
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// GetIndividual returns a stored individual or crawler.ErrNotFound.
func (s *Store) GetIndividual(ctx context.Context, platform crawler.Platform, key string) (crawler.Individual, error) {
	query := `SELECT ` + individualColumns + ` FROM individuals WHERE platform = ? AND natural_key = ?`
	ind, err := scanIndividual(s.db.QueryRowContext(ctx, query, string(platform), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Individual{}, fmt.Errorf("individual %s/%s: %w", platform, key, crawler.ErrNotFound)
		}
		return crawler.Individual{}, fmt.Errorf("get individual: %w", err)
	}
	return ind, nil
}

// GetCollection returns a stored collection or crawler.ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, platform crawler.Platform, key string) (crawler.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE platform = ? AND natural_key = ?`
	col, err := scanCollection(s.db.QueryRowContext(ctx, query, string(platform), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Collection{}, fmt.Errorf("collection %s/%s: %w", platform, key, crawler.ErrNotFound)
		}
		return crawler.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return col, nil
}

// ListIndividuals returns every individual on a platform ordered by key.
func (s *Store) ListIndividuals(ctx context.Context, platform crawler.Platform) ([]crawler.Individual, error) {
	query := `SELECT ` + individualColumns + ` FROM individuals WHERE platform = ? ORDER BY natural_key`
	rows, err := s.db.QueryContext(ctx, query, string(platform))
	if err != nil {
		return nil, fmt.Errorf("list individuals: %w", err)
	}
	return collect(rows, scanIndividual, "list individuals")
}

// ListCollections returns every collection on a platform ordered by key.
func (s *Store) ListCollections(ctx context.Context, platform crawler.Platform) ([]crawler.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE platform = ? ORDER BY natural_key`
	rows, err := s.db.QueryContext(ctx, query, string(platform))
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return collect(rows, scanCollection, "list collections")
}

// MembershipsOf returns the edges of one individual.
func (s *Store) MembershipsOf(ctx context.Context, platform crawler.Platform, individualKey string) ([]crawler.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
WHERE platform = ? AND individual_key = ? ORDER BY collection_key`
	rows, err := s.db.QueryContext(ctx, query, string(platform), individualKey)
	if err != nil {
		return nil, fmt.Errorf("list memberships of individual: %w", err)
	}
	return collect(rows, scanMembership, "list memberships of individual")
}

// MembersOf returns the edges of one collection.
func (s *Store) MembersOf(ctx context.Context, platform crawler.Platform, collectionKey string) ([]crawler.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
WHERE platform = ? AND collection_key = ? ORDER BY individual_key`
	rows, err := s.db.QueryContext(ctx, query, string(platform), collectionKey)
	if err != nil {
		return nil, fmt.Errorf("list members of collection: %w", err)
	}
	return collect(rows, scanMembership, "list members of collection")
}

// FindIndividualByEmail looks up an individual by email, case-insensitively.
func (s *Store) FindIndividualByEmail(ctx context.Context, platform crawler.Platform, email string) (crawler.Individual, error) {
	query := `SELECT ` + individualColumns + ` FROM individuals
WHERE platform = ? AND email = ? COLLATE NOCASE ORDER BY natural_key LIMIT 1`
	ind, err := scanIndividual(s.db.QueryRowContext(ctx, query, string(platform), email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Individual{}, fmt.Errorf("individual with email %q: %w", email, crawler.ErrNotFound)
		}
		return crawler.Individual{}, fmt.Errorf("find individual by email: %w", err)
	}
	return ind, nil
}

func scanIndividual(row scanner) (crawler.Individual, error) {
	var (
		ind      crawler.Individual
		platform string
		websites sql.NullString
	)
	if err := row.Scan(&platform, &ind.Key, &ind.Name, &ind.ProfilePicture, &ind.Header, &ind.Email, &websites); err != nil {
		return crawler.Individual{}, err
	}
	ind.Platform = crawler.Platform(platform)
	list, err := decodeList(websites)
	if err != nil {
		return crawler.Individual{}, err
	}
	ind.Websites = list
	return ind, nil
}

func scanCollection(row scanner) (crawler.Collection, error) {
	var (
		col      crawler.Collection
		platform string
	)
	err := row.Scan(&platform, &col.Key, &col.URL, &col.Name, &col.Description, &col.Stars, &col.Industry,
		&col.CompanySize, &col.Headquarters, &col.Specialties, &col.Website, &col.Logo)
	col.Platform = crawler.Platform(platform)
	return col, err
}

func scanMembership(row scanner) (crawler.Membership, error) {
	var (
		m        crawler.Membership
		platform string
	)
	err := row.Scan(&platform, &m.IndividualKey, &m.CollectionKey, &m.Weight, &m.Role, &m.StartDate, &m.EndDate)
	m.Platform = crawler.Platform(platform)
	return m, err
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error), op string) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
