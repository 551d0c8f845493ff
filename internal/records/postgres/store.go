// Package postgres provides the Postgres-backed bibliographic record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// StoreConfig controls the Postgres connection pool used for record rows.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists resources, authors, categories, tags and their relations.
type Store struct {
	pool querier
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("records.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ResourceIDByISBN returns the id of the non-deleted resource holding the
// ISBN, or empty when none exists.
func (s *Store) ResourceIDByISBN(ctx context.Context, isbn string) (string, error) {
	if isbn == "" {
		return "", nil
	}
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT resource_id FROM resource WHERE isbn = $1 AND deleted = 0`, isbn).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup resource by isbn: %w", err)
	}
	return id, nil
}

// AuthorIDByName returns the id of the non-deleted author with the exact
// normalized name, or empty when none exists.
func (s *Store) AuthorIDByName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT author_id FROM author WHERE name = $1 AND deleted = 0`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup author by name: %w", err)
	}
	return id, nil
}

// CategoryIDByName returns the id of the non-deleted category with the name
// under the given parent, or empty when none exists. An empty parentID
// matches top-level categories.
func (s *Store) CategoryIDByName(ctx context.Context, name, parentID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT category_id FROM category WHERE name = $1 AND parent_id = $2 AND deleted = 0`,
		name, parentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup category by name: %w", err)
	}
	return id, nil
}

// CreateResource inserts a resource row. A concurrent duplicate on the
// primary key is tolerated as a no-op.
func (s *Store) CreateResource(ctx context.Context, r catalog.Resource) error {
	if r.ResourceID == "" {
		return fmt.Errorf("resource id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO resource (
	resource_id, title, sub_title, summary, cover_url, type, isbn,
	publisher, pub_date, page_count, price, author_name, translator_name,
	source_origin, source_url, source_score, deleted
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,0)
ON CONFLICT (resource_id) DO NOTHING`,
		r.ResourceID, r.Title, r.SubTitle, r.Summary, r.CoverURL, r.Type, r.ISBN,
		r.Publisher, r.PubDate, r.PageCount, r.Price, r.AuthorName, r.TranslatorName,
		int(r.SourceOrigin), r.SourceURL, r.SourceScore)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// CreateAuthor inserts an author row, skeleton or complete.
func (s *Store) CreateAuthor(ctx context.Context, a catalog.Author) error {
	if a.AuthorID == "" {
		return fmt.Errorf("author id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO author (
	author_id, name, original_name, country, photo_url, description,
	source_origin, source_url, deleted
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
ON CONFLICT (author_id) DO NOTHING`,
		a.AuthorID, a.Name, a.OriginalName, a.Country, a.PhotoURL, a.Description,
		int(a.SourceOrigin), a.SourceURL)
	if err != nil {
		return fmt.Errorf("insert author: %w", err)
	}
	return nil
}

// UpdateAuthorDetail merges non-empty fields into an existing author row;
// populated columns are never blanked.
func (s *Store) UpdateAuthorDetail(ctx context.Context, a catalog.Author) error {
	if a.AuthorID == "" {
		return fmt.Errorf("author id is required")
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE author SET
	original_name = COALESCE(NULLIF($2, ''), original_name),
	country       = COALESCE(NULLIF($3, ''), country),
	photo_url     = COALESCE(NULLIF($4, ''), photo_url),
	description   = COALESCE(NULLIF($5, ''), description),
	source_url    = COALESCE(NULLIF($6, ''), source_url)
WHERE author_id = $1 AND deleted = 0`,
		a.AuthorID, a.OriginalName, a.Country, a.PhotoURL, a.Description, a.SourceURL)
	if err != nil {
		return fmt.Errorf("update author detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("author %s not found", a.AuthorID)
	}
	return nil
}

// UpsertCategory inserts a category node or refreshes its mutable fields.
func (s *Store) UpsertCategory(ctx context.Context, c catalog.Category) error {
	if c.CategoryID == "" {
		return fmt.Errorf("category id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO category (category_id, name, parent_id, level, sort_order, deleted)
VALUES ($1,$2,$3,$4,$5,0)
ON CONFLICT (category_id) DO UPDATE SET
	name = EXCLUDED.name,
	parent_id = EXCLUDED.parent_id,
	level = EXCLUDED.level,
	sort_order = EXCLUDED.sort_order`,
		c.CategoryID, c.Name, c.ParentID, c.Level, c.SortOrder)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// EnsureTag inserts the tag when its name is unknown and returns the
// canonical id either way.
func (s *Store) EnsureTag(ctx context.Context, t catalog.Tag) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("tag name is required")
	}
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT tag_id FROM tag WHERE name = $1 AND deleted = 0`, t.Name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup tag: %w", err)
	}
	if t.TagID == "" {
		return "", fmt.Errorf("tag id is required")
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO tag (tag_id, name, deleted) VALUES ($1, $2, 0) ON CONFLICT (name) DO NOTHING`,
		t.TagID, t.Name); err != nil {
		return "", fmt.Errorf("insert tag: %w", err)
	}
	// A concurrent insert may have won the conflict; re-read the winner.
	if err := s.pool.QueryRow(ctx,
		`SELECT tag_id FROM tag WHERE name = $1 AND deleted = 0`, t.Name).Scan(&id); err != nil {
		return "", fmt.Errorf("reread tag: %w", err)
	}
	return id, nil
}

// AttachAuthor links an author to a resource in the given role. Duplicate
// links are no-ops.
func (s *Store) AttachAuthor(ctx context.Context, resourceID, authorID string, role catalog.AuthorRole, sort int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO resource_author_rel (resource_id, author_id, role, sort_order)
VALUES ($1,$2,$3,$4)
ON CONFLICT (resource_id, author_id, role) DO NOTHING`,
		resourceID, authorID, string(role), sort)
	if err != nil {
		return fmt.Errorf("attach author: %w", err)
	}
	return nil
}

// AttachCategory links a resource into a category. Duplicate links are no-ops.
func (s *Store) AttachCategory(ctx context.Context, resourceID, categoryID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO resource_category_rel (resource_id, category_id)
VALUES ($1,$2)
ON CONFLICT (resource_id, category_id) DO NOTHING`,
		resourceID, categoryID)
	if err != nil {
		return fmt.Errorf("attach category: %w", err)
	}
	return nil
}

// AttachTag links a tag to a resource with a weight. Duplicate links are no-ops.
func (s *Store) AttachTag(ctx context.Context, resourceID, tagID string, weight float64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO resource_tag_rel (resource_id, tag_id, weight)
VALUES ($1,$2,$3)
ON CONFLICT (resource_id, tag_id) DO NOTHING`,
		resourceID, tagID, weight)
	if err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// FileExists reports whether a non-deleted file row exists for the resource
// and format.
func (s *Store) FileExists(ctx context.Context, resourceID string, format harvest.FileFormat) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM resource_file
	WHERE resource_id = $1 AND file_type = $2 AND deleted = 0
)`, resourceID, int(format)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	return exists, nil
}

// CreateFile inserts a file row; re-acquisition of the same format refreshes
// the URL and size.
func (s *Store) CreateFile(ctx context.Context, f catalog.ResourceFile) error {
	if f.ResourceID == "" {
		return fmt.Errorf("resource id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO resource_file (resource_id, file_type, file_url, file_size, deleted)
VALUES ($1,$2,$3,$4,0)
ON CONFLICT (resource_id, file_type) DO UPDATE SET
	file_url = EXCLUDED.file_url,
	file_size = EXCLUDED.file_size,
	deleted = 0`,
		f.ResourceID, f.FileType, f.FileURL, f.FileSize)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// ListLeafCategories returns the level-2 category nodes ordered by sort.
func (s *Store) ListLeafCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.pool.Query(ctx, `
SELECT category_id, name, parent_id, level, sort_order
FROM category
WHERE level = 2 AND deleted = 0
ORDER BY sort_order ASC, category_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list leaf categories: %w", err)
	}
	defer rows.Close()

	var cats []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.ParentID, &c.Level, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leaf categories: %w", err)
	}
	return cats, nil
}

// ListResourceRefs returns the id, ISBN, and title of every non-deleted
// resource, used to seed file-acquisition tasks.
func (s *Store) ListResourceRefs(ctx context.Context) ([]catalog.ResourceRef, error) {
	rows, err := s.pool.Query(ctx, `
SELECT resource_id, isbn, title
FROM resource
WHERE deleted = 0
ORDER BY resource_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var refs []catalog.ResourceRef
	for rows.Next() {
		var r catalog.ResourceRef
		if err := rows.Scan(&r.ResourceID, &r.ISBN, &r.Title); err != nil {
			return nil, fmt.Errorf("scan resource ref: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return refs, nil
}
