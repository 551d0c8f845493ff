// Package postgres provides the Postgres-backed task queue store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// StoreConfig controls the Postgres connection pool used for task rows.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists the three pipeline queues in Postgres.
type Store struct {
	pool querier
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("tasks.dsn is required")
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

// EnqueueBookTask inserts a discovery task for a category. A task already
// keyed to the category is left untouched and false is returned.
func (s *Store) EnqueueBookTask(ctx context.Context, categoryID, categoryName string, target int) (bool, error) {
	if categoryID == "" {
		return false, fmt.Errorf("category id is required")
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO crawl_task_book (category_id, category_name, progress, target, status, error_message)
VALUES ($1, $2, 0, $3, $4, '')
ON CONFLICT (category_id) DO NOTHING`,
		categoryID, categoryName, target, string(harvest.StatusPending))
	if err != nil {
		return false, fmt.Errorf("enqueue book task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnqueueAuthorTask inserts an enrichment task for an author.
func (s *Store) EnqueueAuthorTask(ctx context.Context, authorID, authorName, authorURL string) (bool, error) {
	if authorID == "" {
		return false, fmt.Errorf("author id is required")
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO crawl_task_author (author_id, author_name, author_url, status, error_message)
VALUES ($1, $2, $3, $4, '')
ON CONFLICT (author_id) DO NOTHING`,
		authorID, authorName, authorURL, string(harvest.StatusPending))
	if err != nil {
		return false, fmt.Errorf("enqueue author task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnqueueFileTask inserts an acquisition task for a resource.
func (s *Store) EnqueueFileTask(ctx context.Context, resourceID, isbn, title string) (bool, error) {
	if resourceID == "" {
		return false, fmt.Errorf("resource id is required")
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO crawl_task_file (resource_id, isbn, title, status, error_message, pdf_downloaded, epub_downloaded, mobi_downloaded)
VALUES ($1, $2, $3, $4, '', false, false, false)
ON CONFLICT (resource_id) DO NOTHING`,
		resourceID, isbn, title, string(harvest.StatusPending))
	if err != nil {
		return false, fmt.Errorf("enqueue file task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPendingBookTasks returns claimable book tasks oldest first. In-progress
// rows are included so tasks orphaned by a killed run are retried.
func (s *Store) ListPendingBookTasks(ctx context.Context, limit int) ([]harvest.BookTask, error) {
	query := `
SELECT id, category_id, category_name, progress, target, status, error_message
FROM crawl_task_book
WHERE status IN ($1, $2)
ORDER BY id ASC` + limitClause(limit)
	rows, err := s.pool.Query(ctx, query,
		string(harvest.StatusPending), string(harvest.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("list book tasks: %w", err)
	}
	defer rows.Close()

	var tasks []harvest.BookTask
	for rows.Next() {
		var t harvest.BookTask
		var status string
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.CategoryName, &t.Progress, &t.Target, &status, &t.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan book task: %w", err)
		}
		t.Status = harvest.TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list book tasks: %w", err)
	}
	return tasks, nil
}

// ListPendingAuthorTasks returns claimable author tasks oldest first.
func (s *Store) ListPendingAuthorTasks(ctx context.Context, limit int) ([]harvest.AuthorTask, error) {
	query := `
SELECT id, author_id, author_name, author_url, status, error_message
FROM crawl_task_author
WHERE status IN ($1, $2)
ORDER BY id ASC` + limitClause(limit)
	rows, err := s.pool.Query(ctx, query,
		string(harvest.StatusPending), string(harvest.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("list author tasks: %w", err)
	}
	defer rows.Close()

	var tasks []harvest.AuthorTask
	for rows.Next() {
		var t harvest.AuthorTask
		var status string
		if err := rows.Scan(&t.ID, &t.AuthorID, &t.AuthorName, &t.AuthorURL, &status, &t.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan author task: %w", err)
		}
		t.Status = harvest.TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list author tasks: %w", err)
	}
	return tasks, nil
}

// ListPendingFileTasks returns claimable file tasks oldest first.
func (s *Store) ListPendingFileTasks(ctx context.Context, limit int) ([]harvest.FileTask, error) {
	query := `
SELECT id, resource_id, isbn, title, status, error_message, pdf_downloaded, epub_downloaded, mobi_downloaded
FROM crawl_task_file
WHERE status IN ($1, $2)
ORDER BY id ASC` + limitClause(limit)
	rows, err := s.pool.Query(ctx, query,
		string(harvest.StatusPending), string(harvest.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("list file tasks: %w", err)
	}
	defer rows.Close()

	var tasks []harvest.FileTask
	for rows.Next() {
		var t harvest.FileTask
		var status string
		if err := rows.Scan(&t.ID, &t.ResourceID, &t.ISBN, &t.Title, &status, &t.ErrorMessage,
			&t.Formats.PDF, &t.Formats.EPUB, &t.Formats.MOBI); err != nil {
			return nil, fmt.Errorf("scan file task: %w", err)
		}
		t.Status = harvest.TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list file tasks: %w", err)
	}
	return tasks, nil
}

// UpdateBookTask applies a partial update to a book task row.
func (s *Store) UpdateBookTask(ctx context.Context, id int64, upd harvest.StatusUpdate) error {
	return s.update(ctx, "crawl_task_book", id, upd)
}

// UpdateAuthorTask applies a partial update to an author task row.
func (s *Store) UpdateAuthorTask(ctx context.Context, id int64, upd harvest.StatusUpdate) error {
	return s.update(ctx, "crawl_task_author", id, upd)
}

// UpdateFileTask applies a partial update to a file task row.
func (s *Store) UpdateFileTask(ctx context.Context, id int64, upd harvest.StatusUpdate) error {
	return s.update(ctx, "crawl_task_file", id, upd)
}

func (s *Store) update(ctx context.Context, table string, id int64, upd harvest.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("invalid task status %q", upd.Status)
	}
	sets := []string{"status = $1", "updated_at = now()"}
	args := []any{string(upd.Status)}
	if upd.Progress != nil {
		args = append(args, *upd.Progress)
		sets = append(sets, fmt.Sprintf("progress = $%d", len(args)))
	}
	if upd.ErrorMessage != nil {
		args = append(args, *upd.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if upd.Formats != nil {
		args = append(args, upd.Formats.PDF)
		sets = append(sets, fmt.Sprintf("pdf_downloaded = $%d", len(args)))
		args = append(args, upd.Formats.EPUB)
		sets = append(sets, fmt.Sprintf("epub_downloaded = $%d", len(args)))
		args = append(args, upd.Formats.MOBI)
		sets = append(sets, fmt.Sprintf("mobi_downloaded = $%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: task %d not found", table, id)
	}
	return nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
