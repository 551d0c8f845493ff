package harvest

import (
	"context"
	"time"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
)

// TaskStore persists the three pipeline queues. Enqueue operations are
// idempotent on the subject key: a duplicate enqueue is a no-op returning
// false. ListPending returns pending plus in-progress tasks oldest first, so
// a task left in-progress by a killed run is picked up again.
type TaskStore interface {
	EnqueueBookTask(ctx context.Context, categoryID, categoryName string, target int) (bool, error)
	EnqueueAuthorTask(ctx context.Context, authorID, authorName, authorURL string) (bool, error)
	EnqueueFileTask(ctx context.Context, resourceID, isbn, title string) (bool, error)

	ListPendingBookTasks(ctx context.Context, limit int) ([]BookTask, error)
	ListPendingAuthorTasks(ctx context.Context, limit int) ([]AuthorTask, error)
	ListPendingFileTasks(ctx context.Context, limit int) ([]FileTask, error)

	UpdateBookTask(ctx context.Context, id int64, upd StatusUpdate) error
	UpdateAuthorTask(ctx context.Context, id int64, upd StatusUpdate) error
	UpdateFileTask(ctx context.Context, id int64, upd StatusUpdate) error
}

// RecordStore is the relational record layer shared by all orchestrators.
// Lookups double as the dedup index: natural key in, internal identifier out
// (empty string when absent). All writes are upserts or duplicate-tolerant
// inserts so re-processing stays safe under at-least-once delivery.
type RecordStore interface {
	// Dedup index lookups. Existence filters on deleted = 0.
	ResourceIDByISBN(ctx context.Context, isbn string) (string, error)
	AuthorIDByName(ctx context.Context, name string) (string, error)
	CategoryIDByName(ctx context.Context, name, parentID string) (string, error)

	CreateResource(ctx context.Context, r catalog.Resource) error
	CreateAuthor(ctx context.Context, a catalog.Author) error
	// UpdateAuthorDetail merges non-empty fields into an existing author row.
	UpdateAuthorDetail(ctx context.Context, a catalog.Author) error
	UpsertCategory(ctx context.Context, c catalog.Category) error
	// EnsureTag inserts the tag if its name is unknown and returns the
	// canonical tag identifier either way.
	EnsureTag(ctx context.Context, t catalog.Tag) (string, error)

	// Relation writes tolerate duplicates as no-ops (relation repair).
	AttachAuthor(ctx context.Context, resourceID, authorID string, role catalog.AuthorRole, sort int) error
	AttachCategory(ctx context.Context, resourceID, categoryID string) error
	AttachTag(ctx context.Context, resourceID, tagID string, weight float64) error

	FileExists(ctx context.Context, resourceID string, format FileFormat) (bool, error)
	CreateFile(ctx context.Context, f catalog.ResourceFile) error

	ListLeafCategories(ctx context.Context) ([]catalog.Category, error)
	ListResourceRefs(ctx context.Context) ([]catalog.ResourceRef, error)
}

// AssetStore writes binary content and returns a stable reference URL.
type AssetStore interface {
	Put(ctx context.Context, bucket, objectName, contentType string, data []byte) (string, error)
}

// Downloader fetches raw binary content (cover images, author photos) and
// reports its content type.
type Downloader interface {
	Download(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// BookCandidate is one entry discovered on a category listing.
type BookCandidate struct {
	ISBN string
}

// Contributor is an author or translator scraped from a detail page. The
// detail URL may be empty; enrichment then falls back to a name search.
type Contributor struct {
	Name      string
	DetailURL string
}

// BookDetail is the structured extraction of one book detail page. The
// resource carries no ResourceID; the orchestrator mints one on store.
type BookDetail struct {
	Resource    catalog.Resource
	CoverURL    string
	Authors     []Contributor
	Translators []Contributor
}

// BookSource is the crawl surface for book discovery: listing candidates
// under a category tag and extracting detail pages. Implementations own
// fetch classification (ErrBlocked, ErrNotFound, ErrUnparsable) and
// politeness pacing.
type BookSource interface {
	Candidates(ctx context.Context, tag string, count int) ([]BookCandidate, error)
	BookDetail(ctx context.Context, isbn string) (BookDetail, error)
}

// AuthorDetail is the structured extraction of an author page.
type AuthorDetail struct {
	Description  string
	Country      string
	OriginalName string
	PhotoURL     string
	SourceURL    string
}

// AuthorSource resolves and extracts author detail pages.
type AuthorSource interface {
	// Search returns the detail URL for a name, ErrNotFound when the search
	// yields nothing, ErrBlocked on a challenge page.
	Search(ctx context.Context, name string) (string, error)
	Detail(ctx context.Context, url string) (AuthorDetail, error)
}

// EbookDownload is one downloadable volume discovered for an ISBN.
type EbookDownload struct {
	Format FileFormat
	URL    string
}

// EbookSearchResult carries the download links plus any tags scraped from
// the e-book detail page.
type EbookSearchResult struct {
	Downloads []EbookDownload
	Tags      []string
}

// EbookSource searches the e-book catalog and downloads volumes.
type EbookSource interface {
	Search(ctx context.Context, isbn string) (EbookSearchResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// IDGenerator mints opaque record identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
