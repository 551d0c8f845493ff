// Package catalog defines the bibliographic record types shared across subsystems.
package catalog

// SourceOrigin identifies the external catalog a record was harvested from.
type SourceOrigin int

// Source origins persisted on resources and authors.
const (
	OriginDouban   SourceOrigin = 1
	OriginZLibrary SourceOrigin = 2
)

// ResourceType distinguishes resource kinds. Only books are harvested today.
const ResourceTypeBook = 1

// Resource is a harvested book record. ResourceID is minted once at creation
// and never reused; core fields are not overwritten after creation.
type Resource struct {
	ResourceID     string
	Title          string
	SubTitle       string
	Summary        string
	CoverURL       string
	Type           int
	ISBN           string
	Publisher      string
	PubDate        string
	PageCount      int
	Price          float64
	AuthorName     string // comma-joined display snapshot
	TranslatorName string // comma-joined display snapshot
	SourceOrigin   SourceOrigin
	SourceURL      string
	SourceScore    float64
}

// Author is a person record shared by authors and translators. Enrichment is
// additive: later pipelines fill empty fields, never blank populated ones.
type Author struct {
	AuthorID     string
	Name         string
	OriginalName string
	Country      string
	PhotoURL     string
	Description  string
	SourceOrigin SourceOrigin
	SourceURL    string
}

// AuthorRole is the role an author plays on a specific resource.
type AuthorRole string

// Roles stored on resource_author_rel rows.
const (
	RoleAuthor     AuthorRole = "author"
	RoleTranslator AuthorRole = "translator"
)

// Category is a node in the two-level genre tree. Level 1 nodes are top
// genres, level 2 nodes are the leaf categories books are tagged with.
type Category struct {
	CategoryID string
	Name       string
	ParentID   string
	Level      int
	SortOrder  int
}

// Tag is a free-form label harvested alongside e-book files.
type Tag struct {
	TagID string
	Name  string
}

// ResourceFile is a stored e-book binary for a resource.
// FileType values follow harvest.FileFormat (1=PDF, 2=EPUB, 3=MOBI).
type ResourceFile struct {
	ResourceID string
	FileType   int
	FileURL    string
	FileSize   int64
}

// ResourceRef is the minimal handle used when seeding file-acquisition tasks.
type ResourceRef struct {
	ResourceID string
	ISBN       string
	Title      string
}
