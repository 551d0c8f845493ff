// Package harvest implements the task-queue-driven crawl orchestration core:
// persisted pipelines, the per-task status state machine, natural-key
// deduplication, and cross-pipeline task spawning.
package harvest

// TaskStatus represents the lifecycle state of a crawl task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusNoResource TaskStatus = "no_resource"
)

// Valid reports whether s is a known status value.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusNoResource:
		return true
	default:
		return false
	}
}

// Terminal reports whether s ends processing for the current run. Terminal
// statuses are not immutable: a failed task stays visible to a manual re-run
// that queries with broader filters.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNoResource:
		return true
	default:
		return false
	}
}

// BlockedMessage is the error text recorded when a task is reset to pending
// after an anti-automation challenge. The pending status plus this message is
// the transient "blocked" sub-state: a later run retries without operator
// intervention, after a cooldown between runs.
const BlockedMessage = "anti-automation challenge detected"

// BookTask drives category-scoped book discovery. Progress counts resources
// newly created for this category; it never exceeds Target.
type BookTask struct {
	ID           int64
	CategoryID   string
	CategoryName string
	Progress     int
	Target       int
	Status       TaskStatus
	ErrorMessage string
}

// Remaining returns how many new books the task still needs.
func (t BookTask) Remaining() int {
	return t.Target - t.Progress
}

// AuthorTask drives detail enrichment for a single author. AuthorURL may be
// empty, forcing a name search.
type AuthorTask struct {
	ID           int64
	AuthorID     string
	AuthorName   string
	AuthorURL    string
	Status       TaskStatus
	ErrorMessage string
}

// Blocked reports whether the task was re-queued after a challenge page.
func (t AuthorTask) Blocked() bool {
	return t.Status == StatusPending && t.ErrorMessage != ""
}

// FileTask drives e-book acquisition for a single resource.
type FileTask struct {
	ID           int64
	ResourceID   string
	ISBN         string
	Title        string
	Status       TaskStatus
	ErrorMessage string
	Formats      FormatFlags
}

// FileFormat enumerates the fixed set of e-book formats.
type FileFormat int

// File format values persisted on resource_file rows.
const (
	FormatPDF  FileFormat = 1
	FormatEPUB FileFormat = 2
	FormatMOBI FileFormat = 3
)

// AllFormats lists every format a file task attempts.
var AllFormats = []FileFormat{FormatPDF, FormatEPUB, FormatMOBI}

// String returns the format's display name.
func (f FileFormat) String() string {
	switch f {
	case FormatPDF:
		return "PDF"
	case FormatEPUB:
		return "EPUB"
	case FormatMOBI:
		return "MOBI"
	default:
		return "UNKNOWN"
	}
}

// Ext returns the file extension including the dot.
func (f FileFormat) Ext() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatEPUB:
		return ".epub"
	case FormatMOBI:
		return ".mobi"
	default:
		return ".bin"
	}
}

// ContentType returns the MIME type used when uploading the binary.
func (f FileFormat) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatEPUB:
		return "application/epub+zip"
	case FormatMOBI:
		return "application/x-mobipocket-ebook"
	default:
		return "application/octet-stream"
	}
}

// FormatFlags records which formats have been stored for a file task.
type FormatFlags struct {
	PDF  bool
	EPUB bool
	MOBI bool
}

// Set marks the flag for the given format.
func (ff *FormatFlags) Set(f FileFormat, v bool) {
	switch f {
	case FormatPDF:
		ff.PDF = v
	case FormatEPUB:
		ff.EPUB = v
	case FormatMOBI:
		ff.MOBI = v
	}
}

// Get reports the flag for the given format.
func (ff FormatFlags) Get(f FileFormat) bool {
	switch f {
	case FormatPDF:
		return ff.PDF
	case FormatEPUB:
		return ff.EPUB
	case FormatMOBI:
		return ff.MOBI
	default:
		return false
	}
}

// Summary is the result of a single orchestrator run, accumulated by the
// caller instead of any process-wide counters. Blocked tasks count toward
// Processed only; they are neither succeeded nor failed.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
}

// StatusUpdate is a partial task update. Nil pointer fields are left
// unchanged by the store.
type StatusUpdate struct {
	Status       TaskStatus
	Progress     *int
	ErrorMessage *string
	Formats      *FormatFlags
}

// WithProgress sets the progress field.
func (u StatusUpdate) WithProgress(p int) StatusUpdate {
	u.Progress = &p
	return u
}

// WithError sets the error message field.
func (u StatusUpdate) WithError(msg string) StatusUpdate {
	u.ErrorMessage = &msg
	return u
}

// ClearError blanks the error message, used on success transitions.
func (u StatusUpdate) ClearError() StatusUpdate {
	empty := ""
	u.ErrorMessage = &empty
	return u
}

// WithFormats sets the downloaded-format flags.
func (u StatusUpdate) WithFormats(ff FormatFlags) StatusUpdate {
	u.Formats = &ff
	return u
}
