package harvest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/metrics"
)

// Buckets names the asset store buckets the orchestrators write into.
type Buckets struct {
	Covers      string
	Attachments string
	Avatars     string
}

// taskOutcome is the per-task result inside a run. Blocked tasks were
// re-queued as pending and count toward neither succeeded nor failed.
type taskOutcome int

const (
	taskSucceeded taskOutcome = iota
	taskBlocked
)

// candidateOutcome is the per-candidate result inside a book task.
type candidateOutcome int

const (
	// candidateStored: a new resource was created (counts toward progress).
	candidateStored candidateOutcome = iota
	// candidateRepaired: the ISBN already existed; only relations were
	// re-attached. Repair does not count toward progress.
	candidateRepaired
	// candidateSkipped: unparsable page or missing cover; not a failure.
	candidateSkipped
)

// BookOrchestrator drains the category-book queue: for each claimed task it
// discovers up to the remaining number of books under the task's category,
// stores them with author/translator/category relations, and spawns
// file-acquisition and author-enrichment tasks for what it created.
type BookOrchestrator struct {
	tasks   TaskStore
	records RecordStore
	assets  AssetStore
	source  BookSource
	images  Downloader
	ids     IDGenerator
	buckets Buckets
	log     *zap.Logger
}

// NewBookOrchestrator wires a BookOrchestrator.
func NewBookOrchestrator(
	tasks TaskStore,
	records RecordStore,
	assets AssetStore,
	source BookSource,
	images Downloader,
	ids IDGenerator,
	buckets Buckets,
	log *zap.Logger,
) *BookOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookOrchestrator{
		tasks:   tasks,
		records: records,
		assets:  assets,
		source:  source,
		images:  images,
		ids:     ids,
		buckets: buckets,
		log:     log,
	}
}

// Run claims up to limit pending tasks and processes them sequentially.
// A failing task is recorded and the loop continues; only a store failure
// aborts the run itself.
func (o *BookOrchestrator) Run(ctx context.Context, limit int) (Summary, error) {
	tasks, err := o.tasks.ListPendingBookTasks(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending book tasks: %w", err)
	}
	var sum Summary
	for _, t := range tasks {
		sum.Processed++
		if err := o.tasks.UpdateBookTask(ctx, t.ID, StatusUpdate{Status: StatusInProgress}); err != nil {
			return sum, fmt.Errorf("claim book task %d: %w", t.ID, err)
		}
		outcome, created, err := o.processTask(ctx, t)
		switch {
		case err != nil:
			o.log.Error("book task failed",
				zap.Int64("task_id", t.ID),
				zap.String("category", t.CategoryName),
				zap.Error(err))
			upd := StatusUpdate{Status: StatusFailed}.WithProgress(t.Progress + created).WithError(err.Error())
			if uerr := o.tasks.UpdateBookTask(ctx, t.ID, upd); uerr != nil {
				o.log.Error("record book task failure", zap.Int64("task_id", t.ID), zap.Error(uerr))
			}
			metrics.TasksFinished.WithLabelValues("book", string(StatusFailed)).Inc()
			sum.Failed++
		case outcome == taskBlocked:
			metrics.BlockedDetected.WithLabelValues("book").Inc()
		default:
			sum.Succeeded++
		}
	}
	return sum, nil
}

// processTask runs one claimed task. It returns the number of resources
// created so far alongside any error so the caller can commit progress even
// on a failure path.
func (o *BookOrchestrator) processTask(ctx context.Context, t BookTask) (taskOutcome, int, error) {
	remaining := t.Remaining()
	if remaining <= 0 {
		// Target already met, or lowered below committed progress by manual
		// seeding. Nothing left to do.
		upd := StatusUpdate{Status: StatusCompleted}.WithProgress(t.Target).ClearError()
		if err := o.tasks.UpdateBookTask(ctx, t.ID, upd); err != nil {
			return 0, 0, fmt.Errorf("complete book task: %w", err)
		}
		metrics.TasksFinished.WithLabelValues("book", string(StatusCompleted)).Inc()
		return taskSucceeded, 0, nil
	}

	candidates, err := o.source.Candidates(ctx, t.CategoryName, remaining)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlocked):
			return o.requeueBlocked(ctx, t, 0)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnparsable):
			o.log.Warn("category listing yielded nothing",
				zap.String("category", t.CategoryName), zap.Error(err))
			candidates = nil
		default:
			return 0, 0, fmt.Errorf("list candidates for %q: %w", t.CategoryName, err)
		}
	}

	created := 0
	for _, cand := range candidates {
		outcome, err := o.harvestCandidate(ctx, t, cand.ISBN)
		if err != nil {
			if errors.Is(err, ErrBlocked) {
				return o.requeueBlocked(ctx, t, created)
			}
			return 0, created, err
		}
		if outcome == candidateStored {
			created++
		}
	}

	newProgress := t.Progress + created
	if newProgress >= t.Target {
		upd := StatusUpdate{Status: StatusCompleted}.WithProgress(newProgress).ClearError()
		if err := o.tasks.UpdateBookTask(ctx, t.ID, upd); err != nil {
			return 0, created, fmt.Errorf("complete book task: %w", err)
		}
		metrics.TasksFinished.WithLabelValues("book", string(StatusCompleted)).Inc()
		o.log.Info("book task completed",
			zap.String("category", t.CategoryName), zap.Int("progress", newProgress))
		return taskSucceeded, created, nil
	}

	upd := StatusUpdate{Status: StatusInProgress}.WithProgress(newProgress).ClearError()
	if err := o.tasks.UpdateBookTask(ctx, t.ID, upd); err != nil {
		return 0, created, fmt.Errorf("update book task progress: %w", err)
	}
	o.log.Info("book task progress",
		zap.String("category", t.CategoryName),
		zap.Int("progress", newProgress), zap.Int("target", t.Target))
	return taskSucceeded, created, nil
}

func (o *BookOrchestrator) requeueBlocked(ctx context.Context, t BookTask, created int) (taskOutcome, int, error) {
	upd := StatusUpdate{Status: StatusPending}.WithProgress(t.Progress + created).WithError(BlockedMessage)
	if err := o.tasks.UpdateBookTask(ctx, t.ID, upd); err != nil {
		return 0, created, fmt.Errorf("requeue blocked book task: %w", err)
	}
	o.log.Warn("book task re-queued after challenge page",
		zap.String("category", t.CategoryName))
	return taskBlocked, created, nil
}

// harvestCandidate runs the dedup-critical fetch-extract-store cycle for a
// single ISBN under the task's category.
func (o *BookOrchestrator) harvestCandidate(ctx context.Context, t BookTask, isbn string) (candidateOutcome, error) {
	existing, err := o.records.ResourceIDByISBN(ctx, isbn)
	if err != nil {
		return 0, fmt.Errorf("isbn lookup %s: %w", isbn, err)
	}
	if existing != "" {
		// Relation repair: the same book accumulates category links from
		// multiple crawl passes. Duplicate relation inserts are no-ops.
		if err := o.records.AttachCategory(ctx, existing, t.CategoryID); err != nil {
			o.log.Warn("category relation repair failed",
				zap.String("isbn", isbn), zap.Error(err))
		}
		o.log.Debug("isbn already stored", zap.String("isbn", isbn))
		return candidateRepaired, nil
	}

	detail, err := o.source.BookDetail(ctx, isbn)
	if err != nil {
		switch {
		case errors.Is(err, ErrBlocked):
			return 0, err
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnparsable):
			o.log.Warn("skipping candidate", zap.String("isbn", isbn), zap.Error(err))
			metrics.CandidatesSkipped.Inc()
			return candidateSkipped, nil
		default:
			return 0, fmt.Errorf("book detail %s: %w", isbn, err)
		}
	}

	// A cover image is mandatory: downstream presentation requires one.
	if detail.CoverURL == "" {
		o.log.Warn("candidate has no cover image", zap.String("isbn", isbn))
		metrics.CandidatesSkipped.Inc()
		return candidateSkipped, nil
	}
	coverURL, err := o.uploadCover(ctx, detail.CoverURL)
	if err != nil {
		o.log.Warn("cover upload failed, skipping candidate",
			zap.String("isbn", isbn), zap.Error(err))
		metrics.CandidatesSkipped.Inc()
		return candidateSkipped, nil
	}

	resourceID, err := o.ids.NewID()
	if err != nil {
		return 0, fmt.Errorf("mint resource id: %w", err)
	}
	res := detail.Resource
	res.ResourceID = resourceID
	res.CoverURL = coverURL
	if err := o.records.CreateResource(ctx, res); err != nil {
		return 0, fmt.Errorf("store resource %s: %w", isbn, err)
	}

	if err := o.attachContributors(ctx, resourceID, detail.Authors, catalog.RoleAuthor, true); err != nil {
		return 0, err
	}
	if err := o.attachContributors(ctx, resourceID, detail.Translators, catalog.RoleTranslator, false); err != nil {
		return 0, err
	}

	if err := o.records.AttachCategory(ctx, resourceID, t.CategoryID); err != nil {
		o.log.Warn("category relation failed",
			zap.String("resource_id", resourceID), zap.Error(err))
	}

	if res.ISBN != "" {
		if _, err := o.tasks.EnqueueFileTask(ctx, resourceID, res.ISBN, res.Title); err != nil {
			o.log.Warn("enqueue file task failed",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
	}

	o.log.Info("book stored", zap.String("isbn", isbn), zap.String("title", res.Title))
	metrics.BooksHarvested.Inc()
	return candidateStored, nil
}

// attachContributors dedups contributors by normalized name, creates missing
// author rows, spawns enrichment tasks, and writes role-scoped relations with
// 1-based ordering. Translators without a detail URL get no enrichment task;
// a name search for them is not worth a crawl slot.
func (o *BookOrchestrator) attachContributors(
	ctx context.Context,
	resourceID string,
	contributors []Contributor,
	role catalog.AuthorRole,
	enqueueWithoutURL bool,
) error {
	sort := 0
	for _, c := range contributors {
		if c.Name == "" {
			continue
		}
		authorID, err := o.records.AuthorIDByName(ctx, c.Name)
		if err != nil {
			return fmt.Errorf("author lookup %q: %w", c.Name, err)
		}
		if authorID == "" {
			authorID, err = o.ids.NewID()
			if err != nil {
				return fmt.Errorf("mint author id: %w", err)
			}
			author := catalog.Author{
				AuthorID:     authorID,
				Name:         c.Name,
				SourceOrigin: catalog.OriginDouban,
			}
			if err := o.records.CreateAuthor(ctx, author); err != nil {
				return fmt.Errorf("store author %q: %w", c.Name, err)
			}
			if c.DetailURL != "" || enqueueWithoutURL {
				if _, err := o.tasks.EnqueueAuthorTask(ctx, authorID, c.Name, c.DetailURL); err != nil {
					o.log.Warn("enqueue author task failed",
						zap.String("author", c.Name), zap.Error(err))
				}
			}
		}
		sort++
		if err := o.records.AttachAuthor(ctx, resourceID, authorID, role, sort); err != nil {
			return fmt.Errorf("attach %s %q: %w", role, c.Name, err)
		}
	}
	return nil
}

func (o *BookOrchestrator) uploadCover(ctx context.Context, rawURL string) (string, error) {
	data, contentType, err := o.images.Download(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("download cover: %w", err)
	}
	name, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("mint cover name: %w", err)
	}
	object := name + imageExtension(contentType, rawURL)
	url, err := o.assets.Put(ctx, o.buckets.Covers, object, contentType, data)
	if err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}
	return url, nil
}
