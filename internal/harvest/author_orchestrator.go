package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/metrics"
)

// AuthorOrchestrator drains the author-enrichment queue. It only updates
// author rows that already exist; it never creates them. Enrichment is
// additive: empty fields get filled, populated fields are kept.
type AuthorOrchestrator struct {
	tasks   TaskStore
	records RecordStore
	assets  AssetStore
	source  AuthorSource
	images  Downloader
	ids     IDGenerator
	buckets Buckets
	log     *zap.Logger
}

// NewAuthorOrchestrator wires an AuthorOrchestrator.
func NewAuthorOrchestrator(
	tasks TaskStore,
	records RecordStore,
	assets AssetStore,
	source AuthorSource,
	images Downloader,
	ids IDGenerator,
	buckets Buckets,
	log *zap.Logger,
) *AuthorOrchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthorOrchestrator{
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
func (o *AuthorOrchestrator) Run(ctx context.Context, limit int) (Summary, error) {
	tasks, err := o.tasks.ListPendingAuthorTasks(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending author tasks: %w", err)
	}
	var sum Summary
	for _, t := range tasks {
		sum.Processed++
		if err := o.tasks.UpdateAuthorTask(ctx, t.ID, StatusUpdate{Status: StatusInProgress}); err != nil {
			return sum, fmt.Errorf("claim author task %d: %w", t.ID, err)
		}
		outcome, err := o.processTask(ctx, t)
		switch {
		case err != nil:
			o.log.Error("author task failed",
				zap.Int64("task_id", t.ID),
				zap.String("author", t.AuthorName),
				zap.Error(err))
			upd := StatusUpdate{Status: StatusFailed}.WithError(err.Error())
			if uerr := o.tasks.UpdateAuthorTask(ctx, t.ID, upd); uerr != nil {
				o.log.Error("record author task failure", zap.Int64("task_id", t.ID), zap.Error(uerr))
			}
			metrics.TasksFinished.WithLabelValues("author", string(StatusFailed)).Inc()
			sum.Failed++
		case outcome == taskBlocked:
			metrics.BlockedDetected.WithLabelValues("author").Inc()
		default:
			sum.Succeeded++
		}
	}
	return sum, nil
}

func (o *AuthorOrchestrator) processTask(ctx context.Context, t AuthorTask) (taskOutcome, error) {
	url := t.AuthorURL
	if url == "" {
		found, err := o.source.Search(ctx, t.AuthorName)
		switch {
		case errors.Is(err, ErrBlocked):
			return o.requeueBlocked(ctx, t)
		case errors.Is(err, ErrNotFound):
			return o.markNoResource(ctx, t, "no author page found")
		case err != nil:
			return 0, fmt.Errorf("search author %q: %w", t.AuthorName, err)
		}
		url = found
	}

	// A search-results link is not a detail page; leave it for manual fixup.
	if strings.Contains(url, "/search") {
		return o.markNoResource(ctx, t, "author link is a search page")
	}

	detail, err := o.source.Detail(ctx, url)
	switch {
	case errors.Is(err, ErrBlocked):
		return o.requeueBlocked(ctx, t)
	case err != nil:
		// A redirect to an unrelated page type surfaces as ErrUnparsable and
		// fails the task: the page is the whole task's subject.
		return 0, fmt.Errorf("author detail %q: %w", t.AuthorName, err)
	}

	author := catalog.Author{
		AuthorID:     t.AuthorID,
		Name:         t.AuthorName,
		OriginalName: detail.OriginalName,
		Country:      detail.Country,
		Description:  detail.Description,
		PhotoURL:     o.uploadPhoto(ctx, t, detail.PhotoURL),
		SourceOrigin: catalog.OriginDouban,
		SourceURL:    detail.SourceURL,
	}
	if author.SourceURL == "" {
		author.SourceURL = url
	}
	if err := o.records.UpdateAuthorDetail(ctx, author); err != nil {
		return 0, fmt.Errorf("update author %q: %w", t.AuthorName, err)
	}

	upd := StatusUpdate{Status: StatusCompleted}.ClearError()
	if err := o.tasks.UpdateAuthorTask(ctx, t.ID, upd); err != nil {
		return 0, fmt.Errorf("complete author task: %w", err)
	}
	metrics.TasksFinished.WithLabelValues("author", string(StatusCompleted)).Inc()
	o.log.Info("author enriched", zap.String("author", t.AuthorName))
	return taskSucceeded, nil
}

// uploadPhoto fetches and stores the author photo. Failures are logged and
// swallowed: partial enrichment without a photo is still a success.
func (o *AuthorOrchestrator) uploadPhoto(ctx context.Context, t AuthorTask, photoURL string) string {
	if photoURL == "" {
		return ""
	}
	data, contentType, err := o.images.Download(ctx, photoURL)
	if err != nil {
		o.log.Warn("photo download failed",
			zap.String("author", t.AuthorName), zap.Error(err))
		return ""
	}
	name, err := o.ids.NewID()
	if err != nil {
		o.log.Warn("mint photo name failed", zap.Error(err))
		return ""
	}
	object := name + imageExtension(contentType, photoURL)
	url, err := o.assets.Put(ctx, o.buckets.Avatars, object, contentType, data)
	if err != nil {
		o.log.Warn("photo upload failed",
			zap.String("author", t.AuthorName), zap.Error(err))
		return ""
	}
	return url
}

func (o *AuthorOrchestrator) requeueBlocked(ctx context.Context, t AuthorTask) (taskOutcome, error) {
	upd := StatusUpdate{Status: StatusPending}.WithError(BlockedMessage)
	if err := o.tasks.UpdateAuthorTask(ctx, t.ID, upd); err != nil {
		return 0, fmt.Errorf("requeue blocked author task: %w", err)
	}
	o.log.Warn("author task re-queued after challenge page",
		zap.String("author", t.AuthorName))
	return taskBlocked, nil
}

func (o *AuthorOrchestrator) markNoResource(ctx context.Context, t AuthorTask, reason string) (taskOutcome, error) {
	upd := StatusUpdate{Status: StatusNoResource}.WithError(reason)
	if err := o.tasks.UpdateAuthorTask(ctx, t.ID, upd); err != nil {
		return 0, fmt.Errorf("mark author task no_resource: %w", err)
	}
	metrics.TasksFinished.WithLabelValues("author", string(StatusNoResource)).Inc()
	o.log.Info("author task has no resource",
		zap.String("author", t.AuthorName), zap.String("reason", reason))
	return taskSucceeded, nil
}
