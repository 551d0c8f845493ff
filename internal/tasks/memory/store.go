// Package memory provides an in-memory task store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// Store keeps the three pipeline queues in process memory. Behavior mirrors
// the Postgres store: enqueues are idempotent on the subject key and listings
// return pending plus in-progress tasks oldest first.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	bookByCategory map[string]int64
	books          map[int64]harvest.BookTask

	authorByID map[string]int64
	authors    map[int64]harvest.AuthorTask

	fileByResource map[string]int64
	files          map[int64]harvest.FileTask
}

// NewStore creates an empty in-memory task store.
func NewStore() *Store {
	return &Store{
		nextID:         1,
		bookByCategory: make(map[string]int64),
		books:          make(map[int64]harvest.BookTask),
		authorByID:     make(map[string]int64),
		authors:        make(map[int64]harvest.AuthorTask),
		fileByResource: make(map[string]int64),
		files:          make(map[int64]harvest.FileTask),
	}
}

// EnqueueBookTask adds a discovery task keyed by category.
func (s *Store) EnqueueBookTask(_ context.Context, categoryID, categoryName string, target int) (bool, error) {
	if categoryID == "" {
		return false, fmt.Errorf("category id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookByCategory[categoryID]; ok {
		return false, nil
	}
	id := s.nextID
	s.nextID++
	s.books[id] = harvest.BookTask{
		ID:           id,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		Target:       target,
		Status:       harvest.StatusPending,
	}
	s.bookByCategory[categoryID] = id
	return true, nil
}

// EnqueueAuthorTask adds an enrichment task keyed by author.
func (s *Store) EnqueueAuthorTask(_ context.Context, authorID, authorName, authorURL string) (bool, error) {
	if authorID == "" {
		return false, fmt.Errorf("author id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorByID[authorID]; ok {
		return false, nil
	}
	id := s.nextID
	s.nextID++
	s.authors[id] = harvest.AuthorTask{
		ID:         id,
		AuthorID:   authorID,
		AuthorName: authorName,
		AuthorURL:  authorURL,
		Status:     harvest.StatusPending,
	}
	s.authorByID[authorID] = id
	return true, nil
}

// EnqueueFileTask adds an acquisition task keyed by resource.
func (s *Store) EnqueueFileTask(_ context.Context, resourceID, isbn, title string) (bool, error) {
	if resourceID == "" {
		return false, fmt.Errorf("resource id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fileByResource[resourceID]; ok {
		return false, nil
	}
	id := s.nextID
	s.nextID++
	s.files[id] = harvest.FileTask{
		ID:         id,
		ResourceID: resourceID,
		ISBN:       isbn,
		Title:      title,
		Status:     harvest.StatusPending,
	}
	s.fileByResource[resourceID] = id
	return true, nil
}

// ListPendingBookTasks returns claimable book tasks oldest first.
func (s *Store) ListPendingBookTasks(_ context.Context, limit int) ([]harvest.BookTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.BookTask
	for _, t := range s.books {
		if claimable(t.Status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return clip(out, limit), nil
}

// ListPendingAuthorTasks returns claimable author tasks oldest first.
func (s *Store) ListPendingAuthorTasks(_ context.Context, limit int) ([]harvest.AuthorTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.AuthorTask
	for _, t := range s.authors {
		if claimable(t.Status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return clip(out, limit), nil
}

// ListPendingFileTasks returns claimable file tasks oldest first.
func (s *Store) ListPendingFileTasks(_ context.Context, limit int) ([]harvest.FileTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.FileTask
	for _, t := range s.files {
		if claimable(t.Status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return clip(out, limit), nil
}

// UpdateBookTask applies a partial update to a book task.
func (s *Store) UpdateBookTask(_ context.Context, id int64, upd harvest.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("invalid task status %q", upd.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.books[id]
	if !ok {
		return fmt.Errorf("book task %d not found", id)
	}
	t.Status = upd.Status
	if upd.Progress != nil {
		t.Progress = *upd.Progress
	}
	if upd.ErrorMessage != nil {
		t.ErrorMessage = *upd.ErrorMessage
	}
	s.books[id] = t
	return nil
}

// UpdateAuthorTask applies a partial update to an author task.
func (s *Store) UpdateAuthorTask(_ context.Context, id int64, upd harvest.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("invalid task status %q", upd.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.authors[id]
	if !ok {
		return fmt.Errorf("author task %d not found", id)
	}
	t.Status = upd.Status
	if upd.ErrorMessage != nil {
		t.ErrorMessage = *upd.ErrorMessage
	}
	s.authors[id] = t
	return nil
}

// UpdateFileTask applies a partial update to a file task.
func (s *Store) UpdateFileTask(_ context.Context, id int64, upd harvest.StatusUpdate) error {
	if !upd.Status.Valid() {
		return fmt.Errorf("invalid task status %q", upd.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file task %d not found", id)
	}
	t.Status = upd.Status
	if upd.ErrorMessage != nil {
		t.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Formats != nil {
		t.Formats = *upd.Formats
	}
	s.files[id] = t
	return nil
}

// BookTask returns a snapshot of the task keyed to the category, for tests.
func (s *Store) BookTask(categoryID string) (harvest.BookTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bookByCategory[categoryID]
	if !ok {
		return harvest.BookTask{}, false
	}
	return s.books[id], true
}

// AuthorTask returns a snapshot of the task keyed to the author, for tests.
func (s *Store) AuthorTask(authorID string) (harvest.AuthorTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.authorByID[authorID]
	if !ok {
		return harvest.AuthorTask{}, false
	}
	return s.authors[id], true
}

// FileTask returns a snapshot of the task keyed to the resource, for tests.
func (s *Store) FileTask(resourceID string) (harvest.FileTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.fileByResource[resourceID]
	if !ok {
		return harvest.FileTask{}, false
	}
	return s.files[id], true
}

func claimable(st harvest.TaskStatus) bool {
	return st == harvest.StatusPending || st == harvest.StatusInProgress
}

func clip[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
