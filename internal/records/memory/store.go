// Package memory provides an in-memory record store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

// AuthorLink is one resource-author relation, exposed for test assertions.
type AuthorLink struct {
	AuthorID string
	Role     catalog.AuthorRole
	Sort     int
}

type tagLink struct {
	TagID  string
	Weight float64
}

// Store keeps bibliographic records in process memory. Dedup lookups and
// duplicate-tolerant relation writes mirror the Postgres store.
type Store struct {
	mu sync.RWMutex

	resources  map[string]catalog.Resource
	authors    map[string]catalog.Author
	categories map[string]catalog.Category
	tags       map[string]catalog.Tag

	authorRels   map[string][]AuthorLink
	categoryRels map[string]map[string]bool
	tagRels      map[string][]tagLink
	files        map[string]map[int]catalog.ResourceFile
}

// NewStore creates an empty in-memory record store.
func NewStore() *Store {
	return &Store{
		resources:    make(map[string]catalog.Resource),
		authors:      make(map[string]catalog.Author),
		categories:   make(map[string]catalog.Category),
		tags:         make(map[string]catalog.Tag),
		authorRels:   make(map[string][]AuthorLink),
		categoryRels: make(map[string]map[string]bool),
		tagRels:      make(map[string][]tagLink),
		files:        make(map[string]map[int]catalog.ResourceFile),
	}
}

// ResourceIDByISBN returns the id of the resource holding the ISBN.
func (s *Store) ResourceIDByISBN(_ context.Context, isbn string) (string, error) {
	if isbn == "" {
		return "", nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, r := range s.resources {
		if r.ISBN == isbn {
			return id, nil
		}
	}
	return "", nil
}

// AuthorIDByName returns the id of the author with the exact name.
func (s *Store) AuthorIDByName(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, a := range s.authors {
		if a.Name == name {
			return id, nil
		}
	}
	return "", nil
}

// CategoryIDByName returns the id of the category with the name under the parent.
func (s *Store) CategoryIDByName(_ context.Context, name, parentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.categories {
		if c.Name == name && c.ParentID == parentID {
			return id, nil
		}
	}
	return "", nil
}

// CreateResource stores a resource record.
func (s *Store) CreateResource(_ context.Context, r catalog.Resource) error {
	if r.ResourceID == "" {
		return fmt.Errorf("resource id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ResourceID]; ok {
		return nil
	}
	s.resources[r.ResourceID] = r
	return nil
}

// CreateAuthor stores an author record.
func (s *Store) CreateAuthor(_ context.Context, a catalog.Author) error {
	if a.AuthorID == "" {
		return fmt.Errorf("author id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authors[a.AuthorID]; ok {
		return nil
	}
	s.authors[a.AuthorID] = a
	return nil
}

// UpdateAuthorDetail merges non-empty fields into an existing author record.
func (s *Store) UpdateAuthorDetail(_ context.Context, a catalog.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.authors[a.AuthorID]
	if !ok {
		return fmt.Errorf("author %s not found", a.AuthorID)
	}
	if a.OriginalName != "" {
		cur.OriginalName = a.OriginalName
	}
	if a.Country != "" {
		cur.Country = a.Country
	}
	if a.PhotoURL != "" {
		cur.PhotoURL = a.PhotoURL
	}
	if a.Description != "" {
		cur.Description = a.Description
	}
	if a.SourceURL != "" {
		cur.SourceURL = a.SourceURL
	}
	s.authors[a.AuthorID] = cur
	return nil
}

// UpsertCategory stores or refreshes a category node.
func (s *Store) UpsertCategory(_ context.Context, c catalog.Category) error {
	if c.CategoryID == "" {
		return fmt.Errorf("category id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.CategoryID] = c
	return nil
}

// EnsureTag stores the tag when its name is unknown and returns the canonical id.
func (s *Store) EnsureTag(_ context.Context, t catalog.Tag) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("tag name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.tags {
		if existing.Name == t.Name {
			return id, nil
		}
	}
	if t.TagID == "" {
		return "", fmt.Errorf("tag id is required")
	}
	s.tags[t.TagID] = t
	return t.TagID, nil
}

// AttachAuthor links an author to a resource; duplicates are no-ops.
func (s *Store) AttachAuthor(_ context.Context, resourceID, authorID string, role catalog.AuthorRole, sortOrder int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.authorRels[resourceID] {
		if l.AuthorID == authorID && l.Role == role {
			return nil
		}
	}
	s.authorRels[resourceID] = append(s.authorRels[resourceID], AuthorLink{
		AuthorID: authorID, Role: role, Sort: sortOrder,
	})
	return nil
}

// AttachCategory links a resource into a category; duplicates are no-ops.
func (s *Store) AttachCategory(_ context.Context, resourceID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.categoryRels[resourceID]
	if !ok {
		set = make(map[string]bool)
		s.categoryRels[resourceID] = set
	}
	set[categoryID] = true
	return nil
}

// AttachTag links a tag to a resource; duplicates are no-ops.
func (s *Store) AttachTag(_ context.Context, resourceID, tagID string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.tagRels[resourceID] {
		if l.TagID == tagID {
			return nil
		}
	}
	s.tagRels[resourceID] = append(s.tagRels[resourceID], tagLink{TagID: tagID, Weight: weight})
	return nil
}

// FileExists reports whether a file of the format is stored for the resource.
func (s *Store) FileExists(_ context.Context, resourceID string, format harvest.FileFormat) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[resourceID][int(format)]
	return ok, nil
}

// CreateFile stores a file record, replacing an earlier row of the same format.
func (s *Store) CreateFile(_ context.Context, f catalog.ResourceFile) error {
	if f.ResourceID == "" {
		return fmt.Errorf("resource id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byType, ok := s.files[f.ResourceID]
	if !ok {
		byType = make(map[int]catalog.ResourceFile)
		s.files[f.ResourceID] = byType
	}
	byType[f.FileType] = f
	return nil
}

// ListLeafCategories returns the level-2 category nodes ordered by sort.
func (s *Store) ListLeafCategories(_ context.Context) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cats []catalog.Category
	for _, c := range s.categories {
		if c.Level == 2 {
			cats = append(cats, c)
		}
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].SortOrder != cats[j].SortOrder {
			return cats[i].SortOrder < cats[j].SortOrder
		}
		return cats[i].CategoryID < cats[j].CategoryID
	})
	return cats, nil
}

// ListResourceRefs returns a handle for every stored resource.
func (s *Store) ListResourceRefs(_ context.Context) ([]catalog.ResourceRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []catalog.ResourceRef
	for id, r := range s.resources {
		refs = append(refs, catalog.ResourceRef{ResourceID: id, ISBN: r.ISBN, Title: r.Title})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ResourceID < refs[j].ResourceID })
	return refs, nil
}

// Resource returns a stored resource snapshot, for tests.
func (s *Store) Resource(id string) (catalog.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	return r, ok
}

// Author returns a stored author snapshot, for tests.
func (s *Store) Author(id string) (catalog.Author, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authors[id]
	return a, ok
}

// AuthorLinks returns the author relations attached to a resource, for tests.
func (s *Store) AuthorLinks(resourceID string) []AuthorLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuthorLink(nil), s.authorRels[resourceID]...)
}

// CategoryLinks returns the category ids attached to a resource, for tests.
func (s *Store) CategoryLinks(resourceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id := range s.categoryRels[resourceID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TagNames returns the tag names attached to a resource, for tests.
func (s *Store) TagNames(resourceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, l := range s.tagRels[resourceID] {
		if t, ok := s.tags[l.TagID]; ok {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return out
}

// File returns a stored file snapshot, for tests.
func (s *Store) File(resourceID string, format harvest.FileFormat) (catalog.ResourceFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[resourceID][int(format)]
	return f, ok
}
