package harvest_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	assetmemory "github.com/jacorycyjin/smart-library-crawler/internal/assets/memory"
	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
	recordmemory "github.com/jacorycyjin/smart-library-crawler/internal/records/memory"
	taskmemory "github.com/jacorycyjin/smart-library-crawler/internal/tasks/memory"
)

func bookDetail(isbn, title string, authors, translators []harvest.Contributor) harvest.BookDetail {
	return harvest.BookDetail{
		Resource: catalog.Resource{
			Title:        title,
			Type:         catalog.ResourceTypeBook,
			ISBN:         isbn,
			SourceOrigin: catalog.OriginDouban,
			SourceURL:    "https://books.example/isbn/" + isbn + "/",
		},
		CoverURL:    "https://img.example/l/" + isbn + ".jpg",
		Authors:     authors,
		Translators: translators,
	}
}

func newBookFixture(t *testing.T, source *stubBookSource) (*harvest.BookOrchestrator, *taskmemory.Store, *recordmemory.Store, *assetmemory.Store) {
	t.Helper()
	tasks := taskmemory.NewStore()
	records := recordmemory.NewStore()
	assets := assetmemory.NewStore()
	o := harvest.NewBookOrchestrator(tasks, records, assets, source,
		&stubImages{}, &seqIDs{}, testBuckets(), nil)
	return o, tasks, records, assets
}

func TestBookRunHarvestsUntilTarget(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{
		candidates: []harvest.BookCandidate{{ISBN: "111"}, {ISBN: "222"}},
		details: map[string]harvest.BookDetail{
			"111": bookDetail("111", "First", []harvest.Contributor{
				{Name: "韩江", DetailURL: "https://books.example/author/1/"},
			}, nil),
			"222": bookDetail("222", "Second", []harvest.Contributor{
				{Name: "韩江", DetailURL: "https://books.example/author/1/"},
			}, []harvest.Contributor{
				{Name: "译者甲"},
			}),
		},
	}
	o, tasks, records, assets := newBookFixture(t, source)
	ctx := context.Background()

	created, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 2)
	require.NoError(t, err)
	require.True(t, created)

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Succeeded: 1}, sum)

	task, ok := tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusCompleted, task.Status)
	require.Equal(t, 2, task.Progress)
	require.Empty(t, task.ErrorMessage)

	refs, err := records.ListResourceRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// Both books carry the category relation and a cover upload.
	for _, ref := range refs {
		require.Equal(t, []string{"cat-1"}, records.CategoryLinks(ref.ResourceID))
		res, ok := records.Resource(ref.ResourceID)
		require.True(t, ok)
		require.Contains(t, res.CoverURL, "memory://library-covers/")

		// Each stored book spawned an acquisition task.
		ft, ok := tasks.FileTask(ref.ResourceID)
		require.True(t, ok)
		require.Equal(t, harvest.StatusPending, ft.Status)
		require.Equal(t, ref.ISBN, ft.ISBN)
	}
	require.Equal(t, 2, assets.Count("library-covers"))

	// The shared author was created once and got one enrichment task.
	authorID, err := records.AuthorIDByName(ctx, "韩江")
	require.NoError(t, err)
	require.NotEmpty(t, authorID)
	at, ok := tasks.AuthorTask(authorID)
	require.True(t, ok)
	require.Equal(t, "https://books.example/author/1/", at.AuthorURL)

	// Translators without a detail URL are stored but not enqueued.
	translatorID, err := records.AuthorIDByName(ctx, "译者甲")
	require.NoError(t, err)
	require.NotEmpty(t, translatorID)
	_, ok = tasks.AuthorTask(translatorID)
	require.False(t, ok)
}

func TestBookRunRoleScopedContributorOrdering(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{
		candidates: []harvest.BookCandidate{{ISBN: "333"}},
		details: map[string]harvest.BookDetail{
			// Nameless entries come from malformed listing rows and must
			// not leave holes in the role ordering.
			"333": bookDetail("333", "Ordered",
				[]harvest.Contributor{{Name: ""}, {Name: "作者一"}, {Name: "作者二"}},
				[]harvest.Contributor{{Name: ""}, {Name: "译者一"}}),
		},
	}
	o, tasks, records, _ := newBookFixture(t, source)
	ctx := context.Background()

	_, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 1)
	require.NoError(t, err)
	_, err = o.Run(ctx, 0)
	require.NoError(t, err)

	refs, err := records.ListResourceRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)

	links := records.AuthorLinks(refs[0].ResourceID)
	require.Len(t, links, 3)

	bySort := map[string]int{}
	for _, l := range links {
		a, ok := records.Author(l.AuthorID)
		require.True(t, ok)
		bySort[string(l.Role)+"/"+a.Name] = l.Sort
	}
	// Authors and translators are sorted independently, both 1-based.
	require.Equal(t, 1, bySort["author/作者一"])
	require.Equal(t, 2, bySort["author/作者二"])
	require.Equal(t, 1, bySort["translator/译者一"])
}

func TestBookRunRepairsRelationsWithoutProgress(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{
		candidates: []harvest.BookCandidate{
			{ISBN: "a1"}, {ISBN: "dup"}, {ISBN: "a2"}, {ISBN: "skip"}, {ISBN: "a3"},
		},
		details: map[string]harvest.BookDetail{
			"a1": bookDetail("a1", "A1", nil, nil),
			"a2": bookDetail("a2", "A2", nil, nil),
			"a3": bookDetail("a3", "A3", nil, nil),
		},
		detailErr: map[string]error{
			"skip": fmt.Errorf("mangled page: %w", harvest.ErrUnparsable),
		},
	}
	o, tasks, records, _ := newBookFixture(t, source)
	ctx := context.Background()

	// The duplicate already exists under another category.
	require.NoError(t, records.CreateResource(ctx, catalog.Resource{
		ResourceID: "existing-1", ISBN: "dup", Title: "Dup",
	}))

	_, err := tasks.EnqueueBookTask(ctx, "cat-9", "历史", 5)
	require.NoError(t, err)

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Succeeded: 1}, sum)

	// Three new books; the repaired duplicate and the unparsable page do not
	// advance progress, so the task stays claimable.
	task, ok := tasks.BookTask("cat-9")
	require.True(t, ok)
	require.Equal(t, harvest.StatusInProgress, task.Status)
	require.Equal(t, 3, task.Progress)

	// The duplicate gained the new category link without a new resource row.
	require.Equal(t, []string{"cat-9"}, records.CategoryLinks("existing-1"))
	refs, err := records.ListResourceRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 4)

	// No acquisition task is spawned for the repaired duplicate.
	_, ok = tasks.FileTask("existing-1")
	require.False(t, ok)
}

func TestBookRunRequeuesOnChallenge(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{
		candidatesErr: fmt.Errorf("status 403: %w", harvest.ErrBlocked),
	}
	o, tasks, _, _ := newBookFixture(t, source)
	ctx := context.Background()

	_, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 3)
	require.NoError(t, err)

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1}, sum)

	task, ok := tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusPending, task.Status)
	require.Equal(t, harvest.BlockedMessage, task.ErrorMessage)

	// A later run with the block lifted picks the task up again and clears
	// the blocked marker.
	source.candidatesErr = nil
	source.candidates = []harvest.BookCandidate{{ISBN: "111"}, {ISBN: "222"}, {ISBN: "333"}}
	source.details = map[string]harvest.BookDetail{
		"111": bookDetail("111", "One", nil, nil),
		"222": bookDetail("222", "Two", nil, nil),
		"333": bookDetail("333", "Three", nil, nil),
	}
	sum, err = o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Succeeded: 1}, sum)

	task, ok = tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusCompleted, task.Status)
	require.Equal(t, 3, task.Progress)
	require.Empty(t, task.ErrorMessage)
}

func TestBookRunSkipsCandidatesWithoutCover(t *testing.T) {
	t.Parallel()

	noCover := bookDetail("nc", "No Cover", nil, nil)
	noCover.CoverURL = ""
	source := &stubBookSource{
		candidates: []harvest.BookCandidate{{ISBN: "nc"}, {ISBN: "ok"}},
		details: map[string]harvest.BookDetail{
			"nc": noCover,
			"ok": bookDetail("ok", "With Cover", nil, nil),
		},
	}
	o, tasks, records, _ := newBookFixture(t, source)
	ctx := context.Background()

	_, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 2)
	require.NoError(t, err)

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Succeeded: 1}, sum)

	refs, err := records.ListResourceRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "ok", refs[0].ISBN)

	task, ok := tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusInProgress, task.Status)
	require.Equal(t, 1, task.Progress)
}

func TestBookRunCommitsProgressOnHardFailure(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{
		candidates: []harvest.BookCandidate{{ISBN: "111"}, {ISBN: "boom"}},
		details: map[string]harvest.BookDetail{
			"111": bookDetail("111", "One", nil, nil),
		},
		detailErr: map[string]error{
			"boom": fmt.Errorf("connection reset"),
		},
	}
	o, tasks, _, _ := newBookFixture(t, source)
	ctx := context.Background()

	_, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 5)
	require.NoError(t, err)

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Failed: 1}, sum)

	// The failure is recorded on the task, but the book stored before the
	// failure stays counted.
	task, ok := tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusFailed, task.Status)
	require.Equal(t, 1, task.Progress)
	require.Contains(t, task.ErrorMessage, "connection reset")
}

func TestBookRunCompletesOverachievedTask(t *testing.T) {
	t.Parallel()

	source := &stubBookSource{}
	o, tasks, _, _ := newBookFixture(t, source)
	ctx := context.Background()

	_, err := tasks.EnqueueBookTask(ctx, "cat-1", "小说", 2)
	require.NoError(t, err)
	two := 2
	require.NoError(t, tasks.UpdateBookTask(ctx, 1, harvest.StatusUpdate{
		Status:   harvest.StatusPending,
		Progress: &two,
	}))

	sum, err := o.Run(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, harvest.Summary{Processed: 1, Succeeded: 1}, sum)

	task, ok := tasks.BookTask("cat-1")
	require.True(t, ok)
	require.Equal(t, harvest.StatusCompleted, task.Status)
	require.Equal(t, 2, task.Progress)
}
