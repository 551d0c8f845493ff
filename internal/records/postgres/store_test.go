package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/jacorycyjin/smart-library-crawler/internal/catalog"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return mock, store
}

func TestResourceIDByISBNReturnsEmptyOnMiss(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT resource_id FROM resource").
		WithArgs("9787555299486").
		WillReturnError(pgx.ErrNoRows)

	id, err := store.ResourceIDByISBN(context.Background(), "9787555299486")
	require.NoError(t, err)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceIDByISBNSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	id, err := store.ResourceIDByISBN(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorIDByNameReturnsHit(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT author_id FROM author").
		WithArgs("韩江").
		WillReturnRows(pgxmock.NewRows([]string{"author_id"}).AddRow("auth-1"))

	id, err := store.AuthorIDByName(context.Background(), "韩江")
	require.NoError(t, err)
	require.Equal(t, "auth-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateResourceInsertsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	r := catalog.Resource{
		ResourceID:   "res-1",
		Title:        "素食者",
		ISBN:         "9787555299486",
		Publisher:    "磨铁图书",
		PubDate:      "2021-09-01",
		AuthorName:   "韩江",
		SourceOrigin: catalog.OriginDouban,
		SourceURL:    "https://books.example/isbn/9787555299486/",
		SourceScore:  8.6,
	}
	mock.ExpectExec("INSERT INTO resource").
		WithArgs(
			r.ResourceID, r.Title, r.SubTitle, r.Summary, r.CoverURL, r.Type, r.ISBN,
			r.Publisher, r.PubDate, r.PageCount, r.Price, r.AuthorName, r.TranslatorName,
			int(r.SourceOrigin), r.SourceURL, r.SourceScore,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateResource(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAuthorDetailReportsMissingRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectExec("UPDATE author SET").
		WithArgs("auth-404", "", "", "", "bio", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateAuthorDetail(context.Background(), catalog.Author{
		AuthorID:    "auth-404",
		Description: "bio",
	})
	require.ErrorContains(t, err, "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTagReturnsExistingID(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT tag_id FROM tag").
		WithArgs("韩国文学").
		WillReturnRows(pgxmock.NewRows([]string{"tag_id"}).AddRow("tag-1"))

	id, err := store.EnsureTag(context.Background(), catalog.Tag{TagID: "tag-new", Name: "韩国文学"})
	require.NoError(t, err)
	require.Equal(t, "tag-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTagInsertsAndRereadsWinner(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT tag_id FROM tag").
		WithArgs("小说").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO tag").
		WithArgs("tag-new", "小说").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT tag_id FROM tag").
		WithArgs("小说").
		WillReturnRows(pgxmock.NewRows([]string{"tag_id"}).AddRow("tag-new"))

	id, err := store.EnsureTag(context.Background(), catalog.Tag{TagID: "tag-new", Name: "小说"})
	require.NoError(t, err)
	require.Equal(t, "tag-new", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachAuthorInsertsRelation(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO resource_author_rel").
		WithArgs("res-1", "auth-1", "translator", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.AttachAuthor(context.Background(), "res-1", "auth-1", catalog.RoleTranslator, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileExistsChecksFormat(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("res-1", int(harvest.FormatEPUB)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.FileExists(context.Background(), "res-1", harvest.FormatEPUB)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFileUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	mock.ExpectExec("INSERT INTO resource_file").
		WithArgs("res-1", int(harvest.FormatPDF), "https://cdn.example/f.pdf", int64(1024)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateFile(context.Background(), catalog.ResourceFile{
		ResourceID: "res-1",
		FileType:   int(harvest.FormatPDF),
		FileURL:    "https://cdn.example/f.pdf",
		FileSize:   1024,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLeafCategoriesScansRows(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	rows := pgxmock.NewRows([]string{"category_id", "name", "parent_id", "level", "sort_order"}).
		AddRow("cat-11", "外国文学", "cat-1", 2, 0).
		AddRow("cat-12", "中国文学", "cat-1", 2, 1)

	mock.ExpectQuery("SELECT (.+) FROM category").
		WillReturnRows(rows)

	cats, err := store.ListLeafCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	require.Equal(t, "外国文学", cats[0].Name)
	require.Equal(t, 2, cats[0].Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListResourceRefsScansRows(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)

	rows := pgxmock.NewRows([]string{"resource_id", "isbn", "title"}).
		AddRow("res-1", "9787555299486", "素食者")

	mock.ExpectQuery("SELECT (.+) FROM resource").
		WillReturnRows(rows)

	refs, err := store.ListResourceRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "9787555299486", refs[0].ISBN)
	require.NoError(t, mock.ExpectationsWereMet())
}
