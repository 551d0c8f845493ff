package douban

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
)

func searchURLFor(name string) string {
	return testConfig().SearchURL + "?q=" + url.QueryEscape(name)
}

func TestSearchPrefersBookAuthorPage(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<a href="https://www.douban.com/link2/?url=https%3A%2F%2Fwww.example.com%2Fpersonage%2F27246877%2F&query=x">韩江</a>
<a href="https://book.douban.com/author/4487243/">韩江 作品</a>
<a href="https://www.example.com/group/1/">无关小组</a>
</body></html>`
	fetch := &stubFetcher{pages: map[string]string{searchURLFor("韩江"): html}}
	source := NewAuthorSource(fetch, testConfig(), nil)

	found, err := source.Search(context.Background(), "韩江")
	require.NoError(t, err)
	require.Equal(t, "https://book.douban.com/author/4487243/", found)
}

func TestSearchUnwrapsRedirectLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<a href="https://www.douban.com/link2/?url=https%3A%2F%2Fwww.example.com%2Fpersonage%2F27246877%2F&query=x">韩江</a>
</body></html>`
	fetch := &stubFetcher{pages: map[string]string{searchURLFor("韩江"): html}}
	source := NewAuthorSource(fetch, testConfig(), nil)

	found, err := source.Search(context.Background(), "韩江")
	require.NoError(t, err)
	require.Equal(t, "https://www.example.com/personage/27246877/", found)
}

func TestSearchReportsNotFound(t *testing.T) {
	t.Parallel()

	html := `<html><body><a href="https://www.example.com/group/1/">无关小组</a></body></html>`
	fetch := &stubFetcher{pages: map[string]string{searchURLFor("无名氏"): html}}
	source := NewAuthorSource(fetch, testConfig(), nil)

	_, err := source.Search(context.Background(), "无名氏")
	require.ErrorIs(t, err, harvest.ErrNotFound)
}

const authorPageHTML = `<html><body>
<div id="content">
  <div class="article">
    <div class="pic"><img src="https://img.example/view/personage/raw/public/photo.jpg"></div>
    <div class="info">性别: 女
原名: 한강
国籍: 韩国
</div>
  </div>
</div>
<div id="intro"><div class="bd"><span class="all">韩江，韩国小说家，出生于光州，毕业于延世大学国文系，亚洲首位布克国际奖得主。</span></div></div>
</body></html>`

func TestDetailExtractsBiography(t *testing.T) {
	t.Parallel()

	pageURL := "https://www.example.com/personage/27246877/"
	fetch := &stubFetcher{pages: map[string]string{pageURL: authorPageHTML}}
	source := NewAuthorSource(fetch, testConfig(), nil)

	detail, err := source.Detail(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "한강", detail.OriginalName)
	require.Equal(t, "韩国", detail.Country)
	require.Contains(t, detail.Description, "韩国小说家")
	require.Equal(t, "https://img.example/view/personage/raw/public/photo.jpg", detail.PhotoURL)
	require.Equal(t, pageURL, detail.SourceURL)
}

func TestDetailFollowsAliasRedirect(t *testing.T) {
	t.Parallel()

	aliasURL := testBase + "/author/4487243/"
	canonical := "https://www.example.com/personage/27246877/"
	fetch := &stubFetcher{
		pages:     map[string]string{aliasURL: authorPageHTML},
		redirects: map[string]string{aliasURL: canonical},
	}
	source := NewAuthorSource(fetch, testConfig(), nil)

	// Relative alias paths resolve against the catalog base URL.
	detail, err := source.Detail(context.Background(), "/author/4487243/")
	require.NoError(t, err)
	require.Equal(t, canonical, detail.SourceURL)
}

func TestDetailRejectsUnredirectedAlias(t *testing.T) {
	t.Parallel()

	aliasURL := testBase + "/author/4487243/"
	fetch := &stubFetcher{
		pages: map[string]string{aliasURL: authorPageHTML},
	}
	source := NewAuthorSource(fetch, testConfig(), nil)

	_, err := source.Detail(context.Background(), aliasURL)
	require.ErrorIs(t, err, harvest.ErrUnparsable)
}

func TestDetailRejectsNonAuthorLanding(t *testing.T) {
	t.Parallel()

	pageURL := testBase + "/author/404777/"
	fetch := &stubFetcher{
		pages:     map[string]string{pageURL: "<html><body>home</body></html>"},
		redirects: map[string]string{pageURL: "https://www.example.com/"},
	}
	source := NewAuthorSource(fetch, testConfig(), nil)

	_, err := source.Detail(context.Background(), pageURL)
	require.ErrorIs(t, err, harvest.ErrUnparsable)
}

func TestDetailSkipsPlaceholderAvatar(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<div id="content">
  <div class="pic"><img src="https://img.example/icon/user_normal.jpg"></div>
  <div class="info">国籍: 中国
</div>
</div>
<div id="intro"><div class="bd">刘慈欣，中国科幻作家，雨果奖长篇小说奖得主，代表作三体三部曲。</div></div>
</body></html>`
	pageURL := "https://www.example.com/personage/27253893/"
	fetch := &stubFetcher{pages: map[string]string{pageURL: html}}
	source := NewAuthorSource(fetch, testConfig(), nil)

	detail, err := source.Detail(context.Background(), pageURL)
	require.NoError(t, err)
	require.Empty(t, detail.PhotoURL)
	require.Equal(t, "中国", detail.Country)
}
