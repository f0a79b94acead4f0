package thread

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pevans/threadmood/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forumPage renders a vBulletin-style thread page
func forumPage(current int, posts ...[2]string) []byte {
	var b strings.Builder
	b.WriteString("<html><body>")
	if current > 0 {
		b.WriteString(`<div class="pagenav"><ul>`)
		b.WriteString(`<li><a href="?page=1">1</a></li>`)
		fmt.Fprintf(&b, `<li class="current">%d</li>`, current)
		b.WriteString(`</ul></div>`)
	}
	for _, post := range posts {
		b.WriteString(`<div class="postbit alt2 clearfix">`)
		fmt.Fprintf(&b, `<div class="postbit-details">%s</div>`, post[0])
		fmt.Fprintf(&b, `<div class="post">%s</div>`, post[1])
		b.WriteString(`</div>`)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

// TestSelectorParser_Posts verifies body and details extraction
func TestSelectorParser_Posts(t *testing.T) {
	content := forumPage(0,
		[2]string{"10-04-2015, 09:00 AM", "this is great"},
		[2]string{"Today, 10:30 PM", "this is <b>bad</b> bad"},
	)

	posts, err := NewSelectorParser(scraper.NewThreadConfig()).Posts(3, content)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, RawPost{Page: 3, Body: "this is great", Details: "10-04-2015, 09:00 AM"}, posts[0])
	assert.Equal(t, "this is bad bad", posts[1].Body)
	assert.Equal(t, "Today, 10:30 PM", posts[1].Details)
}

// TestSelectorParser_NormalizesDetailsWhitespace verifies multi-line details
func TestSelectorParser_NormalizesDetailsWhitespace(t *testing.T) {
	content := forumPage(0, [2]string{"\n  #4\n  10-04-2015,\n 09:00 AM\n", "text"})

	posts, err := NewSelectorParser(scraper.NewThreadConfig()).Posts(1, content)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "#4 10-04-2015, 09:00 AM", posts[0].Details)
}

// TestSelectorParser_NoPosts verifies an empty page is not an error
func TestSelectorParser_NoPosts(t *testing.T) {
	posts, err := NewSelectorParser(scraper.NewThreadConfig()).Posts(1, []byte("<html><body><p>nothing</p></body></html>"))
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

// TestSelectorParser_ExactClassMatch verifies unrelated postbits are ignored
func TestSelectorParser_ExactClassMatch(t *testing.T) {
	content := []byte(`<html><body>
		<div class="postbit clearfix"><div class="post">ignored</div></div>
		<div class="postbit alt2 clearfix"><div class="post">kept</div></div>
	</body></html>`)

	posts, err := NewSelectorParser(scraper.NewThreadConfig()).Posts(1, content)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "kept", posts[0].Body)
	assert.Empty(t, posts[0].Details, "missing details block should give empty details")
}

// TestSelectorParser_CustomSelectors verifies configurable layouts
func TestSelectorParser_CustomSelectors(t *testing.T) {
	config := &scraper.ThreadConfig{
		Format:          scraper.FormatHTML,
		PostSelector:    "article.message",
		BodySelector:    ".message-body",
		DetailsSelector: "time",
		ProbePage:       1,
	}
	content := []byte(`<html><body>
		<article class="message"><time>Yesterday, 08:00 AM</time><div class="message-body">hello</div></article>
	</body></html>`)

	posts, err := NewSelectorParser(config).Posts(1, content)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].Body)
	assert.Equal(t, "Yesterday, 08:00 AM", posts[0].Details)
}

// TestSelectorParser_LastPage verifies pagination discovery
func TestSelectorParser_LastPage(t *testing.T) {
	parser := NewSelectorParser(scraper.NewThreadConfig())

	n, ok, err := parser.LastPage(forumPage(42))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok, err = parser.LastPage(forumPage(0))
	require.NoError(t, err)
	assert.False(t, ok, "page without pagination control")
}

// TestSelectorParser_LastPageNotNumeric verifies malformed indicators
func TestSelectorParser_LastPageNotNumeric(t *testing.T) {
	parser := NewSelectorParser(scraper.NewThreadConfig())

	_, _, err := parser.LastPage([]byte(`<ul><li class="current">last</li></ul>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

// TestSelectorParser_LastPageWithoutSelector verifies disabled discovery
func TestSelectorParser_LastPageWithoutSelector(t *testing.T) {
	config := scraper.NewThreadConfig()
	config.PaginationSelector = ""

	_, ok, err := NewSelectorParser(config).LastPage(forumPage(5))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewParser(t *testing.T) {
	parser, err := NewParser(scraper.NewThreadConfig(), nil)
	require.NoError(t, err)
	_, isCounter := parser.(PageCounter)
	assert.True(t, isCounter, "HTML parser should discover pages")

	feedConfig := scraper.NewThreadConfig()
	feedConfig.Format = scraper.FormatFeed
	parser, err = NewParser(feedConfig, time.UTC)
	require.NoError(t, err)
	_, isCounter = parser.(PageCounter)
	assert.False(t, isCounter, "feed parser should not discover pages")

	badConfig := scraper.NewThreadConfig()
	badConfig.Format = "pdf"
	_, err = NewParser(badConfig, nil)
	assert.Error(t, err)
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		page int
	}{
		{"existing query", "http://www.neogaf.com/forum/showthread.php?t=1120872", 3},
		{"no query", "https://forum.example.com/threads/42", 1},
		{"replaces page", "http://example.com/showthread.php?t=1&page=9", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PageURL(tt.base, tt.page)
			require.NoError(t, err)

			parsed, err := url.Parse(got)
			require.NoError(t, err)
			base, _ := url.Parse(tt.base)

			assert.Equal(t, base.Host, parsed.Host)
			assert.Equal(t, base.Path, parsed.Path)
			assert.Equal(t, []string{fmt.Sprint(tt.page)}, parsed.Query()["page"])
			for key, values := range base.Query() {
				if key != "page" {
					assert.Equal(t, values, parsed.Query()[key])
				}
			}
		})
	}
}

func TestPageURL_Invalid(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com/thread", "not a url", "http://"} {
		_, err := PageURL(base, 1)
		assert.Error(t, err, "base %q", base)
	}
}
