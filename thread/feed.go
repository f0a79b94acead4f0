package thread

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// feedDetailsLayout renders item dates in the absolute form the date
// resolver understands.
const feedDetailsLayout = "01-02-2006, 03:04 PM"

// FeedParser extracts posts from an RSS or Atom syndication of a thread,
// such as vBulletin's external.php feeds. Each item is one post. Feeds are
// not paginated, so FeedParser does not implement PageCounter.
type FeedParser struct {
	// Location converts item timestamps before they are rendered. Nil means
	// the timestamp's own location.
	Location *time.Location
}

// NewFeedParser creates a feed parser.
func NewFeedParser() *FeedParser {
	return &FeedParser{}
}

// Posts returns one RawPost per feed item. Item bodies have their HTML
// markup stripped. Items without a date get empty details.
func (p *FeedParser) Posts(page int, content []byte) ([]RawPost, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	posts := make([]RawPost, 0, len(feed.Items))
	for _, item := range feed.Items {
		body := item.Content
		if body == "" {
			body = item.Description
		}

		posts = append(posts, RawPost{
			Page:    page,
			Body:    stripHTML(body),
			Details: p.details(item),
		})
	}

	return posts, nil
}

func (p *FeedParser) details(item *gofeed.Item) string {
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return ""
	}

	t := *published
	if p.Location != nil {
		t = t.In(p.Location)
	}
	return t.Format(feedDetailsLayout)
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}
