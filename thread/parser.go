package thread

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/threadmood/scraper"
)

// ErrParse is returned when page content cannot be parsed at all. A page
// that parses but holds no posts is not an error.
var ErrParse = errors.New("failed to parse page")

// RawPost is a post as found on a page, before dating and scoring.
type RawPost struct {
	Page    int
	Body    string
	Details string
}

// PageParser extracts posts from the raw content of one thread page.
type PageParser interface {
	Posts(page int, content []byte) ([]RawPost, error)
}

// PageCounter is implemented by parsers that can read a thread's page count
// from its pagination control. ok is false when the page has none.
type PageCounter interface {
	LastPage(content []byte) (n int, ok bool, err error)
}

// NewParser returns the parser for the configured thread format. loc is
// used by the feed parser to render item dates and may be nil.
func NewParser(config *scraper.ThreadConfig, loc *time.Location) (PageParser, error) {
	if config == nil {
		config = scraper.NewThreadConfig()
	}

	switch config.Format {
	case scraper.FormatHTML, "":
		return NewSelectorParser(config), nil
	case scraper.FormatFeed:
		return &FeedParser{Location: loc}, nil
	default:
		return nil, fmt.Errorf("unsupported thread format: %s", config.Format)
	}
}

// SelectorParser extracts posts from HTML using CSS selectors.
type SelectorParser struct {
	config scraper.ThreadConfig
}

// NewSelectorParser creates a parser for the given layout.
func NewSelectorParser(config *scraper.ThreadConfig) *SelectorParser {
	return &SelectorParser{config: *config}
}

// Posts returns one RawPost per post container on the page, in page order.
// A container without a body yields an empty body; one without a details
// block yields empty details.
func (p *SelectorParser) Posts(page int, content []byte) ([]RawPost, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	posts := []RawPost{}
	doc.Find(p.config.PostSelector).Each(func(i int, s *goquery.Selection) {
		posts = append(posts, RawPost{
			Page:    page,
			Body:    s.Find(p.config.BodySelector).First().Text(),
			Details: normalizeSpace(s.Find(p.config.DetailsSelector).First().Text()),
		})
	})

	return posts, nil
}

// LastPage reads the current-page indicator of the pagination control.
func (p *SelectorParser) LastPage(content []byte) (int, bool, error) {
	if p.config.PaginationSelector == "" {
		return 0, false, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrParse, err)
	}

	sel := doc.Find(p.config.PaginationSelector).First()
	if sel.Length() == 0 {
		return 0, false, nil
	}

	text := strings.TrimSpace(sel.Text())
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false, fmt.Errorf("%w: pagination indicator %q is not a number", ErrParse, text)
	}

	return n, true, nil
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
