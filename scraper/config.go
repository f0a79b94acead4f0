package scraper

import (
	"errors"
	"fmt"
)

// Thread formats understood by the page parsers.
const (
	FormatHTML = "html"
	FormatFeed = "feed"
)

// DefaultProbePage is requested to discover the page count. Forums clamp an
// out-of-range page to the last one and mark it as current.
const DefaultProbePage = 100000

// ThreadConfig describes how posts are laid out on a forum thread page.
type ThreadConfig struct {
	Format             string `json:"format" yaml:"format"` // "html" or "feed"
	PostSelector       string `json:"post_selector" yaml:"post_selector"`
	BodySelector       string `json:"body_selector" yaml:"body_selector"`
	DetailsSelector    string `json:"details_selector" yaml:"details_selector"`
	PaginationSelector string `json:"pagination_selector,omitempty" yaml:"pagination_selector"`
	ProbePage          int    `json:"probe_page" yaml:"probe_page"`
}

// NewThreadConfig returns the layout used by vBulletin-style forums.
func NewThreadConfig() *ThreadConfig {
	return &ThreadConfig{
		Format:             FormatHTML,
		PostSelector:       "div.postbit.alt2.clearfix",
		BodySelector:       "div.post",
		DetailsSelector:    "div.postbit-details",
		PaginationSelector: "li.current",
		ProbePage:          DefaultProbePage,
	}
}

// Validate checks that the selectors needed for the configured format are
// present.
func (c *ThreadConfig) Validate() error {
	switch c.Format {
	case FormatHTML:
		if c.PostSelector == "" {
			return errors.New("post_selector is required")
		}
		if c.BodySelector == "" {
			return errors.New("body_selector is required")
		}
		if c.DetailsSelector == "" {
			return errors.New("details_selector is required")
		}
	case FormatFeed:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", FormatHTML, FormatFeed, c.Format)
	}

	if c.ProbePage < 1 {
		return fmt.Errorf("probe_page must be at least 1, got %d", c.ProbePage)
	}

	return nil
}
