// Package threadmood scrapes a paginated forum thread, scores every post
// against a sentiment lexicon and sums the scores per calendar day.
package threadmood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pevans/threadmood/lexicon"
	"github.com/pevans/threadmood/metrics"
	"github.com/pevans/threadmood/postdate"
	"github.com/pevans/threadmood/report"
	"github.com/pevans/threadmood/scraper"
	"github.com/pevans/threadmood/sentiment"
	"github.com/pevans/threadmood/thread"
	"golang.org/x/time/rate"
)

// Per-post skip warnings after the first few are logged at most this often.
// The run summary still carries the full count.
const (
	skipWarningBurst    = 10
	skipWarningInterval = 5 * time.Second
)

// Re-export types used by callers of Runner
type (
	PostRecord   = report.Record
	AggregateRow = report.Row
)

// DatePolicy decides what happens to a post whose date cannot be resolved.
type DatePolicy string

const (
	// FailOnUnrecognizedDate aborts the run.
	FailOnUnrecognizedDate DatePolicy = "fail"
	// SkipUnrecognizedDate drops the post and counts it in Result.Skipped.
	SkipUnrecognizedDate DatePolicy = "skip"
)

// ParseDatePolicy validates a policy name. An empty name means
// FailOnUnrecognizedDate.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(s) {
	case "", FailOnUnrecognizedDate:
		return FailOnUnrecognizedDate, nil
	case SkipUnrecognizedDate:
		return SkipUnrecognizedDate, nil
	default:
		return "", fmt.Errorf("invalid date policy %q: must be fail or skip", s)
	}
}

// Thread identifies the thread to scrape.
type Thread struct {
	URL string `json:"url"`
}

// Options tune a Runner.
type Options struct {
	// Page requested to discover the page count
	ProbePage int
	// Location in which "Today" and "Yesterday" are interpreted
	Location *time.Location
	// What to do with posts whose date is unrecognized
	OnUnrecognizedDate DatePolicy
	// Order of the aggregated rows
	SortOrder report.SortOrder
}

// DefaultOptions returns the default runner options.
func DefaultOptions() *Options {
	return &Options{
		ProbePage:          scraper.DefaultProbePage,
		Location:           time.Local,
		OnUnrecognizedDate: FailOnUnrecognizedDate,
		SortOrder:          report.Chronological,
	}
}

// Result is the outcome of a run.
type Result struct {
	RunID      uuid.UUID      `json:"run_id"`
	Thread     Thread         `json:"thread"`
	Anchor     postdate.Date  `json:"anchor"`
	Pages      int            `json:"pages"`
	Records    []PostRecord   `json:"-"`
	Skipped    int            `json:"skipped"`
	Rows       []AggregateRow `json:"rows"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Runner walks the pages of a thread one at a time and scores its posts.
type Runner struct {
	fetcher thread.Fetcher
	parser  thread.PageParser
	lexicon *lexicon.Lexicon
	clock   clockwork.Clock
	options Options

	// Progress, when set, is called after each page has been processed.
	Progress func(page, total int)

	skipWarnings *rate.Sometimes
}

// NewRunner creates a runner. A nil clock uses the real clock and nil
// options use DefaultOptions.
func NewRunner(
	fetcher thread.Fetcher,
	parser thread.PageParser,
	lex *lexicon.Lexicon,
	clock clockwork.Clock,
	options *Options,
) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if options == nil {
		options = DefaultOptions()
	}

	opts := *options
	if opts.ProbePage < 1 {
		opts.ProbePage = scraper.DefaultProbePage
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.OnUnrecognizedDate == "" {
		opts.OnUnrecognizedDate = FailOnUnrecognizedDate
	}
	if opts.SortOrder == "" {
		opts.SortOrder = report.Chronological
	}

	return &Runner{
		fetcher: fetcher,
		parser:  parser,
		lexicon: lex,
		clock:   clock,
		options: opts,
		skipWarnings: &rate.Sometimes{
			First:    skipWarningBurst,
			Interval: skipWarningInterval,
		},
	}
}

// Run scrapes every page of t in order, then aggregates the scored posts by
// date. The date anchor for relative timestamps is taken once, when the run
// starts. Any fetch or parse failure aborts the run.
func (r *Runner) Run(ctx context.Context, t Thread) (*Result, error) {
	result, err := r.run(ctx, t)
	if err != nil {
		metrics.Runs.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.Runs.WithLabelValues("succeeded").Inc()
	return result, nil
}

func (r *Runner) run(ctx context.Context, t Thread) (*Result, error) {
	startedAt := r.clock.Now()
	result := &Result{
		RunID:     uuid.New(),
		Thread:    t,
		Anchor:    postdate.FromTime(startedAt.In(r.options.Location)),
		StartedAt: startedAt,
	}
	logger := slog.With("run_id", result.RunID, "thread", t.URL)

	pages, err := r.PageCount(ctx, t)
	if err != nil {
		return nil, err
	}
	result.Pages = pages
	logger.Info("Discovered thread pages", "pages", pages)

	resolver := postdate.NewResolver(result.Anchor)
	for page := 1; page <= pages; page++ {
		records, skipped, err := r.scrapePage(ctx, t, page, resolver)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, records...)
		result.Skipped += skipped

		logger.Info("Scraped page",
			"page", page,
			"total", pages,
			"posts", len(records),
			"skipped", skipped,
		)
		if r.Progress != nil {
			r.Progress(page, pages)
		}
	}

	result.Rows = report.Aggregate(result.Records, r.options.SortOrder)
	result.FinishedAt = r.clock.Now()

	logger.Info("Run complete",
		"posts", len(result.Records),
		"skipped", result.Skipped,
		"dates", len(result.Rows),
	)

	return result, nil
}

// RunToFile runs the pipeline and writes the report to path. Nothing is
// written when the run fails.
func (r *Runner) RunToFile(ctx context.Context, t Thread, path string) (*Result, error) {
	result, err := r.Run(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := report.WriteFile(path, result.Rows); err != nil {
		return nil, err
	}

	return result, nil
}

// PageCount requests an out-of-range page and reads the last page number
// from its pagination control. Threads without a pagination control, and
// parsers that cannot read one, count as a single page.
func (r *Runner) PageCount(ctx context.Context, t Thread) (int, error) {
	counter, ok := r.parser.(thread.PageCounter)
	if !ok {
		return 1, nil
	}

	probeURL, err := thread.PageURL(t.URL, r.options.ProbePage)
	if err != nil {
		return 0, err
	}

	content, err := r.fetcher.Fetch(ctx, probeURL)
	if err != nil {
		return 0, fmt.Errorf("failed to discover page count: %w", err)
	}

	n, found, err := counter.LastPage(content)
	if err != nil {
		return 0, fmt.Errorf("failed to discover page count: %w", err)
	}
	if !found || n < 1 {
		slog.Debug("No pagination control found, assuming a single page", "thread", t.URL)
		return 1, nil
	}

	return n, nil
}

func (r *Runner) scrapePage(
	ctx context.Context,
	t Thread,
	page int,
	resolver *postdate.Resolver,
) ([]PostRecord, int, error) {
	pageURL, err := thread.PageURL(t.URL, page)
	if err != nil {
		return nil, 0, err
	}

	content, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	posts, err := r.parser.Posts(page, content)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse page %d: %w", page, err)
	}

	records := make([]PostRecord, 0, len(posts))
	skipped := 0
	for i, post := range posts {
		d, err := resolver.Resolve(post.Details)
		if err != nil {
			if errors.Is(err, postdate.ErrUnrecognizedFormat) && r.options.OnUnrecognizedDate == SkipUnrecognizedDate {
				r.skipWarnings.Do(func() {
					slog.Warn("Skipping post with unrecognized date",
						"page", page,
						"post", i+1,
						"error", err,
					)
				})
				metrics.PostsSkipped.Inc()
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("page %d post %d: %w", page, i+1, err)
		}

		records = append(records, sentiment.ScorePost(post.Body, d, r.lexicon))
		metrics.PostsScored.Inc()
	}

	return records, skipped, nil
}
