package threadmood

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pevans/threadmood/lexicon"
	"github.com/pevans/threadmood/postdate"
	"github.com/pevans/threadmood/report"
	"github.com/pevans/threadmood/scraper"
	"github.com/pevans/threadmood/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testThreadURL = "http://forum.example.com/showthread.php?t=1120872"

// fakeFetcher serves canned pages keyed by URL and records every request
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string][]byte
	failures map[string]error
	requests []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    make(map[string][]byte),
		failures: make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, url)
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	if content, ok := f.pages[url]; ok {
		return content, nil
	}
	return nil, &thread.FetchError{URL: url, StatusCode: 404}
}

// setPage registers content for page n of the test thread
func (f *fakeFetcher) setPage(t *testing.T, n int, content []byte) {
	t.Helper()
	f.pages[pageURL(t, n)] = content
}

func pageURL(t *testing.T, n int) string {
	t.Helper()
	u, err := thread.PageURL(testThreadURL, n)
	require.NoError(t, err)
	return u
}

// forumPage renders a thread page with an optional pagination control and
// posts given as (details, body) pairs
func forumPage(current int, posts ...[2]string) []byte {
	var b strings.Builder
	b.WriteString("<html><body>")
	if current > 0 {
		fmt.Fprintf(&b, `<ul class="pagination"><li class="current">%d</li></ul>`, current)
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

func testLexicon() *lexicon.Lexicon {
	return lexicon.New(map[string]float64{
		"great": 1,
		"bad":   -1,
		"love":  2,
	})
}

// newTestRunner builds a runner whose clock reads 2024-06-01 12:00 UTC
func newTestRunner(fetcher thread.Fetcher, opts *Options) *Runner {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.Location = time.UTC

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))
	return NewRunner(fetcher, thread.NewSelectorParser(scraper.NewThreadConfig()), testLexicon(), clock, opts)
}

func date(m time.Month, d, y int) postdate.Date {
	return postdate.Date{Year: y, Month: m, Day: d}
}

// TestRun_FetchesEveryPageOnceInOrder verifies pagination after discovery
func TestRun_FetchesEveryPageOnceInOrder(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(3))
	fetcher.setPage(t, 1, forumPage(1, [2]string{"10-04-2015, 09:00 AM", "great"}))
	fetcher.setPage(t, 2, forumPage(2, [2]string{"10-05-2015, 09:00 AM", "bad"}))
	fetcher.setPage(t, 3, forumPage(3, [2]string{"10-06-2015, 09:00 AM", "love"}))

	result, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, []string{
		pageURL(t, scraper.DefaultProbePage),
		pageURL(t, 1),
		pageURL(t, 2),
		pageURL(t, 3),
	}, fetcher.requests)
	assert.Equal(t, 3, result.Pages)
	assert.Len(t, result.Records, 3)
	assert.Equal(t, 3, report.TotalPosts(result.Rows))
}

// TestRun_EndToEndScore verifies scores sum per date
func TestRun_EndToEndScore(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1,
		[2]string{"10-04-2015, 09:00 AM", "this is great"},
		[2]string{"10-04-2015, 10:00 PM", "this is bad bad"},
	))

	result, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, report.Row{Date: date(time.October, 4, 2015), Score: -1.0, Posts: 2}, result.Rows[0])
	assert.Equal(t, 0, result.Skipped)
}

// TestRun_RelativeDates verifies Today and Yesterday resolve against the clock
func TestRun_RelativeDates(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1,
		[2]string{"Yesterday, 11:59 PM", "bad"},
		[2]string{"Today, 08:15 AM", "great great"},
	))

	result, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, date(time.June, 1, 2024), result.Anchor)
	assert.Equal(t, []report.Row{
		{Date: date(time.May, 31, 2024), Score: -1, Posts: 1},
		{Date: date(time.June, 1, 2024), Score: 2, Posts: 1},
	}, result.Rows)
}

// TestRun_AnchorUsesLocation verifies the anchor date follows the timezone
func TestRun_AnchorUsesLocation(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1, [2]string{"Today, 08:15 AM", "great"}))

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 2, 0, 0, 0, time.UTC))
	opts := DefaultOptions()
	opts.Location = time.FixedZone("PDT", -7*60*60)

	runner := NewRunner(fetcher, thread.NewSelectorParser(scraper.NewThreadConfig()), testLexicon(), clock, opts)
	result, err := runner.Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, date(time.May, 31, 2024), result.Anchor)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, date(time.May, 31, 2024), result.Rows[0].Date)
}

// TestRun_NoPaginationControl verifies a thread without one has one page
func TestRun_NoPaginationControl(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(0))
	fetcher.setPage(t, 1, forumPage(0, [2]string{"10-04-2015, 09:00 AM", "great"}))

	result, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, []string{pageURL(t, scraper.DefaultProbePage), pageURL(t, 1)}, fetcher.requests)
}

// TestRun_EmptyThread verifies a thread with no posts gives no rows
func TestRun_EmptyThread(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(0))
	fetcher.setPage(t, 1, forumPage(0))

	result, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
}

// TestRun_UnrecognizedDateFails verifies the default date policy
func TestRun_UnrecognizedDateFails(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1,
		[2]string{"10-04-2015, 09:00 AM", "great"},
		[2]string{"Last Tuesday", "bad"},
	))

	_, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.Error(t, err)
	assert.ErrorIs(t, err, postdate.ErrUnrecognizedFormat)
}

// TestRun_UnrecognizedDateSkipped verifies the skip policy
func TestRun_UnrecognizedDateSkipped(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1,
		[2]string{"10-04-2015, 09:00 AM", "great"},
		[2]string{"Last Tuesday", "bad"},
	))

	opts := DefaultOptions()
	opts.OnUnrecognizedDate = SkipUnrecognizedDate

	result, err := newTestRunner(fetcher, opts).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []report.Row{{Date: date(time.October, 4, 2015), Score: 1, Posts: 1}}, result.Rows)
}

// TestRun_SkipWarningsThrottled verifies a burst of skipped posts does not
// flood the log
func TestRun_SkipWarningsThrottled(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	posts := make([][2]string, 15)
	for i := range posts {
		posts[i] = [2]string{"Last Tuesday", "great"}
	}

	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1, posts...))

	opts := DefaultOptions()
	opts.OnUnrecognizedDate = SkipUnrecognizedDate

	result, err := newTestRunner(fetcher, opts).Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, 15, result.Skipped)
	assert.Equal(t, skipWarningBurst, strings.Count(buf.String(), "Skipping post"))
}

// TestRun_NetworkErrorAborts verifies a failed page aborts the whole run
func TestRun_NetworkErrorAborts(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(3))
	fetcher.setPage(t, 1, forumPage(1, [2]string{"10-04-2015, 09:00 AM", "great"}))
	fetcher.failures[pageURL(t, 2)] = &thread.FetchError{URL: pageURL(t, 2), Err: errors.New("connection reset")}
	fetcher.setPage(t, 3, forumPage(3, [2]string{"10-06-2015, 09:00 AM", "love"}))

	out := filepath.Join(t.TempDir(), "out.csv")
	_, err := newTestRunner(fetcher, nil).RunToFile(context.Background(), Thread{URL: testThreadURL}, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, thread.ErrNetwork)

	assert.NotContains(t, fetcher.requests, pageURL(t, 3), "should stop at the failed page")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "failed run should not write a report")
}

// TestRun_ProbeFailure verifies a failed page count discovery aborts
func TestRun_ProbeFailure(t *testing.T) {
	fetcher := newFakeFetcher()

	_, err := newTestRunner(fetcher, nil).Run(context.Background(), Thread{URL: testThreadURL})
	require.Error(t, err)
	assert.ErrorIs(t, err, thread.ErrNetwork)
	assert.Len(t, fetcher.requests, 1)
}

// TestRun_InvalidThreadURL verifies the thread URL is validated
func TestRun_InvalidThreadURL(t *testing.T) {
	_, err := newTestRunner(newFakeFetcher(), nil).Run(context.Background(), Thread{URL: "not a url"})
	assert.Error(t, err)
}

// TestRun_Progress verifies the progress callback sees every page
func TestRun_Progress(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(2))
	fetcher.setPage(t, 1, forumPage(1))
	fetcher.setPage(t, 2, forumPage(2))

	var seen []string
	runner := newTestRunner(fetcher, nil)
	runner.Progress = func(page, total int) {
		seen = append(seen, fmt.Sprintf("%d/%d", page, total))
	}

	_, err := runner.Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)
	assert.Equal(t, []string{"1/2", "2/2"}, seen)
}

// TestRun_ParserWithoutPageCounter verifies single-document sources skip the probe
func TestRun_ParserWithoutPageCounter(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><description>great</description><pubDate>Sun, 04 Oct 2015 21:15:00 GMT</pubDate></item>
</channel></rss>`

	fetcher := newFakeFetcher()
	fetcher.setPage(t, 1, []byte(feed))

	clock := clockwork.NewFakeClockAt(time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC))
	runner := NewRunner(fetcher, &thread.FeedParser{Location: time.UTC}, testLexicon(), clock, nil)

	result, err := runner.Run(context.Background(), Thread{URL: testThreadURL})
	require.NoError(t, err)

	assert.Equal(t, []string{pageURL(t, 1)}, fetcher.requests)
	assert.Equal(t, []report.Row{{Date: date(time.October, 4, 2015), Score: 1, Posts: 1}}, result.Rows)
}

// TestRunToFile verifies the report is written
func TestRunToFile(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.setPage(t, scraper.DefaultProbePage, forumPage(1))
	fetcher.setPage(t, 1, forumPage(1,
		[2]string{"10-04-2015, 09:00 AM", "this is great"},
		[2]string{"10-04-2015, 10:00 PM", "this is bad bad"},
	))

	out := filepath.Join(t.TempDir(), "reports", "halo.csv")
	_, err := newTestRunner(fetcher, nil).RunToFile(context.Background(), Thread{URL: testThreadURL}, out)
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "date,score,posts\n10-04-2015,-1,2\n", string(content))
}

func TestParseDatePolicy(t *testing.T) {
	policy, err := ParseDatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailOnUnrecognizedDate, policy)

	policy, err = ParseDatePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipUnrecognizedDate, policy)

	_, err = ParseDatePolicy("ignore")
	assert.Error(t, err)
}

func TestNewRunner_Defaults(t *testing.T) {
	runner := NewRunner(newFakeFetcher(), thread.NewSelectorParser(scraper.NewThreadConfig()), testLexicon(), nil, &Options{})

	assert.NotNil(t, runner.clock)
	assert.Equal(t, scraper.DefaultProbePage, runner.options.ProbePage)
	assert.Equal(t, FailOnUnrecognizedDate, runner.options.OnUnrecognizedDate)
	assert.Equal(t, report.Chronological, runner.options.SortOrder)
	assert.NotNil(t, runner.options.Location)
}
