package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/pevans/threadmood"
	"github.com/pevans/threadmood/config"
	"github.com/pevans/threadmood/history"
	"github.com/pevans/threadmood/lexicon"
	"github.com/pevans/threadmood/logging"
	"github.com/pevans/threadmood/report"
	"github.com/pevans/threadmood/thread"
)

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	threadURL := fs.String("url", "", "Thread URL")
	outPath := fs.String("out", "results.csv", "Report output path")
	lexiconPath := fs.String("lexicon", "sentiment-lexicon.txt", "Sentiment lexicon path")
	configPath := fs.String("config", getEnv("THREADMOOD_CONFIG", ""), "Config file path")
	format := fs.String("format", "", "Thread format: html or feed (overrides config)")
	onUnrecognized := fs.String("on-unrecognized", "", "Unrecognized dates: fail or skip (overrides config)")
	sortOrder := fs.String("sort", "", "Report order: chronological or lexical (overrides config)")
	noHistory := fs.Bool("no-history", false, "Do not record the run in the history database")
	fs.Parse(args)

	// Validate required flags
	if *threadURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --url is required\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	if *format != "" {
		cfg.Thread.Format = *format
	}
	if *onUnrecognized != "" {
		cfg.Dates.OnUnrecognized = *onUnrecognized
	}
	if *sortOrder != "" {
		cfg.Dates.Sort = *sortOrder
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lex, err := lexicon.Load(*lexiconPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.Logger.Debug("Loaded lexicon", "path", *lexiconPath, "words", lex.Len())

	runner, err := newRunner(cfg, lex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	runner.Progress = func(page, total int) {
		fmt.Printf("Page %d/%d\n", page, total)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	t := threadmood.Thread{URL: *threadURL}
	result, runErr := runner.RunToFile(ctx, t, *outPath)

	if !*noHistory {
		recordRun(cfg, t, result, *outPath, startedAt, runErr)
	}

	if runErr != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}

	fmt.Printf("✓ Wrote %s dates from %s posts to %s\n",
		humanize.Comma(int64(len(result.Rows))),
		humanize.Comma(int64(report.TotalPosts(result.Rows))),
		*outPath,
	)
	fmt.Printf("  Run: %s\n", result.RunID)
	fmt.Printf("  Pages: %d\n", result.Pages)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped: %d posts with unrecognized dates\n", result.Skipped)
	}
	fmt.Printf("  Took: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
}

// newRunner wires the fetcher, parser and options described by cfg.
func newRunner(cfg *config.FileConfig, lex *lexicon.Lexicon) (*threadmood.Runner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	parser, err := thread.NewParser(&cfg.Thread, loc)
	if err != nil {
		return nil, err
	}

	policy, err := threadmood.ParseDatePolicy(cfg.Dates.OnUnrecognized)
	if err != nil {
		return nil, err
	}

	order, err := report.ParseSortOrder(cfg.Dates.Sort)
	if err != nil {
		return nil, err
	}

	options := &threadmood.Options{
		ProbePage:          cfg.Thread.ProbePage,
		Location:           loc,
		OnUnrecognizedDate: policy,
		SortOrder:          order,
	}

	fetcher := thread.NewHTTPFetcher(&cfg.Fetch)
	return threadmood.NewRunner(fetcher, parser, lex, clockwork.NewRealClock(), options), nil
}

// recordRun stores the outcome in the history database. Failing to record
// is logged and does not change the exit status.
func recordRun(
	cfg *config.FileConfig,
	t threadmood.Thread,
	result *threadmood.Result,
	outPath string,
	startedAt time.Time,
	runErr error,
) {
	store, err := history.NewRunStore(cfg.Storage.HistoryDSN)
	if err != nil {
		logging.WithError(err).Warn("Failed to open run history", "dsn", cfg.Storage.HistoryDSN)
		return
	}
	defer store.Close()

	var run *history.Run
	var rows []report.Row
	if runErr != nil {
		run = history.NewFailedRun(t.URL, &cfg.Thread, startedAt, time.Now(), runErr)
	} else {
		run = history.NewRunFromResult(result, &cfg.Thread, outPath)
		rows = result.Rows
	}

	if err := store.RecordRun(run, rows); err != nil {
		logging.WithError(err).Warn("Failed to record run", "run_id", run.RunID)
	}
}
