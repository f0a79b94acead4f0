package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pevans/threadmood/history"
	"github.com/pevans/threadmood/report"
)

// printRunTable prints runs in human-readable table format
func printRunTable(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	// Print table header
	fmt.Fprintf(w, "%-36s %-9s %6s %7s %-14s %s\n", "ID", "STATUS", "PAGES", "POSTS", "STARTED", "THREAD")
	fmt.Fprintln(w, "----------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		fmt.Fprintf(w, "%-36s %-9s %6d %7s %-14s %s\n",
			run.RunID.String(),
			run.Status,
			run.Pages,
			humanize.Comma(int64(run.Posts)),
			humanize.Time(run.StartedAt),
			truncate(run.ThreadURL, 60),
		)
	}
}

// printRunDetail prints a single run followed by its rows
func printRunDetail(w io.Writer, run *history.Run, rows []report.Row) {
	fmt.Fprintf(w, "Run: %s\n", run.RunID)
	fmt.Fprintf(w, "  Thread: %s\n", run.ThreadURL)
	fmt.Fprintf(w, "  Status: %s\n", run.Status)
	fmt.Fprintf(w, "  Started: %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	fmt.Fprintf(w, "  Took: %s\n", run.Duration().Round(time.Millisecond))
	if run.Error != nil {
		fmt.Fprintf(w, "  Error: %s\n", *run.Error)
		return
	}

	fmt.Fprintf(w, "  Pages: %d\n", run.Pages)
	fmt.Fprintf(w, "  Posts: %s\n", humanize.Comma(int64(run.Posts)))
	if run.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped: %d\n", run.Skipped)
	}
	if run.OutputPath != nil {
		fmt.Fprintf(w, "  Report: %s\n", *run.OutputPath)
	}

	fmt.Fprintln(w)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No dated posts.")
		return
	}

	fmt.Fprintf(w, "%-10s %10s %6s\n", "DATE", "SCORE", "POSTS")
	for _, row := range rows {
		fmt.Fprintf(w, "%-10s %10s %6d\n",
			row.Date.String(),
			strconv.FormatFloat(row.Score, 'f', -1, 64),
			row.Posts,
		)
	}
}

// printJSON prints v as indented JSON
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}
