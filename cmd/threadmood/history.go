package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pevans/threadmood/history"
)

func handleHistoryCommand(action string, args []string) {
	switch action {
	case "list":
		handleHistoryList(args)
	case "show":
		handleHistoryShow(args)
	case "delete":
		handleHistoryDelete(args)
	case "help", "--help", "-h":
		printHistoryUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown history command: %s\n\n", action)
		printHistoryUsage()
		os.Exit(1)
	}
}

func printHistoryUsage() {
	fmt.Println("threadmood history - Inspect past runs")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  threadmood history <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List recorded runs, newest first")
	fmt.Println("  show       Show a run and its per-date rows")
	fmt.Println("  delete     Delete a run")
	fmt.Println("  help       Show this help message")
}

// openStore loads the configuration and opens the history database.
func openStore(configPath string) *history.RunStore {
	cfg := loadConfig(configPath)

	store, err := history.NewRunStore(cfg.Storage.HistoryDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open run history: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleHistoryList(args []string) {
	fs := flag.NewFlagSet("history list", flag.ExitOnError)
	threadURL := fs.String("thread", "", "Only show runs of this thread URL")
	status := fs.String("status", "", "Only show succeeded or failed runs")
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	offset := fs.Int("offset", 0, "Number of runs to skip")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	configPath := fs.String("config", getEnv("THREADMOOD_CONFIG", ""), "Config file path")
	fs.Parse(args)

	filter := history.RunFilter{Limit: *limit, Offset: *offset}
	if *threadURL != "" {
		filter.ThreadURL = threadURL
	}
	if *status != "" {
		if *status != history.StatusSucceeded && *status != history.StatusFailed {
			fmt.Fprintf(os.Stderr, "Error: --status must be 'succeeded' or 'failed'\n")
			os.Exit(1)
		}
		filter.Status = status
	}

	store := openStore(*configPath)
	defer store.Close()

	runs, err := store.ListRuns(filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(map[string]any{
			"runs":  runs,
			"total": len(runs),
		})
		return
	}

	printRunTable(os.Stdout, runs)
}

func handleHistoryShow(args []string) {
	fs := flag.NewFlagSet("history show", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print JSON instead of text")
	configPath := fs.String("config", getEnv("THREADMOOD_CONFIG", ""), "Config file path")
	fs.Parse(args)

	runID := parseRunIDArg(fs.Args(), "show")

	store := openStore(*configPath)
	defer store.Close()

	run, err := store.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rows, err := store.GetRows(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load rows: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		printJSON(map[string]any{
			"run":  run,
			"rows": rows,
		})
		return
	}

	printRunDetail(os.Stdout, run, rows)
}

func handleHistoryDelete(args []string) {
	fs := flag.NewFlagSet("history delete", flag.ExitOnError)
	configPath := fs.String("config", getEnv("THREADMOOD_CONFIG", ""), "Config file path")
	fs.Parse(args)

	runID := parseRunIDArg(fs.Args(), "delete")

	store := openStore(*configPath)
	defer store.Close()

	if err := store.DeleteRun(runID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete run: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted run: %s\n", runID)
}

// parseRunIDArg reads the run ID positional argument or exits.
func parseRunIDArg(args []string, action string) uuid.UUID {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: run ID is required\n")
		fmt.Fprintf(os.Stderr, "Usage: threadmood history %s <run-id>\n", action)
		os.Exit(1)
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid run ID: %v\n", err)
		os.Exit(1)
	}
	return id
}
