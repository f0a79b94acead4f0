package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pevans/threadmood/config"
	"github.com/pevans/threadmood/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	// Get subcommand
	subcommand := os.Args[1]

	switch subcommand {
	case "run":
		handleRun(os.Args[2:])
	case "history":
		if len(os.Args) < 3 {
			printHistoryUsage()
			os.Exit(1)
		}
		handleHistoryCommand(os.Args[2], os.Args[3:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads the configuration and installs the configured logger.
// Failures are fatal.
func loadConfig(path string) *config.FileConfig {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg
}

func printUsage() {
	fmt.Println("threadmood - Forum thread sentiment scraper")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  threadmood <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run        Scrape a thread and write a per-date sentiment report")
	fmt.Println("  history    Inspect past runs")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  THREADMOOD_CONFIG         Path to config file (default: ~/.threadmood/config.yaml)")
	fmt.Println("  THREADMOOD_HISTORY_DSN    Path to run history database (default: threadmood.db)")
	fmt.Println("  THREADMOOD_TIMEZONE       Time zone for Today/Yesterday (default: Local)")
	fmt.Println("  THREADMOOD_FETCH_TIMEOUT  Per-request timeout (default: 30s)")
	fmt.Println("  THREADMOOD_USER_AGENT     User-Agent header for page requests")
	fmt.Println("  THREADMOOD_SORT           Report order: chronological or lexical")
	fmt.Println("  THREADMOOD_LOG_LEVEL      debug, info, warn or error (default: info)")
	fmt.Println("  THREADMOOD_LOG_FORMAT     text or json (default: text)")
}
