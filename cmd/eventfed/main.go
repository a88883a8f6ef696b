package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pevans/eventfed/config"
	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/eventstore"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/instagram"
	"github.com/pevans/eventfed/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Get subcommand
	subcommand := os.Args[1]
	args := os.Args[2:]

	switch subcommand {
	case "scrape":
		handleScrape(args)
	case "events":
		handleEvents(args)
	case "runs":
		handleRuns(args)
	case "instagram":
		handleInstagram(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("eventfed - Campus events CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  eventfed <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scrape     Scrape the events page now")
	fmt.Println("  events     List stored events")
	fmt.Println("  runs       List recent scrape runs")
	fmt.Println("  instagram  List recent Instagram posts")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  EVENTFED_CONFIG        Path to configuration file (default: eventfed.yaml)")
	fmt.Println("  EVENTFED_DB            Path to event database (default: eventfed.db)")
	fmt.Println("  EVENTFED_SCRAPE_URL    Events page to scrape")
	fmt.Println("  INSTAGRAM_ACCESS_TOKEN Instagram Graph API token")
	fmt.Println("  LOG_LEVEL              Log level (default: info)")
}

func handleScrape(args []string) {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json, compact")
	save := fs.Bool("save", false, "Save the run and its events to the database")
	category := fs.String("category", "", "Only show events in this category")
	fs.Parse(args)

	if err := validateFormat(*format); err != nil {
		exitWithError(err)
	}
	if err := validateCategory(*category); err != nil {
		exitWithError(err)
	}

	cfg := loadConfig()
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	renderer := discovery.NewChromeRenderer(discovery.RendererConfig{
		UserAgent:   cfg.Scrape.UserAgent,
		WaitTimeout: cfg.Scrape.WaitTimeout,
		ExecPath:    cfg.Scrape.ChromePath,
		Headless:    true,
	})
	scraper := discovery.NewScraper(renderer, cfg.Scrape.URL,
		discovery.WithTimeout(cfg.Scrape.Timeout),
		discovery.WithLogger(logger),
		discovery.WithSelectors(cfg.Scrape.Selectors),
	)

	result := scraper.Run(context.Background(), discovery.TriggerCLI)

	if *save {
		if err := saveRun(cfg.Storage.DSN, result, logger); err != nil {
			exitWithError(err)
		}
	}

	if !result.OK() {
		exitWithError(fmt.Errorf("scrape failed: %w", result.Err))
	}

	evs := events.FilterByCategory(result.Events, *category)
	switch *format {
	case "json":
		printEventsJSON(evs)
	case "compact":
		printEventsCompact(evs)
	default:
		printEventsTable(evs)
	}
}

func handleEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	format := fs.String("format", "table", "Output format: table, json, compact")
	category := fs.String("category", "", "Only show events in this category")
	limit := fs.Int("limit", 50, "Maximum number of events")
	offset := fs.Int("offset", 0, "Number of events to skip")
	fs.Parse(args)

	if err := validateFormat(*format); err != nil {
		exitWithError(err)
	}
	if err := validateCategory(*category); err != nil {
		exitWithError(err)
	}

	filter := eventstore.EventFilter{Limit: *limit, Offset: *offset}
	if *category != "" {
		filter.Category = category
	}

	cfg := loadConfig()
	store := openStore(cfg)
	stored, total, err := listStored(store, filter)
	store.Close()
	if err != nil {
		exitWithError(err)
	}

	switch *format {
	case "json":
		printStoredJSON(stored, total)
	case "compact":
		printStoredCompact(stored)
	default:
		printStoredTable(stored, total, *offset)
	}
}

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs")
	fs.Parse(args)

	cfg := loadConfig()
	store := openStore(cfg)
	runs, err := store.ListRuns(*limit)
	store.Close()
	if err != nil {
		exitWithError(fmt.Errorf("failed to list runs: %w", err))
	}

	printRunsTable(runs)
}

func handleInstagram(args []string) {
	fs := flag.NewFlagSet("instagram", flag.ExitOnError)
	category := fs.String("category", "", "Only show posts in this category")
	fs.Parse(args)

	if err := validateCategory(*category); err != nil {
		exitWithError(err)
	}

	cfg := loadConfig()
	client := instagram.NewClient(cfg.Instagram.BaseURL, cfg.Instagram.AccessToken)

	posts, err := client.RecentMedia(context.Background())
	if err != nil {
		exitWithError(fmt.Errorf("failed to fetch posts: %w", err))
	}

	printPosts(instagram.FilterByCategory(posts, *category))
}

// saveRun records result in the store at dsn. The store is closed before
// it returns, so callers may exit right after.
func saveRun(dsn string, result *discovery.Result, logger logrus.FieldLogger) error {
	store, err := eventstore.NewEventStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	eventstore.Persist(store, result, logger)

	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close event store: %w", err)
	}
	return nil
}

// listStored reads one page of stored events and the total matching the
// filter.
func listStored(store *eventstore.EventStore, filter eventstore.EventFilter) ([]eventstore.StoredEvent, int, error) {
	stored, err := store.ListEvents(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	total, err := store.CountEvents(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}
	return stored, total, nil
}

// loadConfig loads the configuration file named by EVENTFED_CONFIG with
// environment overrides applied.
func loadConfig() *config.FileConfig {
	cfg, err := config.LoadWithEnv(getEnv("EVENTFED_CONFIG", "eventfed.yaml"))
	if err != nil {
		exitWithError(err)
	}
	return cfg
}

func openStore(cfg *config.FileConfig) *eventstore.EventStore {
	store, err := eventstore.NewEventStore(cfg.Storage.DSN)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open event store: %w", err))
	}
	return store
}
