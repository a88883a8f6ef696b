package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pevans/eventfed/api"
	"github.com/pevans/eventfed/config"
	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/eventstore"
	"github.com/pevans/eventfed/instagram"
	"github.com/pevans/eventfed/logging"
	"github.com/pevans/eventfed/schedule"
	"github.com/sirupsen/logrus"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// A missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	configPath := flag.String("config", getEnv("EVENTFED_CONFIG", "eventfed.yaml"), "Path to configuration file (EVENTFED_CONFIG)")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.WithField("config", *configPath).Info("Configuration loaded")

	// Initialize event store
	logger.WithField("dsn", cfg.Storage.DSN).Info("Opening event store")
	store, err := eventstore.NewEventStore(cfg.Storage.DSN)
	if err != nil {
		logger.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()

	// Create scraper backed by headless Chrome
	renderer := discovery.NewChromeRenderer(discovery.RendererConfig{
		UserAgent:   cfg.Scrape.UserAgent,
		WaitTimeout: cfg.Scrape.WaitTimeout,
		ExecPath:    cfg.Scrape.ChromePath,
		Headless:    true,
		Logf:        logger.WithField("component", "chromedp").Debugf,
	})
	opts := []discovery.Option{
		discovery.WithTimeout(cfg.Scrape.Timeout),
		discovery.WithLogger(logger),
		discovery.WithSelectors(cfg.Scrape.Selectors),
	}
	if cfg.Scrape.SingleFlight {
		opts = append(opts, discovery.WithSingleFlight())
	}
	scraper := discovery.NewScraper(renderer, cfg.Scrape.URL, opts...)

	posts := instagram.NewClient(cfg.Instagram.BaseURL, cfg.Instagram.AccessToken)
	feeds := discovery.NewFeedSource(cfg.Feeds, logger)
	if urls := feeds.URLs(); len(urls) > 0 {
		logger.WithField("feeds", urls).Info("Feed source configured")
	}

	// Start the periodic scrape
	var scheduler *schedule.Scheduler
	if cfg.Schedule.Enabled {
		scheduler, err = schedule.New(cfg.Schedule.Spec, cfg.Schedule.Timezone, scraper, store, logger)
		if err != nil {
			logger.Fatalf("Failed to create scheduler: %v", err)
		}
		scheduler.Start()
	}

	// Hot-reload selectors when the config file changes
	reload := func(next *config.FileConfig) {
		scraper.SetSelectors(next.Scrape.Selectors)
		logger.WithField("container_selector", next.Scrape.Selectors.ContainerSelector).Info("Selectors reloaded")
	}
	stopWatch, err := config.Watch(*configPath, reload, func(err error) {
		logger.WithError(err).Warn("Ignoring invalid configuration change")
	})
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else {
		defer stopWatch()
	}

	server := api.NewServer(scraper, store, posts, feeds, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("Starting event API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				next, err := config.LoadWithEnv(*configPath)
				if err != nil {
					logger.WithError(err).Warn("SIGHUP reload failed")
					continue
				}
				reload(next)
				continue
			}

			logger.WithField("signal", sig.String()).Info("Shutting down gracefully...")
			shutdown(logger, httpServer, scheduler)
			return
		case err, ok := <-errChan:
			if ok && err != nil {
				logger.Fatalf("Server failed: %v", err)
			}
			return
		}
	}
}

// shutdown stops the HTTP server and waits for running scheduled scrapes,
// bounded by one minute.
func shutdown(logger logrus.FieldLogger, httpServer *http.Server, scheduler *schedule.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
			logger.Info("Scheduler stopped")
		case <-ctx.Done():
			logger.Warn("Shutdown timeout exceeded, forcing exit")
		}
	}
}
