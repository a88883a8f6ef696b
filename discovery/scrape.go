package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/metrics"
	"github.com/pevans/eventfed/scraper"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTargetURL is the events listing scraped when no URL is configured.
const DefaultTargetURL = "https://cherrynetwork.in/endeavour"

// ErrScrapePanic wraps a panic recovered during a scrape.
var ErrScrapePanic = errors.New("scrape panicked")

// Trigger identifies what started a scrape run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerOnDemand Trigger = "on_demand"
	TriggerCLI      Trigger = "cli"
)

// Result is the outcome of one scrape run. Events is never nil; it is empty
// when Err is set.
type Result struct {
	RunID      uuid.UUID
	Trigger    Trigger
	URL        string
	StartedAt  time.Time
	FinishedAt time.Time
	Events     []events.Event
	Err        error
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Scraper renders an events page, extracts events and removes duplicates.
// Run is the failure boundary: it never panics and always returns a result.
type Scraper struct {
	renderer Renderer
	url      string
	timeout  time.Duration
	logger   logrus.FieldLogger
	flight   *singleflight.Group

	mu        sync.RWMutex
	selectors scraper.SelectorConfig
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout bounds each run. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger runs report to.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSelectors sets the initial selector set.
func WithSelectors(config scraper.SelectorConfig) Option {
	return func(s *Scraper) {
		s.selectors = config.WithDefaults()
	}
}

// WithSingleFlight makes concurrent runs for the same URL share a single
// in-flight scrape and its result.
func WithSingleFlight() Option {
	return func(s *Scraper) {
		s.flight = &singleflight.Group{}
	}
}

// NewScraper creates a scraper for targetURL.
func NewScraper(renderer Renderer, targetURL string, opts ...Option) *Scraper {
	if targetURL == "" {
		targetURL = DefaultTargetURL
	}

	s := &Scraper{
		renderer:  renderer,
		url:       targetURL,
		timeout:   60 * time.Second,
		logger:    logrus.StandardLogger(),
		selectors: scraper.DefaultSelectorConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// URL returns the configured target URL.
func (s *Scraper) URL() string {
	return s.url
}

// Selectors returns the current selector set.
func (s *Scraper) Selectors() scraper.SelectorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectors
}

// SetSelectors replaces the selector set. Runs already in progress keep
// the set they started with.
func (s *Scraper) SetSelectors(config scraper.SelectorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectors = config.WithDefaults()
}

// Scrape renders pageURL, extracts events and removes duplicates. Unlike Run
// it returns errors to the caller.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) ([]events.Event, error) {
	selectors := s.Selectors()

	html, err := s.renderer.Render(ctx, pageURL, selectors.ContainerSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	extracted, err := ExtractHTML(html, selectors)
	if err != nil {
		return nil, fmt.Errorf("failed to extract events: %w", err)
	}

	return events.Dedupe(extracted), nil
}

// Run scrapes the configured URL.
func (s *Scraper) Run(ctx context.Context, trigger Trigger) *Result {
	return s.RunURL(ctx, s.url, trigger)
}

// RunURL scrapes pageURL under the run timeout. Cancelling ctx does not stop
// the run; only the timeout does. Failures are logged and returned in
// Result.Err with an empty event list.
func (s *Scraper) RunURL(ctx context.Context, pageURL string, trigger Trigger) *Result {
	result := &Result{
		RunID:     uuid.New(),
		Trigger:   trigger,
		URL:       pageURL,
		StartedAt: time.Now(),
		Events:    []events.Event{},
	}

	logger := s.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID.String(),
		"trigger": string(trigger),
		"url":     pageURL,
	})
	logger.Info("Scrape started")

	evs, err := s.contained(ctx, pageURL)
	result.FinishedAt = time.Now()
	metrics.ScrapeDuration.WithLabelValues(string(trigger)).Observe(result.Duration().Seconds())

	if err != nil {
		result.Err = err
		metrics.ScrapeRuns.WithLabelValues(string(trigger), metrics.StatusError).Inc()
		logger.WithError(err).WithField("duration", result.Duration()).Error("Scrape failed")
		return result
	}

	result.Events = evs
	metrics.ScrapeRuns.WithLabelValues(string(trigger), metrics.StatusOK).Inc()
	metrics.ScrapeEvents.Set(float64(len(evs)))
	logger.WithFields(logrus.Fields{
		"events":   len(evs),
		"duration": result.Duration(),
	}).Info("Scrape finished")

	return result
}

// contained runs the scrape detached from ctx's cancellation, bounded by the
// scraper timeout, and shared with concurrent callers when single-flight is
// enabled.
func (s *Scraper) contained(ctx context.Context, pageURL string) ([]events.Event, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if s.flight == nil {
		return s.safeScrape(runCtx, pageURL)
	}

	v, err, shared := s.flight.Do(pageURL, func() (any, error) {
		return s.safeScrape(runCtx, pageURL)
	})
	if shared {
		s.logger.WithField("url", pageURL).Debug("Joined in-flight scrape")
	}
	if err != nil {
		return nil, err
	}

	// Callers of a shared flight each get their own slice
	evs, _ := v.([]events.Event)
	return slices.Clone(evs), nil
}

// safeScrape converts a panic in the scrape into an error.
func (s *Scraper) safeScrape(ctx context.Context, pageURL string) (evs []events.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			evs = nil
			err = fmt.Errorf("%w: %v", ErrScrapePanic, r)
		}
	}()

	return s.Scrape(ctx, pageURL)
}
