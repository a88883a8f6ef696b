package schedule

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/eventstore"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner performs one scrape run.
type Runner interface {
	Run(ctx context.Context, trigger discovery.Trigger) *discovery.Result
}

// Scheduler runs the scraper on a cron schedule in a fixed timezone.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	store    eventstore.Recorder
	logger   logrus.FieldLogger
	location *time.Location
	spec     string
}

// New creates a scheduler that fires runner on spec (standard five-field
// cron) evaluated in timezone. store may be nil.
func New(spec, timezone string, runner Runner, store eventstore.Recorder, logger logrus.FieldLogger) (*Scheduler, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		runner:   runner,
		store:    store,
		logger:   logger,
		location: location,
		spec:     spec,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.logger.WithFields(logrus.Fields{
		"spec":     s.spec,
		"timezone": s.location.String(),
		"next_run": s.Next(),
	}).Info("Scheduler started")
	s.cron.Start()
}

// Stop stops future firings. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next firing time. Before Start it is computed from the
// schedule directly.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now().In(s.location))
}

// Location returns the timezone the schedule is evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// RunOnce runs one scheduled scrape synchronously and persists its outcome.
// Store failures are logged, never returned.
func (s *Scheduler) RunOnce(ctx context.Context) *discovery.Result {
	result := s.runner.Run(ctx, discovery.TriggerSchedule)
	eventstore.Persist(s.store, result, s.logger)
	return result
}
