package eventstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/events"
	"github.com/sirupsen/logrus"
)

// Recorder records runs and the events they found. *EventStore implements
// it.
type Recorder interface {
	RecordRun(run Run) error
	SaveEvents(runID uuid.UUID, sourceURL string, evs []events.Event, now time.Time) (int, error)
}

// Persist records result and, when it succeeded, saves its events. A nil
// store is a no-op. Errors are logged.
func Persist(store Recorder, result *discovery.Result, logger logrus.FieldLogger) {
	if store == nil || result == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("run_id", result.RunID.String())

	run := Run{
		RunID:      result.RunID,
		Trigger:    string(result.Trigger),
		URL:        result.URL,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		EventCount: len(result.Events),
	}
	if result.Err != nil {
		msg := result.Err.Error()
		run.Error = &msg
	}

	if err := store.RecordRun(run); err != nil {
		logger.WithError(err).Error("Failed to record run")
	}

	if !result.OK() {
		return
	}

	newCount, err := store.SaveEvents(result.RunID, result.URL, result.Events, result.FinishedAt)
	if err != nil {
		logger.WithError(err).Error("Failed to save events")
		return
	}
	logger.WithFields(logrus.Fields{
		"events":     len(result.Events),
		"new_events": newCount,
	}).Debug("Saved events")
}
