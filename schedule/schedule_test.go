package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/eventstore"
	"github.com/pevans/eventfed/events"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner returns a canned result and records triggers
type fakeRunner struct {
	evs []events.Event
	err error

	mu       sync.Mutex
	triggers []discovery.Trigger
}

func (r *fakeRunner) Run(_ context.Context, trigger discovery.Trigger) *discovery.Result {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()

	now := time.Now()
	result := &discovery.Result{
		RunID:      uuid.New(),
		Trigger:    trigger,
		URL:        discovery.DefaultTargetURL,
		StartedAt:  now,
		FinishedAt: now,
		Events:     []events.Event{},
		Err:        r.err,
	}
	if r.err == nil {
		result.Events = r.evs
	}
	return result
}

// Test helper: create a scheduler backed by a temporary store
func createTestScheduler(t *testing.T, runner Runner) (*Scheduler, *eventstore.EventStore) {
	store, err := eventstore.NewEventStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := test.NewNullLogger()
	s, err := New("0 * * * *", "America/New_York", runner, store, logger)
	require.NoError(t, err)
	return s, store
}

// TestNew_Timezone verifies the schedule is evaluated in its timezone
func TestNew_Timezone(t *testing.T) {
	s, _ := createTestScheduler(t, &fakeRunner{})

	assert.Equal(t, "America/New_York", s.Location().String())

	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, "America/New_York", next.Location().String())
	assert.Zero(t, next.Minute(), "hourly schedule fires on the hour")
	assert.Zero(t, next.Second())
	assert.True(t, next.After(time.Now()))
	assert.LessOrEqual(t, time.Until(next), time.Hour)
}

// TestNew_DailyScheduleUsesLocalHour verifies hours are local to the zone
func TestNew_DailyScheduleUsesLocalHour(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := New("0 9 * * *", "Asia/Kolkata", &fakeRunner{}, nil, logger)
	require.NoError(t, err)

	next := s.Next()
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, "Asia/Kolkata", next.Location().String())
}

// TestNew_InvalidTimezone verifies an unknown zone is rejected
func TestNew_InvalidTimezone(t *testing.T) {
	_, err := New("0 * * * *", "Nowhere/Special", &fakeRunner{}, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load timezone")
}

// TestNew_InvalidSpec verifies an unparseable cron spec is rejected
func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("hourly please", "UTC", &fakeRunner{}, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse schedule")
}

// TestRunOnce_PersistsEvents verifies a scheduled run saves its events
func TestRunOnce_PersistsEvents(t *testing.T) {
	runner := &fakeRunner{evs: []events.Event{
		events.Event{Title: "Hack Night", Description: "Hackathon", Date: "Jan 1"}.Categorized(),
	}}
	s, store := createTestScheduler(t, runner)

	result := s.RunOnce(context.Background())

	require.True(t, result.OK())
	assert.Equal(t, []discovery.Trigger{discovery.TriggerSchedule}, runner.triggers)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].RunID)

	stored, err := store.ListEvents(eventstore.EventFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Hack Night", stored[0].Title)
}

// TestRunOnce_FailureRecorded verifies a failed run is recorded and
// returned without raising
func TestRunOnce_FailureRecorded(t *testing.T) {
	runner := &fakeRunner{err: errors.New("failed to render page: timeout")}
	s, store := createTestScheduler(t, runner)

	result := s.RunOnce(context.Background())

	assert.False(t, result.OK())
	assert.Empty(t, result.Events)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)

	count, err := store.CountEvents(eventstore.EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

// TestRunOnce_NoStore verifies runs work without persistence
func TestRunOnce_NoStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := New("0 * * * *", "UTC", &fakeRunner{}, nil, logger)
	require.NoError(t, err)

	result := s.RunOnce(context.Background())
	assert.True(t, result.OK())
}

// TestStartStop verifies the scheduler starts and stops cleanly
func TestStartStop(t *testing.T) {
	s, _ := createTestScheduler(t, &fakeRunner{})

	s.Start()
	ctx := s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
