package eventstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/metrics"
)

// Custom errors for event store operations
var (
	ErrEventNotFound = errors.New("event not found")
)

// EventStore persists scraped events and scrape runs using SQLite.
type EventStore struct {
	db *sql.DB
}

// StoredEvent is an event together with its bookkeeping.
type StoredEvent struct {
	events.Event
	Key         string    `json:"key"`
	SourceURL   string    `json:"source_url"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	LastRunID   uuid.UUID `json:"last_run_id"`
}

// Run is the record of one scrape run.
type Run struct {
	RunID      uuid.UUID `json:"run_id"`
	Trigger    string    `json:"trigger"`
	URL        string    `json:"url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	EventCount int       `json:"event_count"`
	Error      *string   `json:"error,omitempty"`
}

// EventFilter represents filtering options for listing events.
type EventFilter struct {
	Category *string // Filter by category
	Limit    int     // Pagination limit
	Offset   int     // Pagination offset
}

// NewEventStore creates a new event store with the given database path.
// Writers are serialized: one connection within the process, and
// immediate transactions with a busy timeout across processes.
func NewEventStore(dbPath string) (*EventStore, error) {
	db, err := sql.Open("sqlite3", withLocking(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &EventStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// withLocking adds the go-sqlite3 connection parameters that make
// transactions take the write lock up front and wait for it when busy.
// Parameters already present in dsn are kept.
func withLocking(dsn string) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000"}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, param := range params {
		name, _, _ := strings.Cut(param, "=")
		if strings.Contains(dsn, name+"=") {
			continue
		}
		dsn += sep + param
		sep = "&"
	}
	return dsn
}

// initSchema creates the events and runs tables if they don't exist.
func (s *EventStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_key TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		image_url TEXT,
		category TEXT NOT NULL,
		source_url TEXT NOT NULL,
		first_seen_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		last_run_id TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		triggered_by TEXT NOT NULL,
		url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// SaveEvents upserts events seen by a run. Existing events keep their
// first_seen_at; everything else is refreshed. It returns how many events
// were not in the store before.
func (s *EventStore) SaveEvents(runID uuid.UUID, sourceURL string, evs []events.Event, now time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seenAt := formatTime(&now)
	newCount := 0

	for _, ev := range evs {
		key := ev.Key()

		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM events WHERE event_key = ?", key).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("failed to check event: %w", err)
		}
		if exists == 0 {
			newCount++
		}

		_, err = tx.Exec(`
			INSERT INTO events (
				event_key, title, description, date, image_url, category,
				source_url, first_seen_at, last_seen_at, last_run_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(event_key) DO UPDATE SET
				description = excluded.description,
				image_url = excluded.image_url,
				category = excluded.category,
				source_url = excluded.source_url,
				last_seen_at = excluded.last_seen_at,
				last_run_id = excluded.last_run_id
		`,
			key,
			ev.Title,
			ev.Description,
			ev.Date,
			ev.ImageURL,
			ev.Category,
			sourceURL,
			seenAt,
			seenAt,
			runID.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}

	metrics.EventsStored.Add(float64(newCount))
	return newCount, nil
}

// GetEvent retrieves an event by its key.
func (s *EventStore) GetEvent(key string) (*StoredEvent, error) {
	query := `
		SELECT event_key, title, description, date, image_url, category,
		       source_url, first_seen_at, last_seen_at, last_run_id
		FROM events
		WHERE event_key = ?
	`

	ev, err := scanEvent(s.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}

	return ev, nil
}

// ListEvents lists stored events, most recently seen first.
func (s *EventStore) ListEvents(filter EventFilter) ([]StoredEvent, error) {
	query := `
		SELECT event_key, title, description, date, image_url, category,
		       source_url, first_seen_at, last_seen_at, last_run_id
		FROM events
	`

	where, args := filter.where()
	query += where
	query += " ORDER BY last_seen_at DESC, first_seen_at DESC, event_key"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	stored := []StoredEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		stored = append(stored, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return stored, nil
}

// CountEvents counts stored events matching the filter, ignoring pagination.
func (s *EventStore) CountEvents(filter EventFilter) (int, error) {
	where, args := filter.where()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// RecordRun stores the outcome of a scrape run.
func (s *EventStore) RecordRun(run Run) error {
	query := `
		INSERT INTO runs (
			run_id, triggered_by, url, started_at, finished_at, event_count, error
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.RunID.String(),
		run.Trigger,
		run.URL,
		formatTime(&run.StartedAt),
		formatTime(&run.FinishedAt),
		run.EventCount,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// ListRuns lists the most recent runs first. A non-positive limit returns
// every run.
func (s *EventStore) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT run_id, triggered_by, url, started_at, finished_at, event_count, error
		FROM runs
		ORDER BY started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var runIDStr, trigger, url, startedAtStr, finishedAtStr string
		var eventCount int
		var runError sql.NullString

		err := rows.Scan(&runIDStr, &trigger, &url, &startedAtStr, &finishedAtStr, &eventCount, &runError)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse run ID: %w", err)
		}

		run := Run{
			RunID:      runID,
			Trigger:    trigger,
			URL:        url,
			StartedAt:  parseTime(startedAtStr),
			FinishedAt: parseTime(finishedAtStr),
			EventCount: eventCount,
		}
		if runError.Valid {
			run.Error = &runError.String
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// where builds the WHERE clause shared by ListEvents and CountEvents.
func (f EventFilter) where() (string, []any) {
	var whereClauses []string
	var args []any

	if f.Category != nil {
		whereClauses = append(whereClauses, "category = ?")
		args = append(args, *f.Category)
	}

	if len(whereClauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one events row into a StoredEvent.
func scanEvent(row rowScanner) (*StoredEvent, error) {
	var key, title, description, date, category, sourceURL string
	var firstSeenAtStr, lastSeenAtStr, lastRunIDStr string
	var imageURL sql.NullString

	err := row.Scan(
		&key, &title, &description, &date, &imageURL, &category,
		&sourceURL, &firstSeenAtStr, &lastSeenAtStr, &lastRunIDStr,
	)
	if err != nil {
		return nil, err
	}

	lastRunID, err := uuid.Parse(lastRunIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	stored := &StoredEvent{
		Event: events.Event{
			Title:       title,
			Description: description,
			Date:        date,
			Category:    category,
		},
		Key:         key,
		SourceURL:   sourceURL,
		FirstSeenAt: parseTime(firstSeenAtStr),
		LastSeenAt:  parseTime(lastSeenAtStr),
		LastRunID:   lastRunID,
	}
	if imageURL.Valid {
		stored.ImageURL = &imageURL.String
	}

	return stored, nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Fixed-width UTC text sorts chronologically
	return t.Truncate(0).UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
