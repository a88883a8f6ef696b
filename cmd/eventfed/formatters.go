package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pevans/eventfed/eventstore"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/instagram"
)

// printEventsTable prints scraped events in human-readable format
func printEventsTable(evs []events.Event) {
	writeEventsTable(os.Stdout, evs)
}

func writeEventsTable(w io.Writer, evs []events.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(w, "No events to display.")
		return
	}

	fmt.Fprintf(w, "Found %d events\n\n", len(evs))

	for _, ev := range evs {
		fmt.Fprintf(w, "[%s] %s\n", ev.Category, truncate(ev.Title, 70))
		fmt.Fprintf(w, "   Date: %s\n", ev.Date)
		fmt.Fprintf(w, "   %s\n", indent(wrapText(truncate(ev.Description, 300), 76), "   "))
		if ev.HasImage() {
			fmt.Fprintf(w, "   Image: %s\n", *ev.ImageURL)
		}
		fmt.Fprintln(w)
	}
}

// printEventsJSON prints scraped events in JSON format
func printEventsJSON(evs []events.Event) {
	printJSON(map[string]any{
		"events": evs,
		"total":  len(evs),
	})
}

// printEventsCompact prints one scraped event per line
func printEventsCompact(evs []events.Event) {
	writeEventsCompact(os.Stdout, evs)
}

func writeEventsCompact(w io.Writer, evs []events.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(w, "No events to display.")
		return
	}

	for _, ev := range evs {
		fmt.Fprintf(w, "%-12s %s (%s)\n", ev.Category, ev.Title, ev.Date)
	}
}

// printStoredTable prints stored events with their bookkeeping
func printStoredTable(stored []eventstore.StoredEvent, total, offset int) {
	if len(stored) == 0 {
		fmt.Println("No events to display.")
		return
	}

	fmt.Printf("Showing %d-%d of %d events\n\n", offset+1, offset+len(stored), total)

	for _, ev := range stored {
		fmt.Printf("[%s] %s\n", ev.Category, truncate(ev.Title, 70))
		fmt.Printf("   Date: %s | First seen: %s | Last seen: %s\n",
			ev.Date,
			ev.FirstSeenAt.Local().Format("2006-01-02 15:04"),
			ev.LastSeenAt.Local().Format("2006-01-02 15:04"),
		)
		fmt.Printf("   %s\n", indent(wrapText(truncate(ev.Description, 300), 76), "   "))
		fmt.Println()
	}
}

// printStoredJSON prints stored events in JSON format
func printStoredJSON(stored []eventstore.StoredEvent, total int) {
	printJSON(map[string]any{
		"events": stored,
		"total":  total,
	})
}

// printStoredCompact prints one stored event per line
func printStoredCompact(stored []eventstore.StoredEvent) {
	evs := make([]events.Event, 0, len(stored))
	for _, ev := range stored {
		evs = append(evs, ev.Event)
	}
	writeEventsCompact(os.Stdout, evs)
}

// printRunsTable prints scrape runs, newest first
func printRunsTable(runs []eventstore.Run) {
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	fmt.Printf("%-10s  %-9s  %-16s  %8s  %6s  %s\n", "RUN", "TRIGGER", "STARTED", "DURATION", "EVENTS", "STATUS")
	for _, run := range runs {
		status := "ok"
		if run.Error != nil {
			status = "error: " + truncate(*run.Error, 60)
		}

		fmt.Printf("%-10s  %-9s  %-16s  %8s  %6d  %s\n",
			run.RunID.String()[:8],
			run.Trigger,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.FinishedAt.Sub(run.StartedAt).Round(100*time.Millisecond),
			run.EventCount,
			status,
		)
	}
}

// printPosts prints Instagram posts
func printPosts(posts []instagram.Post) {
	if len(posts) == 0 {
		fmt.Println("No posts to display.")
		return
	}

	for _, post := range posts {
		caption := post.Caption
		if caption == "" {
			caption = "(no caption)"
		}
		fmt.Printf("[%s] %s\n", post.Category, truncate(caption, 70))
		fmt.Printf("   %s | %s\n", post.MediaType, post.Timestamp)
		fmt.Printf("   %s\n", post.Permalink)
		fmt.Println()
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}
