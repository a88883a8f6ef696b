package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pevans/eventfed/events"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// exitWithError prints err to stderr and exits with status 1
func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// validateFormat checks an output format flag
func validateFormat(format string) error {
	switch format {
	case "table", "json", "compact":
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be table, json, or compact", format)
	}
}

// validateCategory checks an optional category flag
func validateCategory(category string) error {
	if category == "" || events.IsCategory(category) {
		return nil
	}
	return fmt.Errorf("invalid category %q: must be one of %s", category, strings.Join(events.Categories, ", "))
}

// truncate shortens s to at most limit runes, marking the cut with "..."
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// wrapText wraps text to a maximum line width
func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}

// indent prefixes every line after the first with prefix
func indent(text, prefix string) string {
	return strings.ReplaceAll(text, "\n", "\n"+prefix)
}
