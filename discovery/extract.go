package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/eventfed/events"
	"github.com/pevans/eventfed/scraper"
)

// ExtractHTML parses a rendered page and extracts events from it.
func ExtractHTML(html string, config scraper.SelectorConfig) ([]events.Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return Extract(doc, config), nil
}

// Extract extracts one event per node matching the container selector, in
// document order. Containers missing a title, description or date are
// skipped. The returned slice is never nil.
func Extract(doc *goquery.Document, config scraper.SelectorConfig) []events.Event {
	config = config.WithDefaults()

	extracted := []events.Event{}
	doc.Find(config.ContainerSelector).Each(func(_ int, s *goquery.Selection) {
		if ev, ok := extractEvent(s, config); ok {
			extracted = append(extracted, ev)
		}
	})

	return extracted
}

// extractEvent reads the fields of a single container. It returns false
// when any required field is absent.
func extractEvent(s *goquery.Selection, config scraper.SelectorConfig) (events.Event, bool) {
	title, ok := fieldText(s, config.TitleSelector)
	if !ok {
		return events.Event{}, false
	}

	description, ok := fieldText(s, config.DescriptionSelector)
	if !ok {
		return events.Event{}, false
	}

	date, ok := fieldText(s, config.DateSelector)
	if !ok {
		return events.Event{}, false
	}

	ev := events.Event{
		Title:       title,
		Description: description,
		Date:        date,
	}

	// Image is optional
	if src, ok := s.Find(config.ImageSelector).First().Attr("src"); ok {
		src = strings.TrimSpace(src)
		if src != "" {
			imageURL := ResolveImageURL(src, config.BaseURL)
			ev.ImageURL = &imageURL
		}
	}

	return ev.Categorized(), true
}

// fieldText returns the normalized text of the first node matching
// selector within s. The boolean is false when nothing matches or the text
// is blank.
func fieldText(s *goquery.Selection, selector string) (string, bool) {
	match := s.Find(selector).First()
	if match.Length() == 0 {
		return "", false
	}

	// Normalize whitespace: replace runs of spaces/newlines with one space
	text := normalizeText(match.Text())
	if text == "" {
		return "", false
	}

	return text, true
}

// ResolveImageURL makes src absolute using baseURL. Absolute URLs (any
// scheme) are returned unchanged, as is anything that cannot be parsed.
func ResolveImageURL(src, baseURL string) string {
	ref, err := url.Parse(src)
	if err != nil || ref.IsAbs() {
		return src
	}

	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return src
	}

	return base.ResolveReference(ref).String()
}
