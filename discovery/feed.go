package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/pevans/eventfed/events"
	"github.com/sirupsen/logrus"
)

// FetchFeed fetches and parses an RSS or Atom feed from the given URL. The
// gofeed library detects the format.
func FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "eventfed/1.0 (campus events aggregator)"

	feed, err := fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// FeedItemToEvent converts a feed item to an event. The boolean is false
// when the item lacks a title, description or date. Relative image URLs are
// resolved against baseURL.
func FeedItemToEvent(item *gofeed.Item, baseURL string) (events.Event, bool) {
	title := normalizeText(item.Title)

	// Description: gofeed maps <description> (RSS) and <summary> (Atom) here;
	// both may carry markup
	description := stripHTML(item.Description)
	if description == "" {
		description = stripHTML(item.Content)
	}

	// Date: kept as the feed's own text, like scraped dates
	date := strings.TrimSpace(item.Published)
	if date == "" {
		date = strings.TrimSpace(item.Updated)
	}

	if title == "" || description == "" || date == "" {
		return events.Event{}, false
	}

	ev := events.Event{
		Title:       title,
		Description: description,
		Date:        date,
	}

	if src := feedItemImage(item); src != "" {
		imageURL := ResolveImageURL(src, baseURL)
		ev.ImageURL = &imageURL
	}

	return ev.Categorized(), true
}

// FeedToEvents converts every complete item in a feed to an event.
func FeedToEvents(feed *gofeed.Feed) []events.Event {
	evs := []events.Event{}
	for _, item := range feed.Items {
		if ev, ok := FeedItemToEvent(item, feed.Link); ok {
			evs = append(evs, ev)
		}
	}
	return evs
}

// FeedSource collects events from a set of RSS/Atom feeds.
type FeedSource struct {
	urls   []string
	logger logrus.FieldLogger
}

// NewFeedSource creates a feed source for the given feed URLs.
func NewFeedSource(urls []string, logger logrus.FieldLogger) *FeedSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FeedSource{urls: urls, logger: logger}
}

// URLs returns the configured feed URLs.
func (fs *FeedSource) URLs() []string {
	return fs.urls
}

// Fetch fetches every feed and returns their events with duplicates
// removed. Failing feeds are logged and skipped; an error is returned only
// when every feed failed.
func (fs *FeedSource) Fetch(ctx context.Context) ([]events.Event, error) {
	all := []events.Event{}
	var errs []error

	for _, url := range fs.urls {
		feed, err := FetchFeed(ctx, url)
		if err != nil {
			fs.logger.WithError(err).WithField("url", url).Warn("Failed to fetch feed")
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		all = append(all, FeedToEvents(feed)...)
	}

	if len(fs.urls) > 0 && len(errs) == len(fs.urls) {
		return nil, errors.Join(errs...)
	}

	return events.Dedupe(all), nil
}

// feedItemImage returns the item's image URL, falling back to the first
// image enclosure.
func feedItemImage(item *gofeed.Item) string {
	if item.Image != nil && strings.TrimSpace(item.Image.URL) != "" {
		return strings.TrimSpace(item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return strings.TrimSpace(enc.URL)
		}
	}
	return ""
}

// stripHTML returns the text content of an HTML fragment with whitespace
// normalized.
func stripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeText(fragment)
	}
	return normalizeText(doc.Text())
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
