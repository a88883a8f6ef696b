package events

import (
	"slices"
	"strings"
)

// Event categories used by the campus events page filters.
const (
	CategoryHackathon   = "hackathon"
	CategoryRecruitment = "recruitment"
	CategoryWorkshop    = "workshop"
	CategoryOther       = "other"
)

// Categories lists every category in filter order.
var Categories = []string{
	CategoryHackathon,
	CategoryRecruitment,
	CategoryWorkshop,
	CategoryOther,
}

// Categorize assigns a category by keyword. Rules are checked in order and
// matching is case-insensitive.
func Categorize(text string) string {
	text = strings.ToLower(text)

	switch {
	case strings.Contains(text, "hackathon"):
		return CategoryHackathon
	case strings.Contains(text, "recruitment"):
		return CategoryRecruitment
	case strings.Contains(text, "challenge"), strings.Contains(text, "workshop"):
		return CategoryWorkshop
	default:
		return CategoryOther
	}
}

// IsCategory reports whether name is a known category.
func IsCategory(name string) bool {
	return slices.Contains(Categories, name)
}

// Categorized sets Category on the event from its title and description.
func (e Event) Categorized() Event {
	e.Category = Categorize(e.Title + " " + e.Description)
	return e
}

// FilterByCategory returns the events in the given category. An empty
// category returns evs unchanged.
func FilterByCategory(evs []Event, category string) []Event {
	if category == "" {
		return evs
	}

	filtered := make([]Event, 0, len(evs))
	for _, ev := range evs {
		if ev.Category == category {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}
