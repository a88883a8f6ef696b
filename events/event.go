package events

// keySeparator joins title and date in the identity key. A control
// character keeps ("ab", "c") and ("a", "bc") distinct.
const keySeparator = "\x1f"

// Event represents a single scraped campus event.
type Event struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"` // Free text as shown on the source page
	ImageURL    *string `json:"image_url"`
	Category    string  `json:"category"`
}

// Key returns the composite identity of the event: its title and date.
// Events with equal keys are duplicates regardless of their other fields.
func (e Event) Key() string {
	return e.Title + keySeparator + e.Date
}

// HasImage reports whether the event carries an image URL.
func (e Event) HasImage() bool {
	return e.ImageURL != nil && *e.ImageURL != ""
}
