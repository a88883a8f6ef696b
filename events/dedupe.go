package events

// Dedupe returns the events with duplicate keys removed. The first event seen
// for each key is kept and the relative order of kept events is unchanged.
// The input slice is not modified.
func Dedupe(evs []Event) []Event {
	seen := make(map[string]struct{}, len(evs))
	unique := make([]Event, 0, len(evs))

	for _, ev := range evs {
		key := ev.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, ev)
	}

	return unique
}
