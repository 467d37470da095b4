package view

import (
	"strings"

	"eventcal/internal/model"
)

// Filter selects the events a page shows. A nil Filter keeps everything.
type Filter func(model.Event) bool

var trainingWords = []string{"training", "workshop", "session"}

// TrainingFilter keeps events whose name mentions training, a workshop or a
// session. The training page uses it.
func TrainingFilter(ev model.Event) bool {
	name := strings.ToLower(ev.Name)
	for _, w := range trainingWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

// NameContains matches a case-insensitive substring of the event name.
func NameContains(substr string) Filter {
	needle := strings.ToLower(strings.TrimSpace(substr))
	return func(ev model.Event) bool {
		return strings.Contains(strings.ToLower(ev.Name), needle)
	}
}

// FilterByName maps the filter names accepted by the HTTP API.
func FilterByName(name string) Filter {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return nil
	case "training":
		return TrainingFilter
	default:
		return NameContains(n)
	}
}

func applyFilter(events []model.Event, f Filter) []model.Event {
	if f == nil {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if f(ev) {
			out = append(out, ev)
		}
	}
	return out
}
