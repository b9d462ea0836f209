// Package visibility hides events the viewer has switched off. It is a
// presentation filter: fetching always returns the full set.
package visibility

import (
	"strings"

	"blairboard/internal/config"
	"blairboard/internal/model"
)

// Filter returns the events that remain visible. An event is dropped when
// its calendar is in hidden, or when its calendar is in hideTimed and the
// event is not all-day. Nil maps hide nothing.
func Filter(events []model.CalendarEvent, hidden, hideTimed map[string]bool) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, e := range events {
		if hidden[e.CalendarID] {
			continue
		}
		if hideTimed[e.CalendarID] && !e.AllDay {
			continue
		}
		out = append(out, e)
	}
	return out
}

// HideTimedFromSources collects the calendars configured to show all-day
// events only.
func HideTimedFromSources(cals []config.CalendarSource) map[string]bool {
	out := make(map[string]bool)
	for _, c := range cals {
		if c.HideTimedEvents {
			out[c.ID] = true
		}
	}
	return out
}

// ParseHidden reads a comma separated list of calendar IDs.
func ParseHidden(s string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
