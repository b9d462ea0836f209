package model

import "time"

// View names a calendar display mode.
type View string

const (
	ViewWeek     View = "week"
	ViewWeekNext View = "weeknext"
	View4Week    View = "4week"
	ViewMonth    View = "month"
)

// AllViews lists every supported view in display order.
var AllViews = []View{ViewWeek, ViewWeekNext, View4Week, ViewMonth}

// Valid reports whether v is one of the supported views.
func (v View) Valid() bool {
	switch v {
	case ViewWeek, ViewWeekNext, View4Week, ViewMonth:
		return true
	}
	return false
}

// DateRange is a window of time whose bounds are both treated as inclusive
// by overlap tests.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end] intersects the range.
func (r DateRange) Overlaps(start, end time.Time) bool {
	return !end.Before(r.Start) && !start.After(r.End)
}

// CalendarEvent is a single concrete event (or occurrence of a recurring
// series) after expansion and timezone normalization.
//
// For all-day events End is exclusive: an event on Feb 10 only ends at
// Feb 11 00:00.
type CalendarEvent struct {
	// ID is the iCalendar UID, suffixed with "_<occurrence start>" for
	// instances of a recurring series.
	ID    string `json:"id"`
	Title string `json:"title"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	AllDay bool `json:"allDay"`

	Colour       string `json:"colour"`
	CalendarID   string `json:"calendarId"`
	CalendarName string `json:"calendarName"`
}
