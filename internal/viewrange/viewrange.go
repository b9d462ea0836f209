// Package viewrange computes the date windows behind each calendar view:
// the unpadded range used for fetching and selection, the padded grid of
// day cells, the agenda window, navigation steps and period labels.
//
// All functions work in the location of the reference time they are given.
package viewrange

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"blairboard/internal/model"
)

// ErrUnknownView is returned by ParseView for names outside model.AllViews.
var ErrUnknownView = errors.New("unknown view")

const daysPerWeek = 7

// ParseView validates a view name. Surrounding whitespace and case are
// ignored.
func ParseView(s string) (model.View, error) {
	v := model.View(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownView, s)
	}
	return v, nil
}

// StartOfDay returns 00:00 of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns the first day of the week containing t, where weeks
// begin on weekStartsOn.
func StartOfWeek(t time.Time, weekStartsOn time.Weekday) time.Time {
	day := StartOfDay(t)
	diff := (int(day.Weekday()) - int(weekStartsOn) + daysPerWeek) % daysPerWeek
	return day.AddDate(0, 0, -diff)
}

func endOfWeek(t time.Time, weekStartsOn time.Weekday) time.Time {
	return EndOfDay(StartOfWeek(t, weekStartsOn).AddDate(0, 0, daysPerWeek-1))
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// ForView returns the inclusive range a view covers around ref. Unknown
// views fall back to the week range.
func ForView(view model.View, ref time.Time, weekStartsOn time.Weekday) model.DateRange {
	start := StartOfWeek(ref, weekStartsOn)
	switch view {
	case model.ViewWeekNext:
		return model.DateRange{Start: start, End: EndOfDay(start.AddDate(0, 0, 2*daysPerWeek-1))}
	case model.View4Week:
		return model.DateRange{Start: start, End: EndOfDay(start.AddDate(0, 0, 4*daysPerWeek-1))}
	case model.ViewMonth:
		return model.DateRange{Start: startOfMonth(ref), End: endOfMonth(ref)}
	default:
		return model.DateRange{Start: start, End: endOfWeek(ref, weekStartsOn)}
	}
}

// GridDays lists the day cells a view renders, always whole weeks. For the
// month view this pads with days of the neighbouring months.
func GridDays(view model.View, ref time.Time, weekStartsOn time.Weekday) []time.Time {
	var first, last time.Time
	if view == model.ViewMonth {
		first = StartOfWeek(startOfMonth(ref), weekStartsOn)
		last = StartOfDay(endOfWeek(endOfMonth(ref), weekStartsOn))
	} else {
		r := ForView(view, ref, weekStartsOn)
		first, last = r.Start, StartOfDay(r.End)
	}

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Weeks splits a day list into rows of seven. A short trailing row is kept.
func Weeks(days []time.Time) [][]time.Time {
	var out [][]time.Time
	for len(days) > 0 {
		n := min(daysPerWeek, len(days))
		out = append(out, days[:n:n])
		days = days[n:]
	}
	return out
}

// AgendaRange covers agendaDays whole days starting with today's date.
func AgendaRange(today time.Time, agendaDays int) model.DateRange {
	if agendaDays < 1 {
		agendaDays = 1
	}
	start := StartOfDay(today)
	return model.DateRange{Start: start, End: EndOfDay(start.AddDate(0, 0, agendaDays-1))}
}

// WarmRange is the wide window fetched ahead of any request: four weeks
// either side of today, extended by the agenda length.
func WarmRange(today time.Time, agendaDays int) model.DateRange {
	start := StartOfDay(today)
	return model.DateRange{
		Start: start.AddDate(0, 0, -4*daysPerWeek),
		End:   EndOfDay(start.AddDate(0, 0, 4*daysPerWeek+agendaDays-1)),
	}
}

// FetchRange is the smallest range containing both a and b.
func FetchRange(a, b model.DateRange) model.DateRange {
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if b.End.After(out.End) {
		out.End = b.End
	}
	return out
}

// Shift moves ref by n navigation steps of view: one week for the week
// views, four weeks for 4week and one calendar month for month.
func Shift(view model.View, ref time.Time, n int) time.Time {
	switch view {
	case model.View4Week:
		return ref.AddDate(0, 0, 4*daysPerWeek*n)
	case model.ViewMonth:
		return ref.AddDate(0, n, 0)
	default:
		return ref.AddDate(0, 0, daysPerWeek*n)
	}
}

// Label is the period heading for a view, e.g. "2 Mar – 8 Mar 2026" or
// "March 2026".
func Label(view model.View, ref time.Time, weekStartsOn time.Weekday) string {
	if view == model.ViewMonth {
		return ref.Format("January 2006")
	}
	r := ForView(view, ref, weekStartsOn)
	return r.Start.Format("2 Jan") + " – " + r.End.Format("2 Jan 2006")
}
