// Package layout places events onto a seven-column week grid. Multi-day and
// all-day events become horizontal bars packed into rows; everything else is
// bucketed into its day cell.
package layout

import (
	"slices"
	"time"

	"blairboard/internal/model"
	"blairboard/internal/viewrange"
)

// SpanningEvent is an event bar positioned within one week.
type SpanningEvent struct {
	Event    *model.CalendarEvent `json:"event"`
	StartCol int                  `json:"startCol"` // 0..6
	Span     int                  `json:"span"`     // 1..7
}

// PackedSpanningEvent is a SpanningEvent with its assigned row.
type PackedSpanningEvent struct {
	SpanningEvent
	Row int `json:"row"`
}

// Week is the complete layout of one grid row.
type Week struct {
	Days     []time.Time           `json:"days"`
	Spanning []PackedSpanningEvent `json:"spanning"`
	// RowCounts[i] is how many bar rows cover column i.
	RowCounts []int `json:"rowCounts"`
	// SingleDay[i] holds the non-spanning events of Days[i], in input order.
	SingleDay [][]model.CalendarEvent `json:"singleDay"`
}

// IsSpanning reports whether e renders as a bar. All-day events always do,
// including single-day ones; timed events do when they end on a later
// calendar day than they start.
func IsSpanning(e model.CalendarEvent) bool {
	if e.AllDay {
		return true
	}
	return !viewrange.StartOfDay(e.End).Equal(viewrange.StartOfDay(e.Start))
}

// EventsForWeek keeps events that touch at least one of weekDays.
func EventsForWeek(events []model.CalendarEvent, weekDays []time.Time) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, e := range events {
		for _, d := range weekDays {
			if OnDay(e, d) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// OnDay reports whether e occupies part of d's calendar day. The end is
// exclusive so an all-day event does not leak into the day after it.
func OnDay(e model.CalendarEvent, d time.Time) bool {
	return !e.Start.After(viewrange.EndOfDay(d)) && e.End.After(viewrange.StartOfDay(d))
}

// Classify splits events into bars and day-cell events, preserving order.
func Classify(events []model.CalendarEvent) (spanning, singleDay []model.CalendarEvent) {
	for _, e := range events {
		if IsSpanning(e) {
			spanning = append(spanning, e)
		} else {
			singleDay = append(singleDay, e)
		}
	}
	return spanning, singleDay
}

// CalculateSpans positions each event against weekDays. An event starting
// before the week begins at column 0; one whose end day is not in the week
// runs to the last column. Every bar is at least one column wide.
func CalculateSpans(events []model.CalendarEvent, weekDays []time.Time) []SpanningEvent {
	out := make([]SpanningEvent, 0, len(events))
	for i := range events {
		e := &events[i]
		startCol := dayIndex(weekDays, e.Start)
		if startCol < 0 {
			startCol = 0
		}
		endCol := dayIndex(weekDays, e.End)
		if endCol < 0 {
			endCol = len(weekDays)
		}
		out = append(out, SpanningEvent{
			Event:    e,
			StartCol: startCol,
			Span:     max(1, endCol-startCol),
		})
	}
	return out
}

func dayIndex(days []time.Time, t time.Time) int {
	target := viewrange.StartOfDay(t)
	for i, d := range days {
		if viewrange.StartOfDay(d).Equal(target) {
			return i
		}
	}
	return -1
}

// SortForPacking orders events by start, then longest first. Packing depends
// on input order, so callers sort before CalculateSpans.
func SortForPacking(events []model.CalendarEvent) {
	slices.SortStableFunc(events, func(a, b model.CalendarEvent) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		da, db := a.End.Sub(a.Start), b.End.Sub(b.Start)
		switch {
		case da > db:
			return -1
		case da < db:
			return 1
		}
		return 0
	})
}

// Pack assigns each bar, in the given order, to the lowest row where its
// columns [StartCol, StartCol+Span) are free.
func Pack(spans []SpanningEvent) []PackedSpanningEvent {
	var rows [][]SpanningEvent
	out := make([]PackedSpanningEvent, 0, len(spans))
	for _, se := range spans {
		row := 0
		for row < len(rows) && overlapsAny(rows[row], se) {
			row++
		}
		if row == len(rows) {
			rows = append(rows, nil)
		}
		rows[row] = append(rows[row], se)
		out = append(out, PackedSpanningEvent{SpanningEvent: se, Row: row})
	}
	return out
}

func overlapsAny(row []SpanningEvent, se SpanningEvent) bool {
	for _, existing := range row {
		if se.StartCol < existing.StartCol+existing.Span && existing.StartCol < se.StartCol+se.Span {
			return true
		}
	}
	return false
}

// RowCount returns the number of bar rows covering col, i.e. the highest
// row index present there plus one.
func RowCount(packed []PackedSpanningEvent, col int) int {
	maxRow := -1
	for _, p := range packed {
		if col >= p.StartCol && col < p.StartCol+p.Span {
			maxRow = max(maxRow, p.Row)
		}
	}
	return maxRow + 1
}

// LayoutWeek builds the grid row for weekDays from events, which need not
// be pre-filtered to the week.
func LayoutWeek(events []model.CalendarEvent, weekDays []time.Time) Week {
	inWeek := EventsForWeek(events, weekDays)
	spanning, single := Classify(inWeek)

	SortForPacking(spanning)
	packed := Pack(CalculateSpans(spanning, weekDays))

	w := Week{
		Days:      weekDays,
		Spanning:  packed,
		RowCounts: make([]int, len(weekDays)),
		SingleDay: make([][]model.CalendarEvent, len(weekDays)),
	}
	for i, d := range weekDays {
		w.RowCounts[i] = RowCount(packed, i)
		w.SingleDay[i] = make([]model.CalendarEvent, 0)
		for _, e := range single {
			if OnDay(e, d) {
				w.SingleDay[i] = append(w.SingleDay[i], e)
			}
		}
	}
	return w
}
