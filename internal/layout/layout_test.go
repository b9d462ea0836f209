package layout_test

import (
	"slices"
	"testing"
	"time"

	"blairboard/internal/layout"
	"blairboard/internal/model"
)

func at(m time.Month, d, h int) time.Time {
	return time.Date(2026, m, d, h, 0, 0, 0, time.UTC)
}

func allDay(id string, from, to time.Time) model.CalendarEvent {
	return model.CalendarEvent{ID: id, Title: id, Start: from, End: to, AllDay: true}
}

func timed(id string, from, to time.Time) model.CalendarEvent {
	return model.CalendarEvent{ID: id, Title: id, Start: from, End: to}
}

// weekOfMar2 is Monday 2 March to Sunday 8 March 2026.
func weekOfMar2() []time.Time {
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = at(time.March, 2+i, 0)
	}
	return days
}

func TestIsSpanning(t *testing.T) {
	tests := []struct {
		name string
		ev   model.CalendarEvent
		want bool
	}{
		{"single-day all-day", allDay("a", at(time.March, 1, 0), at(time.March, 2, 0)), true},
		{"multi-day all-day", allDay("b", at(time.March, 3, 0), at(time.March, 6, 0)), true},
		{"timed within a day", timed("c", at(time.March, 3, 9), at(time.March, 3, 10)), false},
		{"timed overnight", timed("d", at(time.March, 3, 22), at(time.March, 4, 2)), true},
		{"zero length", timed("e", at(time.March, 3, 9), at(time.March, 3, 9)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layout.IsSpanning(tt.ev); got != tt.want {
				t.Errorf("IsSpanning = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventsForWeek(t *testing.T) {
	events := []model.CalendarEvent{
		allDay("ends-at-week-start", at(time.March, 1, 0), at(time.March, 2, 0)),
		timed("sunday-night", at(time.March, 8, 23), at(time.March, 8, 23)),
		timed("next-monday", at(time.March, 9, 9), at(time.March, 9, 10)),
		allDay("long-trip", at(time.February, 20, 0), at(time.March, 20, 0)),
		timed("tuesday", at(time.March, 3, 9), at(time.March, 3, 10)),
	}

	got := layout.EventsForWeek(events, weekOfMar2())
	var gotIDs []string
	for _, e := range got {
		gotIDs = append(gotIDs, e.ID)
	}
	want := []string{"sunday-night", "long-trip", "tuesday"}
	if !slices.Equal(gotIDs, want) {
		t.Errorf("EventsForWeek = %v, want %v", gotIDs, want)
	}
}

func TestClassify(t *testing.T) {
	events := []model.CalendarEvent{
		timed("standup", at(time.March, 2, 9), at(time.March, 2, 10)),
		allDay("holiday", at(time.March, 3, 0), at(time.March, 4, 0)),
		timed("lunch", at(time.March, 3, 12), at(time.March, 3, 14)),
	}
	spanning, single := layout.Classify(events)
	if len(spanning) != 1 || spanning[0].ID != "holiday" {
		t.Errorf("spanning = %v", spanning)
	}
	if len(single) != 2 || single[0].ID != "standup" || single[1].ID != "lunch" {
		t.Errorf("singleDay = %v", single)
	}
}

func TestCalculateSpans(t *testing.T) {
	tests := []struct {
		name     string
		ev       model.CalendarEvent
		startCol int
		span     int
	}{
		{"inside week", allDay("a", at(time.March, 3, 0), at(time.March, 5, 0)), 1, 2},
		{"single all-day", allDay("b", at(time.March, 3, 0), at(time.March, 4, 0)), 1, 1},
		{"starts before week", allDay("c", at(time.February, 27, 0), at(time.March, 4, 0)), 0, 2},
		{"ends after week", allDay("d", at(time.March, 6, 0), at(time.March, 12, 0)), 4, 3},
		{"covers whole week", allDay("e", at(time.February, 20, 0), at(time.March, 20, 0)), 0, 7},
		{"last day only", allDay("f", at(time.March, 8, 0), at(time.March, 9, 0)), 6, 1},
		{"timed overnight", timed("g", at(time.March, 3, 22), at(time.March, 4, 2)), 1, 1},
		{"ends at week start", allDay("h", at(time.March, 1, 0), at(time.March, 2, 0)), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := layout.CalculateSpans([]model.CalendarEvent{tt.ev}, weekOfMar2())
			if len(spans) != 1 {
				t.Fatalf("got %d spans", len(spans))
			}
			se := spans[0]
			if se.StartCol != tt.startCol || se.Span != tt.span {
				t.Errorf("StartCol/Span = %d/%d, want %d/%d", se.StartCol, se.Span, tt.startCol, tt.span)
			}
			if se.Event == nil || se.Event.ID != tt.ev.ID {
				t.Errorf("Event = %+v", se.Event)
			}
		})
	}
}

func span(startCol, width int) layout.SpanningEvent {
	return layout.SpanningEvent{StartCol: startCol, Span: width}
}

func rowsOf(packed []layout.PackedSpanningEvent) []int {
	rows := make([]int, 0, len(packed))
	for _, p := range packed {
		rows = append(rows, p.Row)
	}
	return rows
}

func TestPack(t *testing.T) {
	tests := []struct {
		name  string
		spans []layout.SpanningEvent
		rows  []int
	}{
		{"adjacent share a row", []layout.SpanningEvent{span(0, 3), span(3, 4)}, []int{0, 0}},
		{"overlapping stack", []layout.SpanningEvent{span(0, 4), span(2, 4)}, []int{0, 1}},
		{"first fit reuses row", []layout.SpanningEvent{span(0, 2), span(1, 2), span(2, 2)}, []int{0, 1, 0}},
		{"full width blocks all", []layout.SpanningEvent{span(0, 7), span(3, 1), span(5, 2)}, []int{0, 1, 1}},
		{"empty", nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rowsOf(layout.Pack(tt.spans)); !slices.Equal(got, tt.rows) {
				t.Errorf("rows = %v, want %v", got, tt.rows)
			}
		})
	}
}

func TestRowCount(t *testing.T) {
	packed := layout.Pack([]layout.SpanningEvent{span(0, 4), span(2, 4), span(5, 1)})
	// rows: [0,4)->0, [2,6)->1, [5,6)->0
	want := []int{1, 1, 2, 2, 2, 2, 0}
	for col, w := range want {
		if got := layout.RowCount(packed, col); got != w {
			t.Errorf("RowCount(col %d) = %d, want %d", col, got, w)
		}
	}
}

func TestSortForPacking(t *testing.T) {
	events := []model.CalendarEvent{
		allDay("short", at(time.March, 3, 0), at(time.March, 4, 0)),
		allDay("early", at(time.March, 2, 0), at(time.March, 3, 0)),
		allDay("long", at(time.March, 3, 0), at(time.March, 6, 0)),
		allDay("short-twin", at(time.March, 3, 0), at(time.March, 4, 0)),
	}
	layout.SortForPacking(events)

	var got []string
	for _, e := range events {
		got = append(got, e.ID)
	}
	want := []string{"early", "long", "short", "short-twin"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestLayoutWeek(t *testing.T) {
	events := []model.CalendarEvent{
		timed("standup", at(time.March, 2, 9), at(time.March, 2, 10)),
		timed("lunch", at(time.March, 3, 12), at(time.March, 3, 14)),
		allDay("conference", at(time.March, 3, 0), at(time.March, 5, 0)),
		allDay("dentist-day", at(time.March, 4, 0), at(time.March, 5, 0)),
		allDay("trip", at(time.February, 27, 0), at(time.March, 4, 0)),
		timed("next-week", at(time.March, 10, 9), at(time.March, 10, 10)),
	}

	w := layout.LayoutWeek(events, weekOfMar2())

	bars := map[string]layout.PackedSpanningEvent{}
	for _, p := range w.Spanning {
		bars[p.Event.ID] = p
	}
	if len(bars) != 3 {
		t.Fatalf("spanning = %d bars, want 3", len(w.Spanning))
	}
	checks := []struct {
		id                  string
		startCol, span, row int
	}{
		{"trip", 0, 2, 0},
		{"conference", 1, 2, 1},
		{"dentist-day", 2, 1, 0},
	}
	for _, c := range checks {
		b := bars[c.id]
		if b.StartCol != c.startCol || b.Span != c.span || b.Row != c.row {
			t.Errorf("%s = col %d span %d row %d, want col %d span %d row %d",
				c.id, b.StartCol, b.Span, b.Row, c.startCol, c.span, c.row)
		}
	}

	if want := []int{1, 2, 2, 0, 0, 0, 0}; !slices.Equal(w.RowCounts, want) {
		t.Errorf("RowCounts = %v, want %v", w.RowCounts, want)
	}

	if len(w.SingleDay) != 7 {
		t.Fatalf("SingleDay has %d columns", len(w.SingleDay))
	}
	if len(w.SingleDay[0]) != 1 || w.SingleDay[0][0].ID != "standup" {
		t.Errorf("Monday cell = %v", w.SingleDay[0])
	}
	if len(w.SingleDay[1]) != 1 || w.SingleDay[1][0].ID != "lunch" {
		t.Errorf("Tuesday cell = %v", w.SingleDay[1])
	}
	for i := 2; i < 7; i++ {
		if len(w.SingleDay[i]) != 0 {
			t.Errorf("column %d cell = %v, want empty", i, w.SingleDay[i])
		}
	}
}
