package ics

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "blairboard/internal/log"
	"blairboard/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// maxSkippedPerEvent bounds how many instances before RangeStart are
	// walked past, so a dense rule with an old DTSTART still terminates.
	maxSkippedPerEvent = 100000

	// NoTitle replaces an empty SUMMARY.
	NoTitle = "(No title)"

	// instanceKeyLayout formats the UTC start of a recurring instance when
	// building its event ID.
	instanceKeyLayout = "2006-01-02T15:04:05.000Z"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps how many instances are generated for a
	// single series. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded events and information about series that
// failed or were cut short.
type ExpandResult struct {
	Events []model.CalendarEvent
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
	// Failed counts events skipped because their recurrence could not be
	// expanded.
	Failed int
}

// ExpandOccurrences turns parsed VEVENTs into concrete events within the
// configured range. It handles:
//
//   - Single non-recurring events (kept when they overlap the range)
//   - RRULE recurrence with EXDATE and RDATE
//   - RECURRENCE-ID overrides, folded into their series
//   - All-day semantics (exclusive end day preserved)
//
// Output follows input order; instances of one series are chronological.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		// Overrides never stand alone; expandRecurring applies them.
		if ev.IsOverride {
			continue
		}

		occ, hitCap, err := expandEventSafe(ev, overridesByUID[ev.UID], cfg)
		if err != nil {
			result.Failed++
			appLog.Warn("expand: skipping event", "err", err, "uid", ev.UID, "id", ev.Source.ID)
			continue
		}
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		out = append(out, occ...)
	}

	result.Events = out
	return result, nil
}

func expandEventSafe(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) (occ []model.CalendarEvent, hitCap bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expand panic: %v", r)
		}
	}()

	if ev.RawRRule == "" {
		return expandSingle(ev, cfg), false, nil
	}
	return expandRecurring(ev, overrides, cfg)
}

func expandSingle(ev ParsedEvent, cfg ExpandConfig) []model.CalendarEvent {
	if !timeRangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.CalendarEvent{makeEvent(ev, ev.Start, ev.End, ev.UID, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool, error) {
	// Date-only UNTIL values are local to the series, not UTC.
	opt, err := rrule.StrToROptionInLocation(ev.RawRRule, ev.Start.Location())
	if err != nil {
		return nil, false, fmt.Errorf("parse RRULE %q: %w", ev.RawRRule, err)
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, fmt.Errorf("build RRULE %q: %w", ev.RawRRule, err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	for _, rd := range ev.RDates {
		set.RDate(rd.In(ev.Start.Location()))
	}

	out, hitCap := walkSeries(&set, ev, overrides, cfg)
	out = append(out, overridesMovedIn(&set, ev, overrides, cfg)...)
	slices.SortStableFunc(out, func(a, b model.CalendarEvent) int {
		return a.Start.Compare(b.Start)
	})
	return out, hitCap, nil
}

// walkSeries iterates the set up to RangeEnd, applying overrides to the
// instances they replace.
func walkSeries(set *rrule.Set, ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	// All-day instances keep the series' length in calendar days so the
	// exclusive end lands on a midnight even across DST changes.
	dur := ev.End.Sub(ev.Start)
	days := int(math.Round(dur.Hours() / 24))

	out := make([]model.CalendarEvent, 0)
	next := set.Iterator()
	generated, skipped := 0, 0
	for {
		occStart, ok := next()
		if !ok || occStart.After(cfg.RangeEnd) {
			return out, false
		}

		var occEnd time.Time
		if ev.AllDay {
			occEnd = occStart.AddDate(0, 0, days)
		} else {
			occEnd = occStart.Add(dur)
		}

		if occEnd.Before(cfg.RangeStart) && !hasOverride(overrides, occStart) {
			skipped++
			if skipped > maxSkippedPerEvent {
				return out, true
			}
			continue
		}

		if generated >= cfg.MaxOccurrencesPerEvent {
			return out, true
		}
		generated++

		start, end, src := occStart, occEnd, ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			if o.Cancelled {
				continue
			}
			start, end = o.Start, o.End
			src = o
			src.Source = ev.Source
		}

		if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}

		out = append(out, makeEvent(src, start, end, instanceID(ev.UID, occStart), cfg.DisplayLocation))
	}
}

// overridesMovedIn returns overrides of instances that fall after RangeEnd
// but were rescheduled into the range. walkSeries stops before reaching
// them. The RECURRENCE-ID must still be an instance of the set, so an
// excluded or out-of-count instance stays gone.
func overridesMovedIn(set *rrule.Set, ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, o := range overrides {
		if o.Cancelled || o.Recurrence == nil || !o.Recurrence.After(cfg.RangeEnd) {
			continue
		}
		if !timeRangesOverlap(o.Start, o.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		rid := o.Recurrence.In(ev.Start.Location())
		if !set.After(rid, true).Equal(rid) {
			continue
		}
		src := o
		src.Source = ev.Source
		out = append(out, makeEvent(src, o.Start, o.End, instanceID(ev.UID, rid), cfg.DisplayLocation))
	}
	return out
}

func instanceID(uid string, occStart time.Time) string {
	return uid + "_" + occStart.UTC().Format(instanceKeyLayout)
}

func hasOverride(overrides []ParsedEvent, occStart time.Time) bool {
	_, ok := findOverrideForStart(overrides, occStart)
	return ok
}

// findOverrideForStart finds an override whose RECURRENCE-ID is the same
// instant as the generated occurrence start.
func findOverrideForStart(overrides []ParsedEvent, occStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(occStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts a (possibly overridden) ParsedEvent with concrete
// start/end into a model.CalendarEvent in displayLoc.
func makeEvent(ev ParsedEvent, start, end time.Time, id string, displayLoc *time.Location) model.CalendarEvent {
	title := ev.Summary
	if title == "" {
		title = NoTitle
	}
	return model.CalendarEvent{
		ID:           id,
		Title:        title,
		Start:        start.In(displayLoc),
		End:          end.In(displayLoc),
		AllDay:       ev.AllDay,
		Colour:       ev.Source.Colour,
		CalendarID:   ev.Source.ID,
		CalendarName: ev.Source.Name,
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
