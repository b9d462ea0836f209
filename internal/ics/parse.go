package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "blairboard/internal/log"
)

// ErrEmptyBody is returned by ParseICS for a zero-length payload.
var ErrEmptyBody = errors.New("empty ICS body")

const (
	propRecurrenceID ical.ComponentProperty = "RECURRENCE-ID"
	propRdate        ical.ComponentProperty = "RDATE"
	propDuration     ical.ComponentProperty = "DURATION"
	propStatus       ical.ComponentProperty = "STATUS"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID     string
	Summary string

	// Start / End carry the zone the event was defined in (TZID, UTC, or
	// the display zone for floating and DATE values).
	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	RDates   []time.Time

	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides one instance of a series
	Cancelled  bool       // STATUS:CANCELLED
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - DATE values and floating DATE-TIME values are interpreted in loc.
//   - TZID parameters are resolved via the Go zone database; unknown zone
//     names fall back to loc.
//   - All-day is decided by the DTSTART value type, never by duration.
//   - RRULE/EXDATE/RDATE/RECURRENCE-ID are recorded but not expanded;
//     expansion lives in expand.go.
//
// A VEVENT that fails to parse is logged and skipped. Only an unreadable
// payload is returned as an error.
func ParseICS(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEventSafe(src, comp, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Warn("ics vevent parse failed", "err", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEventSafe(src Source, ve *ical.VEvent, loc *time.Location) (ev ParsedEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vevent panic: %v", r)
		}
	}()
	return parseVEvent(src, ve, loc)
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(propStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("uid %s: missing DTSTART", out.UID)
	}
	start, isDate, err := parsePropTime(dtStart.Value, dtStart.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	out.AllDay = isDate

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, _, err := parsePropTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("uid %s: DTEND: %w", out.UID, err)
		}
		out.End = end
	case ve.GetProperty(propDuration) != nil:
		days, rest, err := parseDuration(ve.GetProperty(propDuration).Value)
		if err != nil {
			return out, fmt.Errorf("uid %s: DURATION: %w", out.UID, err)
		}
		out.End = start.AddDate(0, 0, days).Add(rest)
	case isDate:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimSpace(p.Value)
	}

	out.ExDates = parseDateList(ve.GetProperties(ical.ComponentPropertyExdate), loc)
	out.RDates = parseDateList(ve.GetProperties(propRdate), loc)

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		rid, _, err := parsePropTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("uid %s: RECURRENCE-ID: %w", out.UID, err)
		}
		out.Recurrence = &rid
		out.IsOverride = true
	}

	return out, nil
}

// parseDateList flattens EXDATE/RDATE properties, each of which may carry
// several comma-separated values. PERIOD values and unparsable entries are
// skipped.
func parseDateList(props []*ical.IANAProperty, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range props {
		if p == nil || p.Value == "" {
			continue
		}
		if strings.EqualFold(paramValue(p.ICalParameters, "VALUE"), "PERIOD") {
			continue
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parsePropTime(part, p.ICalParameters, loc)
			if err != nil {
				appLog.Debug("ics skipping date list value", "value", part, "err", err)
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

func paramValue(params map[string][]string, key string) string {
	if params == nil {
		return ""
	}
	vs, ok := params[key]
	if !ok || len(vs) == 0 {
		return ""
	}
	return strings.Trim(vs[0], `"`)
}

// parsePropTime parses an ICS DATE or DATE-TIME value using the property's
// VALUE and TZID parameters. The bool result reports a DATE value.
func parsePropTime(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	isDate := strings.EqualFold(paramValue(params, "VALUE"), "DATE") || !strings.Contains(v, "T")
	if isDate {
		// Date-only (all-day), e.g. 20250101. Always midnight in the
		// display zone so the day never shifts.
		t, err := time.ParseInLocation("20060102", v[:min(len(v), 8)], loc)
		return t, true, err
	}

	// UTC form, e.g. 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	zone := loc
	if tzid := paramValue(params, "TZID"); tzid != "" {
		zone = resolveZone(tzid, loc)
	}
	t, err := time.ParseInLocation("20060102T150405", v, zone)
	return t, false, err
}

// resolveZone loads an IANA zone, falling back to fallback for names the
// zone database does not know (e.g. Windows zone names).
func resolveZone(tzid string, fallback *time.Location) *time.Location {
	tzid = strings.TrimPrefix(tzid, "/")
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		appLog.Debug("ics unknown TZID; using display zone", "tzid", tzid, "zone", fallback.String())
		return fallback
	}
	return loc
}

// parseDuration parses an RFC 5545 DURATION (e.g. P1D, PT1H30M, -P1W) into
// whole days plus a sub-day remainder, so day parts can be applied with
// AddDate and stay wall-clock correct across DST changes.
func parseDuration(v string) (int, time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return 0, 0, errors.New("empty duration")
	}

	sign := 1
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, 0, fmt.Errorf("duration %q: missing P", v)
	}
	s = s[1:]

	var days int
	var rest time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}

		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, 0, fmt.Errorf("duration %q: %w", v, err)
		}
		num = ""

		switch {
		case r == 'W' && !inTime:
			days += 7 * n
		case r == 'D' && !inTime:
			days += n
		case r == 'H' && inTime:
			rest += time.Duration(n) * time.Hour
		case r == 'M' && inTime:
			rest += time.Duration(n) * time.Minute
		case r == 'S' && inTime:
			rest += time.Duration(n) * time.Second
		default:
			return 0, 0, fmt.Errorf("duration %q: unexpected %q", v, r)
		}
	}
	if num != "" {
		return 0, 0, fmt.Errorf("duration %q: trailing number", v)
	}

	return sign * days, time.Duration(sign) * rest, nil
}
