package ics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	appLog "blairboard/internal/log"
	"blairboard/internal/model"
)

// FetchEvents fetches every enabled source concurrently and returns their
// expanded events within rng, converted to loc and sorted by start.
//
// Each source is isolated: a download, parse or panic in one source is
// logged, returned in the error slice, and simply contributes no events.
// The event slice is never nil and an error slice alone does not mean the
// call failed.
func (f *Fetcher) FetchEvents(ctx context.Context, sources []Source, rng model.DateRange, loc *time.Location) ([]model.CalendarEvent, []error) {
	enabled := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	type outcome struct {
		events []model.CalendarEvent
		err    error
	}
	outcomes := make([]outcome, len(enabled))

	var wg sync.WaitGroup
	for i, src := range enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := f.sourceEvents(ctx, src, rng, loc)
			outcomes[i] = outcome{events: events, err: err}
		}()
	}
	wg.Wait()

	all := make([]model.CalendarEvent, 0)
	errs := make([]error, 0)
	for i, o := range outcomes {
		if o.err != nil {
			src := enabled[i]
			appLog.Error("failed to fetch calendar", o.err, "id", src.ID, "name", src.Name, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, o.err))
			continue
		}
		all = append(all, o.events...)
	}

	SortEvents(all)
	return all, errs
}

// SortEvents orders events by absolute start time. The sort is stable, so
// events starting at the same instant keep their relative order.
func SortEvents(events []model.CalendarEvent) {
	slices.SortStableFunc(events, func(a, b model.CalendarEvent) int {
		return a.Start.Compare(b.Start)
	})
}

// sourceEvents runs cache-or-fetch, parse and expand for one source.
func (f *Fetcher) sourceEvents(ctx context.Context, src Source, rng model.DateRange, loc *time.Location) (events []model.CalendarEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	res, err := f.FetchOne(ctx, src)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseICS(src, res.Body, loc)
	if err != nil {
		return nil, err
	}

	expanded, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation:        loc,
		RangeStart:             rng.Start,
		RangeEnd:               rng.End,
		MaxOccurrencesPerEvent: f.maxOccurrences,
	})
	if err != nil {
		return nil, err
	}

	f.metrics.SourceEvents(src.ID, len(expanded.Events))
	f.metrics.Truncated(src.ID, len(expanded.TruncatedEvents))
	appLog.Debug("ics source expanded",
		"id", src.ID,
		"from_cache", res.FromCache,
		"events", len(expanded.Events),
		"truncated", len(expanded.TruncatedEvents),
		"failed", expanded.Failed,
	)
	return expanded.Events, nil
}
