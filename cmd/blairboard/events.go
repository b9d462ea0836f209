package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"blairboard/internal/clock"
	"blairboard/internal/ics"
	"blairboard/internal/layout"
	"blairboard/internal/model"
	"blairboard/internal/refdate"
	"blairboard/internal/viewrange"
	"blairboard/internal/visibility"
)

type eventsOptions struct {
	view   string
	date   string
	json   bool
	hidden string
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	var eo eventsOptions

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the events of one view period",
		Example: `  blairboard events --view week
  blairboard events --view month --date "next month" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts, eo)
		},
	}
	cmd.Flags().StringVar(&eo.view, "view", "", "week, weeknext, 4week or month (default from config)")
	cmd.Flags().StringVar(&eo.date, "date", "", "Reference date: 2006-01-02, RFC 3339 or a phrase like \"next friday\"")
	cmd.Flags().BoolVar(&eo.json, "json", false, "Print events as JSON")
	cmd.Flags().StringVar(&eo.hidden, "hidden", "", "Comma separated calendar IDs to hide")
	return cmd
}

func runEvents(cmd *cobra.Command, opts *globalOptions, eo eventsOptions) error {
	_, cfg, err := openConfig(opts)
	if err != nil {
		return err
	}
	loc := cfg.Location()
	now := clock.NewSystem().Now().In(loc)

	view := cfg.Display.DefaultView
	if eo.view != "" {
		if view, err = viewrange.ParseView(eo.view); err != nil {
			return err
		}
	}
	ref, err := refdate.New().Parse(eo.date, now, loc)
	if err != nil {
		return err
	}

	fetcher := ics.NewFetcher(ics.Options{
		Timeout:  cfg.FetchTimeout(),
		CacheTTL: cfg.CacheTTL(),
	})
	rng := viewrange.ForView(view, ref, cfg.Display.WeekStart())
	events, errs := fetcher.FetchEvents(cmd.Context(), ics.SourcesFromConfig(cfg.Calendars), rng, loc)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}

	events = visibility.Filter(events,
		visibility.ParseHidden(eo.hidden),
		visibility.HideTimedFromSources(cfg.Calendars),
	)

	out := cmd.OutOrStdout()
	if eo.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	fmt.Fprintln(out, viewrange.Label(view, ref, cfg.Display.WeekStart()))
	printEvents(out, events, rng, cfg.Display.TimeFormat)
	return nil
}

// printEvents lists events under a heading for every day of rng they touch.
func printEvents(w io.Writer, events []model.CalendarEvent, rng model.DateRange, timeFormat string) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}

	clock := "3:04 PM"
	if timeFormat == "24h" {
		clock = "15:04"
	}

	for day := rng.Start; !day.After(rng.End); day = day.AddDate(0, 0, 1) {
		var lines []string
		for _, e := range events {
			if !layout.OnDay(e, day) {
				continue
			}
			when := "all day"
			if !e.AllDay {
				when = e.Start.Format(clock) + "–" + e.End.Format(clock)
			}
			lines = append(lines, fmt.Sprintf("  %-17s %s [%s]", when, e.Title, e.CalendarName))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintln(w, day.Format("Mon 2 Jan"))
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
}
