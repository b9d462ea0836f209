// Package scheduler keeps the feed cache warm by refreshing every enabled
// calendar on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blairboard/internal/clock"
	"blairboard/internal/config"
	"blairboard/internal/ics"
	appLog "blairboard/internal/log"
	"blairboard/internal/model"
	"blairboard/internal/viewrange"
)

// Fetcher is the part of ics.Fetcher the warmer drives.
type Fetcher interface {
	Refresh(ctx context.Context, sources []ics.Source) []error
	FetchEvents(ctx context.Context, sources []ics.Source, rng model.DateRange, loc *time.Location) ([]model.CalendarEvent, []error)
}

// Warmer periodically re-downloads feeds so requests are served from cache.
type Warmer struct {
	store   *config.Store
	fetcher Fetcher
	clock   clock.Clock
	cron    *cron.Cron
	// running admits one warm-up at a time across the startup run and
	// cron ticks.
	running sync.Mutex
}

// Result summarizes one warm-up run.
type Result struct {
	Sources int
	Events  int
	Errors  []error
}

func New(store *config.Store, fetcher Fetcher, clk clock.Clock) *Warmer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Warmer{store: store, fetcher: fetcher, clock: clk}
}

// Start runs one warm-up in the background and then schedules the job.
// A config with warming switched off starts nothing.
func (w *Warmer) Start(ctx context.Context) error {
	cfg, err := w.store.Get()
	if err != nil {
		return err
	}

	spec := cfg.WarmSchedule()
	if spec == "" {
		appLog.Info("cache warm-up disabled")
		return nil
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { w.runExclusive(ctx) }); err != nil {
		return fmt.Errorf("warm schedule %q: %w", spec, err)
	}

	w.cron = c
	c.Start()
	go w.runExclusive(ctx)

	appLog.Info("cache warm-up scheduled", "schedule", spec, "zone", cfg.Location().String())
	return nil
}

// Stop halts the schedule. The returned context is done once any running
// warm-up, scheduled or initial, has finished.
func (w *Warmer) Stop() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		w.running.Lock()
		w.running.Unlock()
	}()
	return ctx
}

// RunOnce refreshes every enabled source and expands the wide window around
// today so broken feeds surface in the logs before anyone asks for them.
func (w *Warmer) RunOnce(ctx context.Context) Result {
	cfg, err := w.store.Get()
	if err != nil {
		appLog.Error("cache warm-up: config unavailable", err)
		return Result{Errors: []error{err}}
	}

	sources := ics.SourcesFromConfig(cfg.EnabledCalendars())
	started := w.clock.Now()

	errs := w.fetcher.Refresh(ctx, sources)

	loc := cfg.Location()
	rng := viewrange.WarmRange(w.clock.Now().In(loc), cfg.Display.AgendaDays)
	events, _ := w.fetcher.FetchEvents(ctx, sources, rng, loc)

	appLog.Info("cache warm-up finished",
		"sources", len(sources),
		"failed", len(errs),
		"events", len(events),
		"took", w.clock.Now().Sub(started).String(),
	)
	return Result{Sources: len(sources), Events: len(events), Errors: errs}
}

// runExclusive runs a warm-up unless one is already in progress. It reports
// whether it ran.
func (w *Warmer) runExclusive(ctx context.Context) bool {
	if !w.running.TryLock() {
		appLog.Info("cache warm-up still running; skipping")
		return false
	}
	defer w.running.Unlock()
	w.RunOnce(ctx)
	return true
}

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
