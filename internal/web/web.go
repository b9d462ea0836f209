package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blairboard/internal/clock"
	"blairboard/internal/config"
	"blairboard/internal/ics"
	"blairboard/internal/layout"
	appLog "blairboard/internal/log"
	"blairboard/internal/metrics"
	"blairboard/internal/model"
	"blairboard/internal/refdate"
	"blairboard/internal/viewrange"
	"blairboard/internal/visibility"
)

// Server provides the HTTP API over the aggregated calendars.
type Server struct {
	store    *config.Store
	fetcher  *ics.Fetcher
	clock    clock.Clock
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	dates    *refdate.Parser
	mux      *http.ServeMux
}

// Options wires a Server. Store and Fetcher are required.
type Options struct {
	Store   *config.Store
	Fetcher *ics.Fetcher
	Clock   clock.Clock
	// Metrics may be nil. Gatherer backs /metrics; the default registry is
	// used when nil.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		dates:    refdate.New(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped in request logging and the access guard.
func (s *Server) Handler() http.Handler {
	return s.requestLogger(s.accessGuard(s.mux))
}

// StartServer serves the API on cfg.Server.Listen until ctx is cancelled,
// then shuts down gracefully.
func StartServer(ctx context.Context, s *Server, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(appLog.Logger().Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events []model.CalendarEvent `json:"events"`
	Config config.ClientConfig   `json:"config"`
}

// layoutResponse is the JSON response shape for /api/layout.
type layoutResponse struct {
	View   model.View            `json:"view"`
	Label  string                `json:"label"`
	Prev   string                `json:"prev"`
	Next   string                `json:"next"`
	Range  model.DateRange       `json:"range"`
	Weeks  []layout.Week         `json:"weeks"`
	Agenda []model.CalendarEvent `json:"agenda"`
	Config config.ClientConfig   `json:"config"`
}

// viewRequest is a resolved view/date query.
type viewRequest struct {
	cfg  *config.Config
	loc  *time.Location
	now  time.Time
	view model.View
	ref  time.Time
}

func (vr viewRequest) viewRange() model.DateRange {
	return viewrange.ForView(vr.view, vr.ref, vr.cfg.Display.WeekStart())
}

func (vr viewRequest) agendaRange() model.DateRange {
	return viewrange.AgendaRange(vr.now, vr.cfg.Display.AgendaDays)
}

// resolveView reads view and date from the query. It writes the error
// response itself and returns false on failure.
func (s *Server) resolveView(w http.ResponseWriter, r *http.Request) (viewRequest, bool) {
	cfg, err := s.store.Get()
	if err != nil {
		appLog.Error("web: config unavailable", err)
		writeError(w, http.StatusInternalServerError, "configuration unavailable")
		return viewRequest{}, false
	}
	loc := cfg.Location()
	now := s.clock.Now().In(loc)
	q := r.URL.Query()

	view := cfg.Display.DefaultView
	if v := q.Get("view"); v != "" {
		view, err = viewrange.ParseView(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return viewRequest{}, false
		}
	}

	ref, err := s.dates.Parse(q.Get("date"), now, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return viewRequest{}, false
	}

	return viewRequest{cfg: cfg, loc: loc, now: now, view: view, ref: ref}, true
}

// fetch pulls every source over the view range widened to cover today's
// agenda. Source failures are logged by the fetcher and only shrink the
// result.
func (s *Server) fetch(ctx context.Context, vr viewRequest) []model.CalendarEvent {
	rng := viewrange.FetchRange(vr.viewRange(), vr.agendaRange())
	events, errs := s.fetcher.FetchEvents(ctx, ics.SourcesFromConfig(vr.cfg.Calendars), rng, vr.loc)
	if len(errs) > 0 {
		appLog.Warn("api: some calendars failed", "err", errors.Join(errs...), "error_count", len(errs))
	}
	return events
}

// handleEvents returns the ordered events for a view plus the sanitized
// client config.
//
// GET /api/events?view=week&date=2026-03-02
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	vr, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	events := s.fetch(r.Context(), vr)

	appLog.Debug("api events request",
		"view", vr.view,
		"date", vr.ref.Format(time.RFC3339),
		"events", len(events),
	)
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Config: vr.cfg.ClientConfig()})
}

// handleLayout returns grid rows and the agenda list after hiding the
// calendars named in ?hidden= and timed events of hideTimedEvents calendars.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	vr, ok := s.resolveView(w, r)
	if !ok {
		return
	}
	events := s.fetch(r.Context(), vr)

	hidden := visibility.ParseHidden(r.URL.Query().Get("hidden"))
	visible := visibility.Filter(events, hidden, visibility.HideTimedFromSources(vr.cfg.Calendars))

	ws := vr.cfg.Display.WeekStart()
	rows := viewrange.Weeks(viewrange.GridDays(vr.view, vr.ref, ws))
	weeks := make([]layout.Week, 0, len(rows))
	for _, days := range rows {
		weeks = append(weeks, layout.LayoutWeek(visible, days))
	}

	agendaRange := vr.agendaRange()
	agenda := make([]model.CalendarEvent, 0)
	for _, e := range visible {
		if agendaRange.Overlaps(e.Start, e.End) {
			agenda = append(agenda, e)
		}
	}

	writeJSON(w, http.StatusOK, layoutResponse{
		View:   vr.view,
		Label:  viewrange.Label(vr.view, vr.ref, ws),
		Prev:   viewrange.Shift(vr.view, vr.ref, -1).Format(time.DateOnly),
		Next:   viewrange.Shift(vr.view, vr.ref, 1).Format(time.DateOnly),
		Range:  vr.viewRange(),
		Weeks:  weeks,
		Agenda: agenda,
		Config: vr.cfg.ClientConfig(),
	})
}

// handleRefresh drops cached feed payloads so the next request downloads
// them again. Without ?id= every payload is dropped and the config file is
// re-read; calendars, display settings and credentials apply at once, while
// the listen address, fetch timeout, cache TTL and warm schedule are fixed
// at startup.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	type refreshResponse struct {
		Invalidated string `json:"invalidated"`
	}

	if id := r.URL.Query().Get("id"); id != "" {
		s.fetcher.Invalidate(id)
		appLog.Info("api refresh", "id", id)
		writeJSON(w, http.StatusOK, refreshResponse{Invalidated: id})
		return
	}

	s.fetcher.InvalidateAll()
	s.store.Clear()
	if _, err := s.store.Get(); err != nil {
		appLog.Error("api refresh: config reload failed", err)
		writeError(w, http.StatusInternalServerError, "configuration reload failed")
		return
	}
	appLog.Info("api refresh", "id", "all")
	writeJSON(w, http.StatusOK, refreshResponse{Invalidated: "all"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	writeJSON(w, status, errResp{Error: msg, Code: status})
}
