package web_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"blairboard/internal/clock"
	"blairboard/internal/config"
	"blairboard/internal/ics"
	appLog "blairboard/internal/log"
	"blairboard/internal/metrics"
	"blairboard/internal/web"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

const standupICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//blairboard//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20260302T090000Z\r\n" +
	"DTEND:20260302T091500Z\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE,FR\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lunch\r\n" +
	"SUMMARY:Team lunch\r\n" +
	"DTSTART:20260303T120000Z\r\n" +
	"DTEND:20260303T140000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const offsiteICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//blairboard//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:offsite\r\n" +
	"SUMMARY:Offsite\r\n" +
	"DTSTART;VALUE=DATE:20260303\r\n" +
	"DTEND;VALUE=DATE:20260304\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:review\r\n" +
	"SUMMARY:Review\r\n" +
	"DTSTART:20260303T150000Z\r\n" +
	"DTEND:20260303T160000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

// monday is the fixed "now" for every test: Monday 2 March 2026.
var monday = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	api   *httptest.Server
	feeds *httptest.Server
	hits  atomic.Int32
	cfg   *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	f := &fixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/team.ics", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, standupICS)
	})
	mux.HandleFunc("/work.ics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, offsiteICS)
	})
	f.feeds = httptest.NewServer(mux)
	t.Cleanup(f.feeds.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendars = []config.CalendarSource{
		{ID: "team", Name: "Team", URL: f.feeds.URL + "/team.ics?token=s3cret", Colour: "#ff0000", Enabled: true},
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture config invalid: %v", err)
	}
	f.cfg = cfg

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := web.NewServer(web.Options{
		Store:    config.NewStaticStore(cfg),
		Fetcher:  ics.NewFetcher(ics.Options{Metrics: m}),
		Clock:    clock.NewFixed(monday),
		Metrics:  m,
		Gatherer: reg,
	})
	f.api = httptest.NewServer(srv.Handler())
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.api.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

type eventsBody struct {
	Events []struct {
		ID         string    `json:"id"`
		Title      string    `json:"title"`
		Start      time.Time `json:"start"`
		CalendarID string    `json:"calendarId"`
	} `json:"events"`
	Config struct {
		Timezone  string `json:"timezone"`
		Calendars []struct {
			ID string `json:"id"`
		} `json:"calendars"`
	} `json:"config"`
}

func TestEventsWeekEndToEnd(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/events?view=week&date=2026-03-02", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var got eventsBody
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, body)
	}

	want := []string{
		"standup_2026-03-02T09:00:00.000Z",
		"lunch",
		"standup_2026-03-04T09:00:00.000Z",
		"standup_2026-03-06T09:00:00.000Z",
	}
	if len(got.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %s", len(got.Events), len(want), body)
	}
	weekEnd := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i, e := range got.Events {
		if e.ID != want[i] {
			t.Errorf("events[%d].ID = %q, want %q", i, e.ID, want[i])
		}
		if seen[e.ID] {
			t.Errorf("duplicate id %q", e.ID)
		}
		seen[e.ID] = true
		if i > 0 && e.Start.Before(got.Events[i-1].Start) {
			t.Errorf("events out of order at %d", i)
		}
		if e.Start.Before(monday.Add(-8*time.Hour)) || !e.Start.Before(weekEnd) {
			t.Errorf("%s starts outside the week: %v", e.ID, e.Start)
		}
		if e.CalendarID != "team" {
			t.Errorf("%s calendarId = %q", e.ID, e.CalendarID)
		}
	}

	if strings.Contains(string(body), "s3cret") || strings.Contains(string(body), f.feeds.URL) {
		t.Errorf("response leaks the feed URL: %s", body)
	}
	if got.Config.Timezone != "UTC" || len(got.Config.Calendars) != 1 {
		t.Errorf("config = %+v", got.Config)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestEventsDefaultsToConfiguredViewAndNow(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.do(t, http.MethodGet, "/api/events", nil)
	var got eventsBody
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 4 {
		t.Errorf("got %d events, want the 4 of the current week", len(got.Events))
	}

	// The feed is cached after the first request.
	f.do(t, http.MethodGet, "/api/events?view=month&date=2026-03-16", nil)
	if n := f.hits.Load(); n != 1 {
		t.Errorf("feed fetched %d times, want 1", n)
	}
}

func TestEventsRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{
		"/api/events?view=year",
		"/api/events?date=qwerty%20zxcv",
		"/api/layout?view=fortnight",
	} {
		resp, body := f.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
			continue
		}
		var e struct {
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		if err := json.Unmarshal(body, &e); err != nil || e.Code != http.StatusBadRequest || e.Error == "" {
			t.Errorf("%s: error body = %s", path, body)
		}
	}
}

func TestLayoutAppliesVisibility(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Calendars = append(cfg.Calendars, config.CalendarSource{
			ID: "work", Name: "Work", URL: strings.Replace(cfg.Calendars[0].URL, "/team.ics?token=s3cret", "/work.ics", 1),
			Colour: "#0000ff", Enabled: true, HideTimedEvents: true,
		})
	})

	resp, body := f.do(t, http.MethodGet, "/api/layout?view=week&date=2026-03-04&hidden=team", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var got struct {
		View  string `json:"view"`
		Label string `json:"label"`
		Prev  string `json:"prev"`
		Next  string `json:"next"`
		Weeks []struct {
			Spanning []struct {
				Event struct {
					ID string `json:"id"`
				} `json:"event"`
				StartCol int `json:"startCol"`
				Span     int `json:"span"`
				Row      int `json:"row"`
			} `json:"spanning"`
			RowCounts []int             `json:"rowCounts"`
			SingleDay [][]json.RawMessage `json:"singleDay"`
		} `json:"weeks"`
		Agenda []struct {
			ID string `json:"id"`
		} `json:"agenda"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, body)
	}

	if got.View != "week" || got.Label != "2 Mar – 8 Mar 2026" {
		t.Errorf("view/label = %q/%q", got.View, got.Label)
	}
	if got.Prev != "2026-02-25" || got.Next != "2026-03-11" {
		t.Errorf("prev/next = %s/%s, want a week either side", got.Prev, got.Next)
	}
	if len(got.Weeks) != 1 {
		t.Fatalf("weeks = %d, want 1", len(got.Weeks))
	}
	w := got.Weeks[0]
	if len(w.Spanning) != 1 || w.Spanning[0].Event.ID != "offsite" || w.Spanning[0].StartCol != 1 || w.Spanning[0].Span != 1 {
		t.Errorf("spanning = %+v, want offsite on Tuesday", w.Spanning)
	}
	for i, cell := range w.SingleDay {
		if len(cell) != 0 {
			t.Errorf("day %d has %d single-day events, want none (team hidden, work timed hidden)", i, len(cell))
		}
	}
	if len(got.Agenda) != 1 || got.Agenda[0].ID != "offsite" {
		t.Errorf("agenda = %+v, want [offsite]", got.Agenda)
	}
}

func TestRefreshInvalidatesCache(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodGet, "/api/events", nil)
	resp, _ := f.do(t, http.MethodPost, "/api/refresh?id=team", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	f.do(t, http.MethodGet, "/api/events", nil)
	if n := f.hits.Load(); n != 2 {
		t.Errorf("feed fetched %d times, want 2", n)
	}

	resp, _ = f.do(t, http.MethodPost, "/api/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh all status = %d", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/refresh", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/refresh status = %d, want 405", resp.StatusCode)
	}
}

func TestOriginSecret(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.OriginSecret = "letmein"
	})

	if resp, _ := f.do(t, http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}
	if resp, _ := f.do(t, http.MethodGet, "/api/events", nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("no secret: status = %d, want 403", resp.StatusCode)
	}
	h := http.Header{"X-Origin-Secret": []string{"letmein"}}
	if resp, _ := f.do(t, http.MethodGet, "/api/events", h); resp.StatusCode != http.StatusOK {
		t.Errorf("with secret: status = %d, want 200", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.BasicAuth = &config.BasicAuthConfig{Username: "blair", Password: "board"}
	})

	resp, _ := f.do(t, http.MethodGet, "/api/events", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.api.URL+"/api/events", nil)
	req.SetBasicAuth("blair", "board")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", authed.StatusCode)
	}
}

func TestRefreshReloadsOriginSecret(t *testing.T) {
	t.Setenv("ORIGIN_SECRET", "")
	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, standupICS)
	}))
	t.Cleanup(feeds.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendars = []config.CalendarSource{{ID: "team", Name: "Team", URL: feeds.URL + "/team.ics", Enabled: true}}
	cfg.Server.OriginSecret = "old"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	srv := web.NewServer(web.Options{
		Store:   config.NewStore(path),
		Fetcher: ics.NewFetcher(ics.Options{}),
		Clock:   clock.NewFixed(monday),
	})
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	call := func(method, route, secret string) int {
		t.Helper()
		req, err := http.NewRequest(method, api.URL+route, nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("X-Origin-Secret", secret)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := call(http.MethodGet, "/api/events", "old"); code != http.StatusOK {
		t.Fatalf("old secret before reload: status = %d, want 200", code)
	}

	cfg.Server.OriginSecret = "new"
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if code := call(http.MethodPost, "/api/refresh", "old"); code != http.StatusOK {
		t.Fatalf("refresh: status = %d, want 200", code)
	}

	if code := call(http.MethodGet, "/api/events", "old"); code != http.StatusForbidden {
		t.Errorf("old secret after reload: status = %d, want 403", code)
	}
	if code := call(http.MethodGet, "/api/events", "new"); code != http.StatusOK {
		t.Errorf("new secret after reload: status = %d, want 200", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	f.do(t, http.MethodGet, "/api/events", nil)
	resp, body := f.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`blairboard_http_requests_total{code="200",path="GET /api/events"} 1`,
		`blairboard_calendar_fetch_total{result="ok",source="team"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
